package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ChainFile is the top-level shape of the TOML chain-configuration file:
// a flat list of [[chains]] tables.
type ChainFile struct {
	Chains []ChainEntry `toml:"chains"`
}

// ChainEntry is one [[chains]] table. Admin is optional: when empty, the
// chain's admin wallet is a key stored in the OS keyring for that chain if
// there is one, otherwise the key derived from the service mnemonic at (0,0).
// Tokens are "name:address:version" strings; an empty version disables the
// x402 facilitator scheme for that asset while still allowing it to be
// swept.
type ChainEntry struct {
	ChainType     string   `toml:"chain_type"`
	ChainName     string   `toml:"chain_name"`
	RPC           string   `toml:"rpc"`
	Latency       int      `toml:"latency"`
	Commission    int64    `toml:"commission"`
	CommissionMin int64    `toml:"commission_min"`
	CommissionMax int64    `toml:"commission_max"`
	Admin         string   `toml:"admin"`
	Tokens        []string `toml:"tokens"`
}

// Token is one parsed "name:address:version" entry.
type Token struct {
	Name    string
	Address string
	Version string
}

// LoadChains parses a TOML chain-configuration file from path.
func LoadChains(path string) (*ChainFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read chains file: %w", err)
	}
	var file ChainFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parse chains file: %w", err)
	}
	for i := range file.Chains {
		if file.Chains[i].ChainType == "" {
			return nil, fmt.Errorf("config: chain %d: chain_type is required", i)
		}
		if file.Chains[i].ChainName == "" {
			return nil, fmt.Errorf("config: chain %d: chain_name is required", i)
		}
		if file.Chains[i].RPC == "" {
			return nil, fmt.Errorf("config: chain %q: rpc is required", file.Chains[i].ChainName)
		}
	}
	return &file, nil
}

// ParseTokens decodes a chain's "name:address:version" token list.
func ParseTokens(raw []string) ([]Token, error) {
	tokens := make([]Token, 0, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("config: malformed token entry %q, want name:address:version", entry)
		}
		tokens = append(tokens, Token{Name: parts[0], Address: parts[1], Version: parts[2]})
	}
	return tokens, nil
}

// ParseAdminPrivateKey strips an optional "0x" prefix from a configured
// admin private key hex string so callers can feed it directly to
// crypto.HexToECDSA.
func ParseAdminPrivateKey(hex string) string {
	return strings.TrimPrefix(hex, "0x")
}
