package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleChainsTOML = `
[[chains]]
chain_type = "evm"
chain_name = "base-sepolia"
rpc = "https://sepolia.base.org"
latency = 3
commission = 1
commission_min = 10
commission_max = 100000
tokens = ["USDC:0x1000000000000000000000000000000000000001:2"]

[[chains]]
chain_type = "evm"
chain_name = "polygon-amoy"
rpc = "https://rpc-amoy.polygon.technology"
latency = 5
commission = 0
commission_min = 0
commission_max = 0
admin = "0xdeadbeef"
tokens = ["USDT:0x2000000000000000000000000000000000000002:"]
`

func writeTempChains(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chains.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp chains file: %v", err)
	}
	return path
}

func TestLoadChainsParsesAllFields(t *testing.T) {
	path := writeTempChains(t, sampleChainsTOML)
	file, err := LoadChains(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(file.Chains) != 2 {
		t.Fatalf("expected 2 chains, got %d", len(file.Chains))
	}
	first := file.Chains[0]
	if first.ChainName != "base-sepolia" || first.Latency != 3 || first.Commission != 1 {
		t.Fatalf("unexpected first chain: %+v", first)
	}
	second := file.Chains[1]
	if second.Admin != "0xdeadbeef" {
		t.Fatalf("expected explicit admin key to survive parsing, got %q", second.Admin)
	}
}

func TestLoadChainsRejectsMissingRPC(t *testing.T) {
	path := writeTempChains(t, `
[[chains]]
chain_type = "evm"
chain_name = "no-rpc"
`)
	_, err := LoadChains(path)
	if err == nil {
		t.Fatal("expected error for missing rpc")
	}
}

func TestLoadChainsRejectsUnreadableFile(t *testing.T) {
	_, err := LoadChains(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseTokensSplitsNameAddressVersion(t *testing.T) {
	tokens, err := ParseTokens([]string{
		"USDC:0x1000000000000000000000000000000000000001:2",
		"USDT:0x2000000000000000000000000000000000000002:",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(tokens))
	}
	if tokens[0].Name != "USDC" || tokens[0].Version != "2" {
		t.Fatalf("unexpected first token: %+v", tokens[0])
	}
	if tokens[1].Version != "" {
		t.Fatalf("expected empty version to disable x402 for USDT, got %q", tokens[1].Version)
	}
}

func TestParseTokensRejectsMalformedEntry(t *testing.T) {
	_, err := ParseTokens([]string{"not-enough-parts"})
	if err == nil {
		t.Fatal("expected error for malformed token entry")
	}
}

func TestParseAdminPrivateKeyStripsPrefix(t *testing.T) {
	if got := ParseAdminPrivateKey("0xabc123"); got != "abc123" {
		t.Fatalf("expected prefix stripped, got %q", got)
	}
	if got := ParseAdminPrivateKey("abc123"); got != "abc123" {
		t.Fatalf("expected no-op on unprefixed key, got %q", got)
	}
}
