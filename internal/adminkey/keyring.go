// Package adminkey stores the facilitator's admin signing key in the OS
// keyring, so an operator does not have to keep the raw private key in the
// chains TOML file or an environment variable. The chains file's optional
// admin field still wins when set; this is the fallback/override path used
// by cmd/cli.
package adminkey

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/99designs/keyring"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Store wraps an OS keyring holding one admin private key per chain name.
type Store struct {
	ring keyring.Keyring
}

// Open opens the OS keyring with platform-specific configuration.
func Open() (*Store, error) {
	ring, err := openKeyring()
	if err != nil {
		return nil, fmt.Errorf("adminkey: open keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

func openKeyring() (keyring.Keyring, error) {
	if runtime.GOOS == "linux" {
		return openLinuxKeyring()
	}
	cfg := keyring.Config{
		ServiceName:              "x402facilitator",
		KeychainName:             "x402facilitator",
		KeychainTrustApplication: true,
	}
	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open system keyring: %w", err)
	}
	return ring, nil
}

// openLinuxKeyring tries Linux-specific backends in order, returning a
// detailed error naming which backend is missing and why when none work.
func openLinuxKeyring() (keyring.Keyring, error) {
	var attempts []string

	if hasSecretService() {
		ring, err := keyring.Open(keyring.Config{
			ServiceName:              "x402facilitator",
			KeychainName:             "x402facilitator",
			KeychainTrustApplication: true,
			AllowedBackends:          []keyring.BackendType{keyring.SecretServiceBackend},
		})
		if err == nil {
			return ring, nil
		}
		attempts = append(attempts, fmt.Sprintf("Secret Service: %v", err))
	} else {
		attempts = append(attempts, "Secret Service: DBUS_SESSION_BUS_ADDRESS not set (is a desktop session running?)")
	}

	if hasPass() {
		ring, err := keyring.Open(keyring.Config{
			ServiceName:              "x402facilitator",
			KeychainName:             "x402facilitator",
			KeychainTrustApplication: true,
			AllowedBackends:          []keyring.BackendType{keyring.PassBackend},
		})
		if err == nil {
			return ring, nil
		}
		attempts = append(attempts, fmt.Sprintf("pass: %v", err))
	} else {
		attempts = append(attempts, "pass: 'pass' command not found in PATH (install: apt install pass)")
	}

	return nil, fmt.Errorf("no secure keyring backend available:\n  - %s", strings.Join(attempts, "\n  - "))
}

func keyID(chainName string) string {
	return "admin-" + chainName
}

// Store saves priv under chainName, overwriting any existing entry.
func (s *Store) Store(chainName string, priv *ecdsa.PrivateKey) error {
	hexKey := hex.EncodeToString(crypto.FromECDSA(priv))
	return s.ring.Set(keyring.Item{Key: keyID(chainName), Data: []byte(hexKey)})
}

// Load retrieves the admin key stored for chainName.
func (s *Store) Load(chainName string) (*ecdsa.PrivateKey, error) {
	item, err := s.ring.Get(keyID(chainName))
	if err != nil {
		return nil, fmt.Errorf("adminkey: no stored key for %q: %w", chainName, err)
	}
	priv, err := crypto.HexToECDSA(string(item.Data))
	if err != nil {
		return nil, fmt.Errorf("adminkey: parse stored key for %q: %w", chainName, err)
	}
	return priv, nil
}

// Address returns the address for the key stored under chainName, without
// exposing the private key itself.
func (s *Store) Address(chainName string) (common.Address, error) {
	priv, err := s.Load(chainName)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(priv.PublicKey), nil
}

// Delete removes the admin key stored for chainName.
func (s *Store) Delete(chainName string) error {
	return s.ring.Remove(keyID(chainName))
}

func hasSecretService() bool {
	return os.Getenv("DBUS_SESSION_BUS_ADDRESS") != ""
}

func hasPass() bool {
	_, err := execLookPath("pass")
	return err == nil
}

func execLookPath(file string) (string, error) {
	for _, dir := range strings.Split(os.Getenv("PATH"), string(filepath.ListSeparator)) {
		path := filepath.Join(dir, file)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("not found")
}
