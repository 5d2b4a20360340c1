// Package evmscheme implements the x402 "exact" payment scheme for EVM
// chains: EIP-3009 transferWithAuthorization verified and settled against a
// set of registered ERC-20 contracts on one network.
package evmscheme

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"x402facilitator/internal/decimal"
	"x402facilitator/internal/eip712"
	"x402facilitator/internal/facilitator"
)

const (
	schemeName        = "exact"
	maxTimeoutSeconds = 300
	settleGasLimit    = 150_000
)

// Chain is the subset of evmchain.Client the scheme needs. Declared locally
// so tests can substitute a fake RPC.
type Chain interface {
	ChainID() *big.Int
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
	AuthorizationState(ctx context.Context, token, authorizer common.Address, nonce [32]byte) (bool, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	CallTransferWithAuthorization(ctx context.Context, priv *ecdsa.PrivateKey, token, from, to common.Address, value, validAfter, validBefore *big.Int, nonce [32]byte, v uint8, r, s [32]byte, gasPrice *big.Int, gasLimit uint64) (common.Hash, error)
	WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Asset is one ERC-20 contract registered with the scheme. An empty
// Version disables x402 for the asset: it is probed and tracked for
// decimals but Create never emits requirements for it.
type Asset struct {
	Address  common.Address
	Name     string
	Version  string
	Decimals uint8
	Domain   eip712.Domain
}

// Scheme is one network's EVM "exact" payment scheme instance.
type Scheme struct {
	network string
	chain   Chain
	admin   *ecdsa.PrivateKey
	assets  map[common.Address]Asset
	nowFunc func() int64
}

// New constructs a Scheme bound to one network and RPC client. admin signs
// the facilitator's own transferWithAuthorization settlement calls.
func New(network string, chain Chain, admin *ecdsa.PrivateKey) *Scheme {
	return &Scheme{
		network: network,
		chain:   chain,
		admin:   admin,
		assets:  make(map[common.Address]Asset),
		nowFunc: func() int64 { return time.Now().Unix() },
	}
}

func (s *Scheme) Scheme() string  { return schemeName }
func (s *Scheme) Network() string { return s.network }

// RegisterAsset attaches one ERC-20 contract to the scheme. It probes
// decimals() and authorizationState(0,0) to confirm the contract speaks
// both ERC-20 and EIP-3009, then caches the token's EIP-712 domain (version
// is part of the domain even when it is empty, since an empty version
// disables x402 for the asset rather than the probe).
func (s *Scheme) RegisterAsset(ctx context.Context, addr common.Address, name, version string) error {
	decimals, err := s.chain.TokenDecimals(ctx, addr)
	if err != nil {
		return fmt.Errorf("evmscheme: probe decimals for %s: %w", addr.Hex(), err)
	}
	var zeroNonce [32]byte
	if _, err := s.chain.AuthorizationState(ctx, addr, common.Address{}, zeroNonce); err != nil {
		return fmt.Errorf("evmscheme: probe authorizationState for %s: %w", addr.Hex(), err)
	}

	s.assets[addr] = Asset{
		Address:  addr,
		Name:     name,
		Version:  version,
		Decimals: decimals,
		Domain: eip712.Domain{
			Name:              name,
			Version:           version,
			ChainID:           s.chain.ChainID(),
			VerifyingContract: addr,
		},
	}
	return nil
}

// Create emits one PaymentRequirements per registered asset with a
// non-empty version, for payee.EVM.
func (s *Scheme) Create(price string, payee facilitator.Payee) []facilitator.PaymentRequirements {
	if payee.EVM == "" {
		return nil
	}
	var out []facilitator.PaymentRequirements
	for addr, asset := range s.assets {
		if asset.Version == "" {
			continue
		}
		extra, _ := json.Marshal(map[string]string{"name": asset.Name, "version": asset.Version})
		out = append(out, facilitator.PaymentRequirements{
			Scheme:            schemeName,
			Network:           s.network,
			MaxAmountRequired: decimal.PriceToAtomic(price, asset.Decimals).String(),
			Asset:             addr.Hex(),
			PayTo:             payee.EVM,
			MaxTimeoutSeconds: maxTimeoutSeconds,
			Extra:             extra,
		})
	}
	return out
}

func invalid(code facilitator.ErrorCode, payer string) facilitator.VerifyResponse {
	return facilitator.VerifyResponse{IsValid: false, InvalidReason: string(code), Payer: payer}
}
