// Package clientsigner is the symmetric counterpart to internal/evmscheme:
// given a PaymentRequirements list offered by a resource, it picks the
// first one this client can pay and produces a signed PaymentPayload.
package clientsigner

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"x402facilitator/internal/eip712"
	"x402facilitator/internal/facilitator"
)

// ErrNoMatch is returned by Build when no requirement in the offered list
// names a registered (scheme, network) and an asset registered under it.
var ErrNoMatch = errors.New("clientsigner: no matched scheme and network")

// Chain is the subset of evmchain.Client a signer needs: its chain ID, for
// building the EIP-712 domain of a registered asset.
type Chain interface {
	ChainID() *big.Int
}

// Method is one network's signing capability: an RPC connection (to learn
// chain ID) and the private key that authorizes spends.
type Method struct {
	Chain      Chain
	PrivateKey *ecdsa.PrivateKey
}

// Signer is a registry from "{scheme}-{network}" to a signing Method, with
// per-asset EIP-712 domains cached at registration.
type Signer struct {
	methods map[string]Method
	domains map[string]map[common.Address]eip712.Domain
	nowFunc func() int64
}

// New returns an empty Signer.
func New() *Signer {
	return &Signer{
		methods: make(map[string]Method),
		domains: make(map[string]map[common.Address]eip712.Domain),
		nowFunc: func() int64 { return time.Now().Unix() },
	}
}

func identity(scheme, network string) string {
	return scheme + "-" + network
}

// Register attaches a signing Method to a (scheme, network) pair.
func (s *Signer) Register(scheme, network string, method Method) {
	s.methods[identity(scheme, network)] = method
}

// RegisterAsset caches the EIP-712 domain for one token contract under an
// already-registered (scheme, network), using the method's chain ID.
func (s *Signer) RegisterAsset(scheme, network string, token common.Address, name, version string) error {
	id := identity(scheme, network)
	method, ok := s.methods[id]
	if !ok {
		return errors.New("clientsigner: register method before registering an asset")
	}
	if s.domains[id] == nil {
		s.domains[id] = make(map[common.Address]eip712.Domain)
	}
	s.domains[id][token] = eip712.Domain{
		Name:              name,
		Version:           version,
		ChainID:           method.Chain.ChainID(),
		VerifyingContract: token,
	}
	return nil
}

// Build picks the first requirement whose (scheme, network, asset) is
// registered and returns a signed PaymentPayload for it, alongside the
// chosen requirement.
func (s *Signer) Build(requirements []facilitator.PaymentRequirements) (facilitator.PaymentPayload, facilitator.PaymentRequirements, error) {
	for _, pr := range requirements {
		id := identity(pr.Scheme, pr.Network)
		method, ok := s.methods[id]
		if !ok {
			continue
		}
		domain, ok := s.domains[id][common.HexToAddress(pr.Asset)]
		if !ok {
			continue
		}
		payload, err := s.sign(method, domain, pr)
		if err != nil {
			return facilitator.PaymentPayload{}, facilitator.PaymentRequirements{}, err
		}
		return payload, pr, nil
	}
	return facilitator.PaymentPayload{}, facilitator.PaymentRequirements{}, ErrNoMatch
}

func (s *Signer) sign(method Method, domain eip712.Domain, pr facilitator.PaymentRequirements) (facilitator.PaymentPayload, error) {
	from := crypto.PubkeyToAddress(method.PrivateKey.PublicKey)
	to := common.HexToAddress(pr.PayTo)

	value, ok := new(big.Int).SetString(pr.MaxAmountRequired, 10)
	if !ok {
		return facilitator.PaymentPayload{}, errors.New("clientsigner: invalid maxAmountRequired")
	}

	now := s.nowFunc()
	validBefore := now + int64(pr.MaxTimeoutSeconds)
	nonce := buildNonce(from, now, pr.PayTo)

	auth := eip712.Authorization{
		From:        from,
		To:          to,
		Value:       value,
		ValidAfter:  big.NewInt(0),
		ValidBefore: big.NewInt(validBefore),
		Nonce:       nonce,
	}

	sig, err := eip712.Sign(domain, auth, method.PrivateKey)
	if err != nil {
		return facilitator.PaymentPayload{}, err
	}

	return facilitator.PaymentPayload{
		X402Version: facilitator.X402Version,
		Scheme:      pr.Scheme,
		Network:     pr.Network,
		Payload: facilitator.SchemePayload{
			Signature: hexutil.Encode(sig),
			Authorization: facilitator.Authorization{
				From:        from.Hex(),
				To:          to.Hex(),
				Value:       pr.MaxAmountRequired,
				ValidAfter:  "0",
				ValidBefore: strconv.FormatInt(validBefore, 10),
				Nonce:       hexutil.Encode(nonce[:]),
			},
		},
	}, nil
}

// buildNonce derives a 32-byte nonce as keccak256(from || now_decimal ||
// pay_to), giving each signed payload a nonce unlikely to repeat across
// requests from the same address without a counter or RNG dependency.
func buildNonce(from common.Address, now int64, payTo string) [32]byte {
	input := append([]byte{}, from.Bytes()...)
	input = append(input, []byte(strconv.FormatInt(now, 10))...)
	input = append(input, []byte(payTo)...)
	return crypto.Keccak256Hash(input)
}
