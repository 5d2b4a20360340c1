package clientsigner

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"x402facilitator/internal/eip712"
	"x402facilitator/internal/facilitator"
)

type fakeChain struct{ chainID *big.Int }

func (f *fakeChain) ChainID() *big.Int { return f.chainID }

const tokenHex = "0x1000000000000000000000000000000000000001"

func newTestSigner(t *testing.T) (*Signer, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	s := New()
	s.Register("exact", "base-sepolia", Method{Chain: &fakeChain{chainID: big.NewInt(84532)}, PrivateKey: priv})
	require.NoError(t, s.RegisterAsset("exact", "base-sepolia", common.HexToAddress(tokenHex), "USDC", "2"))
	return s, priv
}

func TestBuild_SignsFirstMatchingRequirement(t *testing.T) {
	s, priv := newTestSigner(t)
	from := crypto.PubkeyToAddress(priv.PublicKey)

	reqs := []facilitator.PaymentRequirements{
		{Scheme: "exact", Network: "unregistered-network", Asset: tokenHex, PayTo: "0x2000000000000000000000000000000000000002", MaxAmountRequired: "1000"},
		{Scheme: "exact", Network: "base-sepolia", Asset: tokenHex, PayTo: "0x2000000000000000000000000000000000000002", MaxAmountRequired: "1000", MaxTimeoutSeconds: 300},
	}

	payload, chosen, err := s.Build(reqs)
	require.NoError(t, err)
	assert.Equal(t, "base-sepolia", chosen.Network)
	assert.Equal(t, from.Hex(), payload.Payload.Authorization.From)
	assert.Equal(t, "0", payload.Payload.Authorization.ValidAfter)
	assert.NotEmpty(t, payload.Payload.Signature)

	domain := s.domains[identity("exact", "base-sepolia")][common.HexToAddress(tokenHex)]
	var nonce [32]byte
	copy(nonce[:], common.FromHex(payload.Payload.Authorization.Nonce))
	auth := eip712.Authorization{
		From:        from,
		To:          common.HexToAddress(chosen.PayTo),
		Value:       big.NewInt(1000),
		ValidAfter:  big.NewInt(0),
		ValidBefore: mustParseBig(t, payload.Payload.Authorization.ValidBefore),
		Nonce:       nonce,
	}
	recovered, err := eip712.Verify(domain, auth, common.FromHex(payload.Payload.Signature))
	require.NoError(t, err)
	assert.Equal(t, from, recovered)
}

func TestBuild_NoMatchReturnsErrNoMatch(t *testing.T) {
	s, _ := newTestSigner(t)
	reqs := []facilitator.PaymentRequirements{{Scheme: "exact", Network: "other-network", Asset: tokenHex}}

	_, _, err := s.Build(reqs)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func mustParseBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return v
}
