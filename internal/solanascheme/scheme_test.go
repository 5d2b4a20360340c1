package solanascheme

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"x402facilitator/internal/facilitator"
)

func TestNew_RejectsMalformedPayToAddress(t *testing.T) {
	_, err := New("solana-mainnet", "not-a-base58-pubkey!!")
	assert.Error(t, err)
}

func TestNew_AcceptsValidPayToAddress(t *testing.T) {
	s, err := New("solana-mainnet", "11111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, "solana-mainnet", s.Network())
}

func TestCreate_NeverContributesRequirements(t *testing.T) {
	s, err := New("solana-mainnet", "")
	require.NoError(t, err)
	assert.Nil(t, s.Create("1.00", facilitator.Payee{Solana: "11111111111111111111111111111111"}))
}

func TestVerify_AlwaysInvalidScheme(t *testing.T) {
	s, err := New("solana-mainnet", "")
	require.NoError(t, err)
	resp := s.Verify(context.Background(), facilitator.VerifyRequest{})
	assert.False(t, resp.IsValid)
	assert.Equal(t, string(facilitator.ErrInvalidScheme), resp.InvalidReason)
}
