package facilitator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheme struct {
	scheme, network string
	verifyResult    VerifyResponse
	settleResult    SettlementResponse
	settleCalled    bool
}

func (f *fakeScheme) Scheme() string  { return f.scheme }
func (f *fakeScheme) Network() string { return f.network }

func (f *fakeScheme) Create(price string, payee Payee) []PaymentRequirements {
	if payee.EVM == "" {
		return nil
	}
	return []PaymentRequirements{{Scheme: f.scheme, Network: f.network, PayTo: payee.EVM, MaxAmountRequired: price}}
}

func (f *fakeScheme) Verify(ctx context.Context, req VerifyRequest) VerifyResponse {
	return f.verifyResult
}

func (f *fakeScheme) Settle(ctx context.Context, req VerifyRequest) SettlementResponse {
	f.settleCalled = true
	return f.settleResult
}

func TestCreate_ConcatenatesAcrossSchemes(t *testing.T) {
	f := New()
	f.Register(&fakeScheme{scheme: "exact", network: "base-sepolia"})
	f.Register(&fakeScheme{scheme: "exact", network: "ethereum-mainnet"})

	resp := f.Create("1.00", Payee{EVM: "0xmerchant"})
	assert.Equal(t, X402Version, resp.X402Version)
	assert.Len(t, resp.Accepts, 2)
}

func TestCreate_SchemeSkipsWhenPayeeFamilyMissing(t *testing.T) {
	f := New()
	f.Register(&fakeScheme{scheme: "exact", network: "base-sepolia"})

	resp := f.Create("1.00", Payee{Solana: "sol-address"})
	assert.Empty(t, resp.Accepts)
}

func TestVerify_DispatchesByPayloadSchemeAndNetwork(t *testing.T) {
	f := New()
	scheme := &fakeScheme{scheme: "exact", network: "base-sepolia", verifyResult: VerifyResponse{IsValid: true, Payer: "0xpayer"}}
	f.Register(scheme)

	req := VerifyRequest{PaymentPayload: PaymentPayload{Scheme: "exact", Network: "base-sepolia"}}
	resp := f.Verify(context.Background(), req)
	assert.True(t, resp.IsValid)
	assert.Equal(t, "0xpayer", resp.Payer)
}

func TestVerify_UnregisteredPairFailsClosed(t *testing.T) {
	f := New()
	req := VerifyRequest{
		PaymentPayload: PaymentPayload{
			Scheme:  "exact",
			Network: "unknown-network",
			Payload: SchemePayload{Authorization: Authorization{From: "0xpayer"}},
		},
	}
	resp := f.Verify(context.Background(), req)
	require.False(t, resp.IsValid)
	assert.Equal(t, string(ErrUnsupportedScheme), resp.InvalidReason)
	assert.Equal(t, "0xpayer", resp.Payer)
}

func TestSettle_SkipsSchemeWhenVerifyFails(t *testing.T) {
	f := New()
	scheme := &fakeScheme{
		scheme:       "exact",
		network:      "base-sepolia",
		verifyResult: VerifyResponse{IsValid: false, InvalidReason: string(ErrInsufficientFunds)},
	}
	f.Register(scheme)

	req := VerifyRequest{PaymentPayload: PaymentPayload{Scheme: "exact", Network: "base-sepolia"}}
	resp := f.Settle(context.Background(), req)

	require.False(t, resp.Success)
	assert.Equal(t, string(ErrInsufficientFunds), resp.ErrorReason)
	assert.False(t, scheme.settleCalled)
}

func TestSettle_DispatchesAfterSuccessfulVerify(t *testing.T) {
	f := New()
	scheme := &fakeScheme{
		scheme:       "exact",
		network:      "base-sepolia",
		verifyResult: VerifyResponse{IsValid: true},
		settleResult: SettlementResponse{Success: true, Transaction: "0xsettletx"},
	}
	f.Register(scheme)

	req := VerifyRequest{PaymentPayload: PaymentPayload{Scheme: "exact", Network: "base-sepolia"}}
	resp := f.Settle(context.Background(), req)

	require.True(t, scheme.settleCalled)
	assert.True(t, resp.Success)
	assert.Equal(t, "0xsettletx", resp.Transaction)
}

func TestSupport_EnumeratesRegisteredPairs(t *testing.T) {
	f := New()
	f.Register(&fakeScheme{scheme: "exact", network: "base-sepolia"})
	f.Register(&fakeScheme{scheme: "exact", network: "ethereum-mainnet"})

	resp := f.Support()
	assert.Len(t, resp.Kinds, 2)
}

func TestDiscovery_AppliesDefaultsAndClampsLimit(t *testing.T) {
	f := New()

	resp := f.Discovery(DiscoveryRequest{})
	assert.Equal(t, defaultDiscoveryLimit, resp.Pagination.Limit)
	assert.Equal(t, 0, resp.Pagination.Offset)
	assert.Empty(t, resp.Items)

	resp = f.Discovery(DiscoveryRequest{Limit: 5000, Offset: -3})
	assert.Equal(t, maxDiscoveryLimit, resp.Pagination.Limit)
	assert.Equal(t, 0, resp.Pagination.Offset)
}
