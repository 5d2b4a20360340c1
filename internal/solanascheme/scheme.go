// Package solanascheme is a placeholder x402 scheme for Solana. Non-EVM
// chains are out of scope; this exists only so the facilitator's registry
// can name a "sol" identity and reject it cleanly rather than treating
// Solana payloads as unsupported-scheme noise indistinguishable from a
// genuine typo.
package solanascheme

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"x402facilitator/internal/facilitator"
)

const schemeName = "exact"

// Scheme never accepts a payment; Create always returns nothing, and
// Verify/Settle always fail with InvalidScheme. It validates a payee
// address's base58 shape so misconfiguration at registration is caught
// immediately rather than surfacing as an opaque verify failure later.
type Scheme struct {
	network string
}

// New constructs a Scheme for network, after confirming payTo parses as a
// Solana public key.
func New(network, payTo string) (*Scheme, error) {
	if payTo != "" {
		if _, err := solana.PublicKeyFromBase58(payTo); err != nil {
			return nil, err
		}
	}
	return &Scheme{network: network}, nil
}

func (s *Scheme) Scheme() string  { return schemeName }
func (s *Scheme) Network() string { return s.network }

// Create never contributes requirements: there is no settlement path to
// back them.
func (s *Scheme) Create(price string, payee facilitator.Payee) []facilitator.PaymentRequirements {
	return nil
}

func (s *Scheme) Verify(ctx context.Context, req facilitator.VerifyRequest) facilitator.VerifyResponse {
	return facilitator.VerifyResponse{
		IsValid:       false,
		InvalidReason: string(facilitator.ErrInvalidScheme),
		Payer:         req.PaymentPayload.Payload.Authorization.From,
	}
}

func (s *Scheme) Settle(ctx context.Context, req facilitator.VerifyRequest) facilitator.SettlementResponse {
	return facilitator.SettlementResponse{
		Success:     false,
		ErrorReason: string(facilitator.ErrInvalidScheme),
		Network:     s.network,
		Payer:       req.PaymentPayload.Payload.Authorization.From,
	}
}
