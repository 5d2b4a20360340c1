package httpapi

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"x402facilitator/internal/db"
	"x402facilitator/internal/keyderiv"
)

// SessionStore is the customer/session repository surface session routes
// depend on. *db.DB satisfies it.
type SessionStore interface {
	NextCustomerSeq(ctx context.Context) (uint32, error)
	CreateCustomer(ctx context.Context, merchantRef, externalAccount, ethAddress string, customerSeq uint32) (*db.Customer, error)
	GetCustomerByMerchantRef(ctx context.Context, merchantRef, externalAccount string) (*db.Customer, error)
	GetCustomerByID(ctx context.Context, id uuid.UUID) (*db.Customer, error)
	CreateSession(ctx context.Context, customerRef uuid.UUID, amountMinor int64) (*db.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*db.Session, error)
	Ping(ctx context.Context) error
}

type createSessionRequest struct {
	ExternalAccount string `json:"external_account"`
	AmountMinor     int64  `json:"amount_minor"`
}

type sessionResponse struct {
	ID              string `json:"id"`
	ExternalAccount string `json:"external_account"`
	DepositAddress  string `json:"deposit_address"`
	AmountMinor     int64  `json:"amount_minor"`
	Sent            bool   `json:"sent"`
	ExpiresAt       int64  `json:"expires_at"`
}

// createSession resolves or provisions the requesting merchant's customer
// for external_account, deriving and indexing its deposit address on first
// use, then opens a session for amount_minor.
func (s *Server) createSession(c fiber.Ctx) error {
	merchant := merchantFromContext(c)

	var req createSessionRequest
	if err := c.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.ExternalAccount == "" {
		return fiber.NewError(fiber.StatusBadRequest, "external_account is required")
	}
	if req.AmountMinor <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "amount_minor must be positive")
	}

	ctx := c.Context()
	merchantRef := merchant.ID.String()

	customer, err := s.store.GetCustomerByMerchantRef(ctx, merchantRef, req.ExternalAccount)
	if errors.Is(err, db.ErrCustomerNotFound) {
		customer, err = s.provisionCustomer(ctx, merchant, merchantRef, req.ExternalAccount)
	}
	if err != nil {
		s.log.Error("httpapi: resolve customer failed", "err", err)
		return fiber.NewError(fiber.StatusInternalServerError, "internal server error")
	}

	session, err := s.store.CreateSession(ctx, customer.ID, req.AmountMinor)
	if err != nil {
		s.log.Error("httpapi: create session failed", "err", err)
		return fiber.NewError(fiber.StatusInternalServerError, "internal server error")
	}

	return c.Status(fiber.StatusCreated).JSON(sessionToResponse(session, customer))
}

// provisionCustomer derives a fresh deposit address for (merchant,
// externalAccount) and persists the customer row plus the fast-path
// address index entry, in that order — NextCustomerSeq is reserved before
// the address is known so the address can be computed before the
// eth_address-NOT-NULL insert happens.
func (s *Server) provisionCustomer(ctx context.Context, merchant *db.Merchant, merchantRef, externalAccount string) (*db.Customer, error) {
	seq, err := s.store.NextCustomerSeq(ctx)
	if err != nil {
		return nil, err
	}

	account, err := keyderiv.Derive(s.mnemonic, merchant.MerchantSeq, seq)
	if err != nil {
		return nil, err
	}

	customer, err := s.store.CreateCustomer(ctx, merchantRef, externalAccount, account.Address, seq)
	if err != nil {
		return nil, err
	}

	// A failure here leaves the deposit address unclassifiable by the
	// settlement engine until re-indexed; surfaced at error level since it
	// is not transient the way a scan retry is.
	if err := s.kv.SetAddress(ctx, account.Address, int32(merchant.MerchantSeq), int32(seq), merchant.PayoutAddress); err != nil {
		s.log.Error("httpapi: failed to index deposit address", "err", err)
	}

	return customer, nil
}

// getSession returns a session the requesting merchant's API key owns.
// Ownership is checked via the customer's merchant_ref rather than a
// sessions.merchant_ref column, since sessions only ever reference a
// customer already scoped to one merchant.
func (s *Server) getSession(c fiber.Ctx) error {
	merchant := merchantFromContext(c)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid session id")
	}

	session, err := s.store.GetSession(c.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrSessionNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		s.log.Error("httpapi: get session failed", "err", err)
		return fiber.NewError(fiber.StatusInternalServerError, "internal server error")
	}

	customer, err := s.store.GetCustomerByID(c.Context(), session.CustomerRef)
	if err != nil {
		s.log.Error("httpapi: resolve session owner failed", "err", err)
		return fiber.NewError(fiber.StatusInternalServerError, "internal server error")
	}
	if customer.MerchantRef != merchant.ID.String() {
		return fiber.NewError(fiber.StatusNotFound, "session not found")
	}

	return c.JSON(sessionToResponse(session, customer))
}

func sessionToResponse(session *db.Session, customer *db.Customer) sessionResponse {
	return sessionResponse{
		ID:              session.ID.String(),
		ExternalAccount: customer.ExternalAccount,
		DepositAddress:  customer.EthAddress,
		AmountMinor:     session.AmountMinor,
		Sent:            session.Sent,
		ExpiresAt:       session.ExpiresAt.Unix(),
	}
}
