package httpapi

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"

	"x402facilitator/internal/db"
)

// MerchantStore is the merchant lookup surface session routes need.
type MerchantStore interface {
	GetMerchantByAPIKey(ctx context.Context, apiKey string) (*db.Merchant, error)
}

// merchantLocalsKey is the Locals key requireMerchant stores the resolved
// merchant record under.
const merchantLocalsKey = "merchant"

// requireMerchant resolves a Bearer API key to a merchant record and stores
// it in Locals for downstream session handlers. Unlike the x402 surface,
// which authenticates payers by on-chain signature, session creation is
// merchant-initiated and needs an out-of-band identity.
func (s *Server) requireMerchant(c fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
	}

	merchant, err := s.store.GetMerchantByAPIKey(c.Context(), parts[1])
	if err != nil {
		if errors.Is(err, db.ErrMerchantNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid api key")
		}
		s.log.Error("httpapi: merchant lookup failed", "err", err)
		return fiber.NewError(fiber.StatusInternalServerError, "internal server error")
	}

	c.Locals(merchantLocalsKey, merchant)
	return c.Next()
}

func merchantFromContext(c fiber.Ctx) *db.Merchant {
	m, _ := c.Locals(merchantLocalsKey).(*db.Merchant)
	return m
}
