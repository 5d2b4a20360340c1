package httpapi

import (
	"github.com/gofiber/fiber/v3"

	"x402facilitator/internal/facilitator"
)

type requirementsRequest struct {
	Price string `json:"price"`
	Payee struct {
		EVM    string `json:"evm,omitempty"`
		Solana string `json:"solana,omitempty"`
	} `json:"payee"`
}

// requirements builds a PaymentRequirementsResponse for every scheme that
// can serve the requested payee, per spec.md §4.8's create(price, payee).
func (s *Server) requirements(c fiber.Ctx) error {
	var req requirementsRequest
	if err := c.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Price == "" {
		return fiber.NewError(fiber.StatusBadRequest, "price is required")
	}

	payee := facilitator.Payee{EVM: req.Payee.EVM, Solana: req.Payee.Solana}
	return c.JSON(s.fac.Create(req.Price, payee))
}

// payments verifies then settles a payment payload in one call, per
// spec.md §6's "verify-then-settle" contract.
func (s *Server) payments(c fiber.Ctx) error {
	var req facilitator.VerifyRequest
	if err := c.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	return c.JSON(s.fac.Settle(c.Context(), req))
}

func (s *Server) support(c fiber.Ctx) error {
	return c.JSON(s.fac.Support())
}

type discoveryQuery struct {
	Type   string `query:"type"`
	Limit  int    `query:"limit"`
	Offset int    `query:"offset"`
}

func (s *Server) discovery(c fiber.Ctx) error {
	var q discoveryQuery
	if err := c.Bind().Query(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid query parameters")
	}

	return c.JSON(s.fac.Discovery(facilitator.DiscoveryRequest{
		Type:   q.Type,
		Limit:  q.Limit,
		Offset: q.Offset,
	}))
}
