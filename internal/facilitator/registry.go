package facilitator

import "context"

// Scheme is the capability interface a payment scheme implements. The
// Facilitator indexes schemes by "{scheme}-{network}"; a scheme instance is
// bound to exactly one network.
type Scheme interface {
	Scheme() string
	Network() string
	Create(price string, payee Payee) []PaymentRequirements
	Verify(ctx context.Context, req VerifyRequest) VerifyResponse
	Settle(ctx context.Context, req VerifyRequest) SettlementResponse
}

// Facilitator dispatches verify/settle/create/support/discovery to the
// scheme registered for a request's (scheme, network) pair. It owns the
// registry map directly; there is no global singleton.
type Facilitator struct {
	schemes map[string]Scheme
}

// New returns an empty Facilitator.
func New() *Facilitator {
	return &Facilitator{schemes: make(map[string]Scheme)}
}

// Register adds a scheme to the registry, keyed by its own (scheme,
// network). Registering a second scheme under the same pair replaces the
// first.
func (f *Facilitator) Register(s Scheme) {
	f.schemes[identity(s.Scheme(), s.Network())] = s
}

func identity(scheme, network string) string {
	return scheme + "-" + network
}

// Create concatenates the requirements every registered scheme can serve
// for payee.
func (f *Facilitator) Create(price string, payee Payee) PaymentRequirementsResponse {
	var accepts []PaymentRequirements
	for _, s := range f.schemes {
		accepts = append(accepts, s.Create(price, payee)...)
	}
	return PaymentRequirementsResponse{
		X402Version: X402Version,
		Accepts:     accepts,
	}
}

// Verify dispatches to the scheme named by the payload's (scheme, network).
// An unregistered pair fails closed with ErrUnsupportedScheme rather than
// reaching any scheme code.
func (f *Facilitator) Verify(ctx context.Context, req VerifyRequest) VerifyResponse {
	s, ok := f.schemes[identity(req.PaymentPayload.Scheme, req.PaymentPayload.Network)]
	if !ok {
		return VerifyResponse{
			IsValid:       false,
			InvalidReason: string(ErrUnsupportedScheme),
			Payer:         req.PaymentPayload.Payload.Authorization.From,
		}
	}
	return s.Verify(ctx, req)
}

// Settle verifies req and, only on success, dispatches settlement to the
// owning scheme. A verification failure is reported as a settlement
// failure carrying the same reason, without ever reaching the scheme's
// settle path.
func (f *Facilitator) Settle(ctx context.Context, req VerifyRequest) SettlementResponse {
	verify := f.Verify(ctx, req)
	if !verify.IsValid {
		return SettlementResponse{
			Success:     false,
			ErrorReason: verify.InvalidReason,
			Network:     req.PaymentPayload.Network,
			Payer:       req.PaymentPayload.Payload.Authorization.From,
		}
	}
	s := f.schemes[identity(req.PaymentPayload.Scheme, req.PaymentPayload.Network)]
	return s.Settle(ctx, req)
}

// Support enumerates every registered (scheme, network) pair.
func (f *Facilitator) Support() SupportedResponse {
	kinds := make([]SupportedScheme, 0, len(f.schemes))
	for _, s := range f.schemes {
		kinds = append(kinds, SupportedScheme{
			X402Version: X402Version,
			Scheme:      s.Scheme(),
			Network:     s.Network(),
		})
	}
	return SupportedResponse{Kinds: kinds}
}

const (
	defaultDiscoveryLimit = 20
	maxDiscoveryLimit     = 100
)

// Discovery returns the paginated discovery envelope. Item population is
// an integration concern left to whatever wires real resources into the
// facilitator; this guarantees only the envelope and pagination shape.
func (f *Facilitator) Discovery(req DiscoveryRequest) DiscoveryResponse {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultDiscoveryLimit
	}
	if limit > maxDiscoveryLimit {
		limit = maxDiscoveryLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	return DiscoveryResponse{
		X402Version: X402Version,
		Items:       []DiscoveryItem{},
		Pagination: Pagination{
			Limit:  limit,
			Offset: offset,
			Total:  0,
		},
	}
}
