package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"x402facilitator/internal/db"
	"x402facilitator/internal/facilitator"
)

var errDuplicateCustomer = errors.New("fakeStore: customer already exists")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	merchants     map[string]*db.Merchant
	customers     map[uuid.UUID]*db.Customer
	customersByMR map[string]*db.Customer
	sessions      map[uuid.UUID]*db.Session
	nextSeq       uint32
	pingErr       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		merchants:     make(map[string]*db.Merchant),
		customers:     make(map[uuid.UUID]*db.Customer),
		customersByMR: make(map[string]*db.Customer),
		sessions:      make(map[uuid.UUID]*db.Session),
	}
}

func (s *fakeStore) addMerchant(m *db.Merchant) {
	s.merchants[m.APIKey] = m
}

func (s *fakeStore) GetMerchantByAPIKey(ctx context.Context, apiKey string) (*db.Merchant, error) {
	m, ok := s.merchants[apiKey]
	if !ok {
		return nil, db.ErrMerchantNotFound
	}
	return m, nil
}

func (s *fakeStore) NextCustomerSeq(ctx context.Context) (uint32, error) {
	s.nextSeq++
	return s.nextSeq, nil
}

func customerKey(merchantRef, externalAccount string) string {
	return merchantRef + "|" + externalAccount
}

func (s *fakeStore) CreateCustomer(ctx context.Context, merchantRef, externalAccount, ethAddress string, customerSeq uint32) (*db.Customer, error) {
	key := customerKey(merchantRef, externalAccount)
	if _, exists := s.customersByMR[key]; exists {
		return nil, errDuplicateCustomer
	}
	c := &db.Customer{
		ID:              uuid.New(),
		MerchantRef:     merchantRef,
		ExternalAccount: externalAccount,
		EthAddress:      ethAddress,
		CustomerSeq:     customerSeq,
		UpdatedAt:       time.Now().UTC(),
	}
	s.customers[c.ID] = c
	s.customersByMR[key] = c
	return c, nil
}

func (s *fakeStore) GetCustomerByMerchantRef(ctx context.Context, merchantRef, externalAccount string) (*db.Customer, error) {
	c, ok := s.customersByMR[customerKey(merchantRef, externalAccount)]
	if !ok {
		return nil, db.ErrCustomerNotFound
	}
	return c, nil
}

func (s *fakeStore) GetCustomerByID(ctx context.Context, id uuid.UUID) (*db.Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return nil, db.ErrCustomerNotFound
	}
	return c, nil
}

func (s *fakeStore) CreateSession(ctx context.Context, customerRef uuid.UUID, amountMinor int64) (*db.Session, error) {
	now := time.Now().UTC()
	session := &db.Session{
		ID:          uuid.New(),
		CustomerRef: customerRef,
		AmountMinor: amountMinor,
		CreatedAt:   now,
		ExpiresAt:   now.Add(db.SessionTTL),
	}
	s.sessions[session.ID] = session
	return session, nil
}

func (s *fakeStore) GetSession(ctx context.Context, id uuid.UUID) (*db.Session, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, db.ErrSessionNotFound
	}
	return session, nil
}

func (s *fakeStore) Ping(ctx context.Context) error {
	return s.pingErr
}

// fakeScheme is a minimal facilitator.Scheme used to exercise requirements/
// payments routing without a real chain.
type fakeScheme struct {
	scheme, network string
	verifyResp      facilitator.VerifyResponse
	settleResp      facilitator.SettlementResponse
}

func (f *fakeScheme) Scheme() string  { return f.scheme }
func (f *fakeScheme) Network() string { return f.network }

func (f *fakeScheme) Create(price string, payee facilitator.Payee) []facilitator.PaymentRequirements {
	if payee.EVM == "" {
		return nil
	}
	return []facilitator.PaymentRequirements{{
		Scheme:  f.scheme,
		Network: f.network,
		Asset:   "0xAsset",
		PayTo:   payee.EVM,
	}}
}

func (f *fakeScheme) Verify(ctx context.Context, req facilitator.VerifyRequest) facilitator.VerifyResponse {
	return f.verifyResp
}

func (f *fakeScheme) Settle(ctx context.Context, req facilitator.VerifyRequest) facilitator.SettlementResponse {
	return f.settleResp
}
