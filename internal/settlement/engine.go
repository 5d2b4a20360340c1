// Package settlement owns the single consumer that reconciles classified
// chain deposits: persisting them, matching them to open sessions,
// notifying the merchant webhook, and driving the on-chain sweep. It is fed
// by every chain scanner's event channel and serializes all sweep work so
// the admin wallet's nonce never races across chains.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"x402facilitator/internal/db"
	"x402facilitator/internal/decimal"
	"x402facilitator/internal/keyderiv"
	"x402facilitator/internal/kvindex"
	"x402facilitator/internal/scanner"
	"x402facilitator/internal/sweep"
	"x402facilitator/internal/webhook"
)

// Token describes one accepted ERC-20 contract on a chain: its decimals
// (for the minor-unit codec) and a short identity label for logging.
type Token struct {
	Address  common.Address
	Decimals uint8
	Identity string
}

// ChainConfig is the settlement-relevant slice of one configured chain:
// its accepted tokens and commission schedule. Chain indices must match
// the index each scanner.Scanner was constructed with.
type ChainConfig struct {
	Name       string
	Tokens     map[common.Address]Token
	Commission sweep.Commission
}

// Store is the repository surface the engine persists through. *db.DB
// satisfies it; tests substitute a fake.
type Store interface {
	GetCustomerByAddress(ctx context.Context, ethAddress string) (*db.Customer, error)
	CreateDeposit(ctx context.Context, customerRef uuid.UUID, amountMinor int64, txHash, chainName, tokenAddress string) (*db.Deposit, error)
	MatchOpenSession(ctx context.Context, customerRef, depositRef uuid.UUID, amountMinor int64) (*db.Session, error)
	MarkSessionSent(ctx context.Context, id uuid.UUID) error
	SettleDeposit(ctx context.Context, id uuid.UUID, settledAmountMinor int64, settledTxHash string) error
	SetScannedBlock(ctx context.Context, chainName string, block int64) error
}

// Hooks is the webhook surface the engine notifies. *webhook.Dispatcher
// satisfies it.
type Hooks interface {
	SessionPaid(ctx context.Context, url, apiKey, sessionID, externalAccount string, amountMinor int32) bool
	SessionSettled(ctx context.Context, url, apiKey, sessionID, externalAccount string, settledAmountMinor int32) bool
	UnknownPaid(ctx context.Context, url, apiKey, externalAccount string, amountMinor int32) bool
	UnknownSettled(ctx context.Context, url, apiKey, externalAccount string, settledAmountMinor int32) bool
}

// Engine is the single consumer of every chain scanner's event stream.
type Engine struct {
	store    Store
	kv       kvindex.Store
	hooks    Hooks
	chains   []ChainConfig
	sweepers []sweep.Chain
	mnemonic string
	admin    keyderiv.Account
	webhook  struct {
		url    string
		apiKey string
	}
	log *slog.Logger
}

// New constructs an Engine. chains and sweepers must be indexed identically
// to the scanners feeding events into Run (ChainIndex is a position into
// both slices). webhookURL/webhookAPIKey are the single configured merchant
// endpoint: every notification goes there, and no per-merchant webhook URL
// is looked up.
func New(store Store, kv kvindex.Store, hooks Hooks, chains []ChainConfig, sweepers []sweep.Chain, mnemonic, webhookURL, webhookAPIKey string, log *slog.Logger) (*Engine, error) {
	admin, err := keyderiv.Derive(mnemonic, keyderiv.AdminMerchantID, keyderiv.AdminCustomerID)
	if err != nil {
		return nil, fmt.Errorf("settlement: derive admin account: %w", err)
	}

	e := &Engine{
		store:    store,
		kv:       kv,
		hooks:    hooks,
		chains:   chains,
		sweepers: sweepers,
		mnemonic: mnemonic,
		admin:    admin,
		log:      log,
	}
	e.webhook.url = webhookURL
	e.webhook.apiKey = webhookAPIKey
	return e, nil
}

// Run drains events until the channel closes or ctx is canceled. It is
// meant to run on its own goroutine as the sole consumer of all scanners.
func (e *Engine) Run(ctx context.Context, events <-chan scanner.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.handle(ctx, ev)
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev scanner.Event) {
	if ev.Scanned != nil {
		e.handleScanned(ctx, ev.Scanned)
		return
	}
	if ev.Deposit != nil {
		e.handleDeposit(ctx, ev.Deposit)
	}
}

func (e *Engine) handleScanned(ctx context.Context, s *scanner.Scanned) {
	chain := e.chainAt(s.ChainIndex)
	if chain == nil {
		return
	}
	if err := e.store.SetScannedBlock(ctx, chain.Name, int64(s.Block)); err != nil {
		e.log.Warn("settlement: failed to persist scan cursor", "chain", chain.Name, "block", s.Block, "err", err)
	}
}

func (e *Engine) handleDeposit(ctx context.Context, d *scanner.Deposit) {
	chain := e.chainAt(d.ChainIndex)
	if chain == nil {
		e.log.Error("settlement: deposit for unconfigured chain index", "chain_index", d.ChainIndex)
		return
	}
	txHash := d.TxHash.Hex()
	log := e.log.With("chain", chain.Name, "tx", txHash, "to", d.To.Hex())

	seen, err := e.kv.SeenBefore(ctx, txHash)
	if err != nil {
		log.Error("settlement: tx-seen lookup failed", "err", err)
		return
	}
	if seen {
		log.Debug("settlement: duplicate transfer log, dropping")
		return
	}

	merchantID, customerID, merchantAddress, err := e.kv.LookupAddress(ctx, d.To.Hex())
	if err != nil {
		log.Debug("settlement: unclassified deposit address, dropping")
		return
	}

	token, ok := chain.Tokens[d.Token]
	if !ok {
		log.Debug("settlement: unrecognized token contract, dropping", "token", d.Token.Hex())
		return
	}

	if err := e.kv.MarkSeen(ctx, txHash); err != nil {
		log.Warn("settlement: failed to mark tx seen", "err", err)
	}

	customer, err := e.store.GetCustomerByAddress(ctx, d.To.Hex())
	if err != nil {
		log.Error("settlement: address classified but no customer row", "err", err)
		return
	}

	amountMinor := int64(decimal.ToMinor(d.Value, token.Decimals))

	deposit, err := e.store.CreateDeposit(ctx, customer.ID, amountMinor, txHash, chain.Name, d.Token.Hex())
	if err != nil {
		log.Error("settlement: failed to persist deposit", "err", err)
		return
	}

	session, err := e.store.MatchOpenSession(ctx, customer.ID, deposit.ID, amountMinor)
	matched := err == nil
	if err != nil && !errors.Is(err, db.ErrSessionNotFound) {
		log.Error("settlement: session match failed", "err", err)
	}

	if matched {
		if e.hooks.SessionPaid(ctx, e.webhook.url, e.webhook.apiKey, session.ID.String(), customer.ExternalAccount, int32(amountMinor)) {
			if err := e.store.MarkSessionSent(ctx, session.ID); err != nil {
				log.Warn("settlement: failed to mark session sent", "err", err)
			}
		}
	} else {
		e.hooks.UnknownPaid(ctx, e.webhook.url, e.webhook.apiKey, customer.ExternalAccount, int32(amountMinor))
	}

	result, err := e.sweepDeposit(ctx, d.ChainIndex, token, d.To, merchantAddress, merchantID, customerID)
	if err != nil {
		log.Error("settlement: sweep failed, deposit left unsettled", "err", err)
		return
	}

	settledMinor := int64(decimal.ToMinor(result.MerchantAmount, token.Decimals))
	if err := e.store.SettleDeposit(ctx, deposit.ID, settledMinor, result.TxHash.Hex()); err != nil {
		log.Error("settlement: failed to record sweep result", "err", err)
		return
	}

	if matched {
		e.hooks.SessionSettled(ctx, e.webhook.url, e.webhook.apiKey, session.ID.String(), customer.ExternalAccount, int32(settledMinor))
	} else {
		e.hooks.UnknownSettled(ctx, e.webhook.url, e.webhook.apiKey, customer.ExternalAccount, int32(settledMinor))
	}
}

func (e *Engine) sweepDeposit(ctx context.Context, chainIndex int, token Token, depositAddr common.Address, merchantAddress string, merchantID, customerID int32) (sweep.Result, error) {
	if chainIndex < 0 || chainIndex >= len(e.sweepers) {
		return sweep.Result{}, fmt.Errorf("no sweeper configured for chain index %d", chainIndex)
	}

	customerAccount, err := keyderiv.Derive(e.mnemonic, uint32(merchantID), uint32(customerID))
	if err != nil {
		return sweep.Result{}, fmt.Errorf("derive customer key: %w", err)
	}
	customerKey, err := crypto.HexToECDSA(customerAccount.PrivateKeyHex)
	if err != nil {
		return sweep.Result{}, fmt.Errorf("parse customer key: %w", err)
	}
	adminKey, err := crypto.HexToECDSA(e.admin.PrivateKeyHex)
	if err != nil {
		return sweep.Result{}, fmt.Errorf("parse admin key: %w", err)
	}

	return sweep.Sweep(ctx, e.sweepers[chainIndex], token.Address, depositAddr,
		common.HexToAddress(merchantAddress), common.HexToAddress(e.admin.Address),
		customerKey, adminKey, e.chains[chainIndex].Commission)
}

func (e *Engine) chainAt(index int) *ChainConfig {
	if index < 0 || index >= len(e.chains) {
		return nil
	}
	return &e.chains[index]
}
