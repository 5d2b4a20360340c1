// Package scanner polls one EVM chain for ERC-20 Transfer logs in bounded
// block ranges and emits typed events onto a shared channel, never touching
// persistent state directly.
package scanner

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"x402facilitator/internal/evmchain"
)

const (
	maxBlocksPerScan = 100

	catchUpInterval = 1 * time.Second
	steadyInterval  = 10 * time.Second
	idleInterval    = 15 * time.Second
	errorInterval   = 30 * time.Second
)

// Chain is the subset of evmchain.Client the scanner needs.
type Chain interface {
	LatestBlock(ctx context.Context) (uint64, error)
	FilterTransfers(ctx context.Context, contracts []common.Address, fromBlock, toBlock uint64) ([]evmchain.TransferLog, error)
}

// Deposit is one classified ERC-20 Transfer event, emitted for every log in
// range regardless of whether its destination address is known to the
// settlement engine.
type Deposit struct {
	ChainIndex int
	Token      common.Address
	To         common.Address
	Value      *big.Int
	TxHash     common.Hash
}

// Scanned reports the chain's cursor advancing to a new block.
type Scanned struct {
	ChainIndex int
	Block      uint64
}

// Event is the sum type a Scanner emits: exactly one of Deposit or Scanned
// is non-nil.
type Event struct {
	Deposit *Deposit
	Scanned *Scanned
}

// Scanner polls one chain's configured token contracts for Transfer events.
type Scanner struct {
	index            int
	chain            Chain
	latencyBlocks    uint64
	contracts        []common.Address
	lastScannedBlock uint64
	events           chan<- Event
	log              *slog.Logger
}

// New constructs a Scanner. If lastScannedBlock is 0, the scanner starts
// from the chain's current tip at Run time rather than scanning from
// genesis.
func New(index int, chain Chain, latencyBlocks uint64, contracts []common.Address, lastScannedBlock uint64, events chan<- Event, log *slog.Logger) *Scanner {
	return &Scanner{
		index:            index,
		chain:            chain,
		latencyBlocks:    latencyBlocks,
		contracts:        contracts,
		lastScannedBlock: lastScannedBlock,
		events:           events,
		log:              log,
	}
}

// Run blocks, polling until ctx is canceled. It is meant to be launched in
// its own goroutine, one per configured chain.
func (s *Scanner) Run(ctx context.Context) {
	if s.lastScannedBlock == 0 {
		latest, err := s.chain.LatestBlock(ctx)
		if err != nil {
			s.log.Error("scanner: initial block fetch failed", "chain_index", s.index, "err", err)
		} else {
			s.lastScannedBlock = latest
		}
	}

	for {
		interval, err := s.scanIteration(ctx)
		if err != nil {
			s.log.Error("scanner: scan error", "chain_index", s.index, "err", err)
			interval = errorInterval
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// scanIteration performs one bounded range scan and returns the interval to
// sleep before the next one.
func (s *Scanner) scanIteration(ctx context.Context) (time.Duration, error) {
	latest, err := s.chain.LatestBlock(ctx)
	if err != nil {
		return 0, err
	}
	if latest < s.latencyBlocks {
		return idleInterval, nil
	}
	latest -= s.latencyBlocks

	if latest <= s.lastScannedBlock {
		return idleInterval, nil
	}

	from := s.lastScannedBlock + 1
	to := from + maxBlocksPerScan
	if latest < to {
		to = latest
	}

	logs, err := s.chain.FilterTransfers(ctx, s.contracts, from, to)
	if err != nil {
		return 0, err
	}

	for _, l := range logs {
		s.events <- Event{Deposit: &Deposit{
			ChainIndex: s.index,
			Token:      l.Token,
			To:         l.To,
			Value:      l.Value,
			TxHash:     l.TxHash,
		}}
	}

	s.events <- Event{Scanned: &Scanned{ChainIndex: s.index, Block: to}}

	scannedBlocks := to - from + 1
	s.lastScannedBlock = to

	if scannedBlocks >= maxBlocksPerScan {
		return catchUpInterval, nil
	}
	return steadyInterval, nil
}
