package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"x402facilitator/internal/config"
	"x402facilitator/internal/scanner"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestResolveAdminKey_PrefersExplicitChainsFileAdmin(t *testing.T) {
	cfg := &config.Config{Mnemonic: testMnemonic}
	entry := &config.ChainEntry{
		ChainName: "base-sepolia",
		Admin:     "not-a-valid-private-key",
	}

	_, err := resolveAdminKey(cfg, entry)
	require.Error(t, err, "malformed hex confirms the explicit admin path was taken rather than falling through to derivation")
}

func TestResolveAdminKey_FallsBackToMnemonicDerivation(t *testing.T) {
	cfg := &config.Config{Mnemonic: testMnemonic}
	entry := &config.ChainEntry{ChainName: "base-sepolia"}

	priv, err := resolveAdminKey(cfg, entry)
	require.NoError(t, err)
	assert.NotNil(t, priv)
}

func TestResolveAdminKey_RejectsEmptyMnemonicWithNoOverride(t *testing.T) {
	cfg := &config.Config{Mnemonic: ""}
	entry := &config.ChainEntry{ChainName: "base-sepolia"}

	_, err := resolveAdminKey(cfg, entry)
	assert.Error(t, err)
}

func TestForwardEvents_CopiesEventsUntilInputCloses(t *testing.T) {
	in := make(chan scanner.Event, 2)
	out := make(chan scanner.Event, 2)

	block := uint64(100)
	in <- scanner.Event{Scanned: &scanner.Scanned{ChainIndex: 0, Block: block}}
	close(in)

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		forwardEvents(ctx, in, out)
		close(done)
	}()

	<-done
	select {
	case ev := <-out:
		require.NotNil(t, ev.Scanned)
		assert.Equal(t, block, ev.Scanned.Block)
	default:
		t.Fatal("expected forwarded event on out channel")
	}
}

func TestForwardEvents_StopsOnContextCancellation(t *testing.T) {
	in := make(chan scanner.Event)
	out := make(chan scanner.Event)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		forwardEvents(ctx, in, out)
		close(done)
	}()

	cancel()
	<-done
}
