package db

import (
	"context"
	"testing"

	"x402facilitator/internal/db/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchOpenSession_PicksEarliestCreated(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	defer testDB.Close(t)

	database := &DB{pool: testDB.Pool}
	ctx := context.Background()

	customer, err := database.CreateCustomer(ctx, "merchant-1", "alice", "0xabc0000000000000000000000000000000dead", 1)
	require.NoError(t, err)

	first, err := database.CreateSession(ctx, customer.ID, 500)
	require.NoError(t, err)
	second, err := database.CreateSession(ctx, customer.ID, 500)
	require.NoError(t, err)

	deposit, err := database.CreateDeposit(ctx, customer.ID, 500, "0xtxhash1", "base-sepolia", "0xtoken")
	require.NoError(t, err)

	matched, err := database.MatchOpenSession(ctx, customer.ID, deposit.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, first.ID, matched.ID, "earliest-created equal-amount session should match first")

	stillOpen, err := database.GetSession(ctx, second.ID)
	require.NoError(t, err)
	assert.Nil(t, stillOpen.DepositRef)
}

func TestMatchOpenSession_NoneMatchesReturnsNotFound(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	defer testDB.Close(t)

	database := &DB{pool: testDB.Pool}
	ctx := context.Background()

	customer, err := database.CreateCustomer(ctx, "merchant-1", "alice", "0xabc0000000000000000000000000000000dead", 2)
	require.NoError(t, err)

	deposit, err := database.CreateDeposit(ctx, customer.ID, 500, "0xtxhash2", "base-sepolia", "0xtoken")
	require.NoError(t, err)

	_, err = database.MatchOpenSession(ctx, customer.ID, deposit.ID, 500)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMarkSessionSent(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	defer testDB.Close(t)

	database := &DB{pool: testDB.Pool}
	ctx := context.Background()

	customer, err := database.CreateCustomer(ctx, "merchant-1", "alice", "0xabc0000000000000000000000000000000dead", 3)
	require.NoError(t, err)

	session, err := database.CreateSession(ctx, customer.ID, 500)
	require.NoError(t, err)

	require.NoError(t, database.MarkSessionSent(ctx, session.ID))

	got, err := database.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, got.Sent)
}

func TestGetSession_NotFound(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	defer testDB.Close(t)

	database := &DB{pool: testDB.Pool}
	ctx := context.Background()

	_, err := database.GetSession(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
