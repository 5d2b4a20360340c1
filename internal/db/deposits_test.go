package db

import (
	"context"
	"testing"

	"x402facilitator/internal/db/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDeposit_DuplicateTxHashRejected(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	defer testDB.Close(t)

	database := &DB{pool: testDB.Pool}
	ctx := context.Background()

	customer, err := database.CreateCustomer(ctx, "merchant-1", "alice", "0xabc0000000000000000000000000000000dead", 1)
	require.NoError(t, err)

	_, err = database.CreateDeposit(ctx, customer.ID, 500, "0xduplicate", "base-sepolia", "0xtoken")
	require.NoError(t, err)

	_, err = database.CreateDeposit(ctx, customer.ID, 500, "0xduplicate", "base-sepolia", "0xtoken")
	assert.ErrorIs(t, err, ErrDepositAlreadySeen)
}

func TestSettleDeposit(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	defer testDB.Close(t)

	database := &DB{pool: testDB.Pool}
	ctx := context.Background()

	customer, err := database.CreateCustomer(ctx, "merchant-1", "alice", "0xabc0000000000000000000000000000000dead", 2)
	require.NoError(t, err)

	deposit, err := database.CreateDeposit(ctx, customer.ID, 500, "0xtxhash", "base-sepolia", "0xtoken")
	require.NoError(t, err)

	require.NoError(t, database.SettleDeposit(ctx, deposit.ID, 495, "0xsettletx"))

	got, err := database.GetDeposit(ctx, deposit.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SettledAmountMinor)
	assert.Equal(t, int64(495), *got.SettledAmountMinor)
	require.NotNil(t, got.SettledTxHash)
	assert.Equal(t, "0xsettletx", *got.SettledTxHash)
	assert.NotNil(t, got.SettledAt)
	assert.Equal(t, "base-sepolia", got.ChainName)
	assert.Equal(t, "0xtoken", got.TokenAddress)
}

func TestGetUnsettledDeposits_ExcludesSettled(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	defer testDB.Close(t)

	database := &DB{pool: testDB.Pool}
	ctx := context.Background()

	customer, err := database.CreateCustomer(ctx, "merchant-1", "alice", "0xabc0000000000000000000000000000000dead", 3)
	require.NoError(t, err)

	settled, err := database.CreateDeposit(ctx, customer.ID, 500, "0xsettled", "base-sepolia", "0xtoken")
	require.NoError(t, err)
	require.NoError(t, database.SettleDeposit(ctx, settled.ID, 495, "0xsettletx"))

	unsettled, err := database.CreateDeposit(ctx, customer.ID, 600, "0xunsettled", "base-sepolia", "0xtoken")
	require.NoError(t, err)

	got, err := database.GetUnsettledDeposits(ctx, 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, unsettled.ID, got[0].ID)
}
