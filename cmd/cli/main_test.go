package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCmd()
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCmd_HasExpectedSubcommands(t *testing.T) {
	cmd := newRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "config")
	assert.Contains(t, names, "chain")
	assert.Contains(t, names, "sweep")
	assert.Contains(t, names, "admin-key")
}

func TestSweepRetry_RequiresDepositIDArg(t *testing.T) {
	_, _, err := executeRoot(t, "sweep", "retry")
	require.Error(t, err)
}

func TestSweepRetry_RejectsTooManyArgs(t *testing.T) {
	_, _, err := executeRoot(t, "sweep", "retry", "one", "two")
	require.Error(t, err)
}

func TestSweepRetry_RejectsMalformedDepositID(t *testing.T) {
	_, _, err := executeRoot(t, "sweep", "retry", "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid deposit id")
}

func TestAdminKeyStore_RequiresChainAndKeyArgs(t *testing.T) {
	_, _, err := executeRoot(t, "admin-key", "store", "base-sepolia")
	require.Error(t, err)
}

func TestAdminKeyStore_RejectsMalformedPrivateKey(t *testing.T) {
	_, _, err := executeRoot(t, "admin-key", "store", "base-sepolia", "not-hex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid private key")
}

func TestAdminKeyShow_RequiresChainArg(t *testing.T) {
	_, _, err := executeRoot(t, "admin-key", "show")
	require.Error(t, err)
}

func TestAdminKeyDelete_RequiresChainArg(t *testing.T) {
	_, _, err := executeRoot(t, "admin-key", "delete")
	require.Error(t, err)
}

func TestSweepList_HasLimitFlag(t *testing.T) {
	stdout, _, err := executeRoot(t, "sweep", "list", "--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "--limit")
}

func TestConfigValidate_HasChainsFileOverrideFlag(t *testing.T) {
	stdout, _, err := executeRoot(t, "config", "validate", "--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "--chains-file")
}

func TestChainStatus_HasChainsFileOverrideFlag(t *testing.T) {
	stdout, _, err := executeRoot(t, "chain", "status", "--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "--chains-file")
}

func TestRootCmd_ReportsVersion(t *testing.T) {
	stdout, _, err := executeRoot(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "facilitatorctl")
}
