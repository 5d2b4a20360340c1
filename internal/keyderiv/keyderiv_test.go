package keyderiv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestDeriveIsStable(t *testing.T) {
	a, err := Derive(testMnemonic, 7, 42)
	require.NoError(t, err)

	b, err := Derive(testMnemonic, 7, 42)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestDeriveDiffersPerCustomer(t *testing.T) {
	a, err := Derive(testMnemonic, 7, 1)
	require.NoError(t, err)
	b, err := Derive(testMnemonic, 7, 2)
	require.NoError(t, err)

	assert.NotEqual(t, a.Address, b.Address)
}

func TestDeriveRejectsInvalidMnemonic(t *testing.T) {
	_, err := Derive("not a real mnemonic", 0, 0)
	assert.ErrorIs(t, err, ErrKeyDerivation)
}

func TestIsAdmin(t *testing.T) {
	assert.True(t, IsAdmin(0, 0))
	assert.False(t, IsAdmin(1, 0))
}
