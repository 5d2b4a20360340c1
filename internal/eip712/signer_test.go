package eip712

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDomain() Domain {
	return Domain{
		Name:              "USD Coin",
		Version:           "2",
		ChainID:           big.NewInt(8453),
		VerifyingContract: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
	}
}

func TestSignThenVerifyRecoversSigner(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(priv.PublicKey)

	auth := Authorization{
		From:        from,
		To:          common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Value:       big.NewInt(1_000_000),
		ValidAfter:  big.NewInt(0),
		ValidBefore: big.NewInt(9_999_999_999),
		Nonce:       [32]byte{1, 2, 3},
	}

	sig, err := Sign(testDomain(), auth, priv)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	recovered, err := Verify(testDomain(), auth, sig)
	require.NoError(t, err)
	assert.Equal(t, from, recovered)
}

func TestVerifyRejectsTamperedAuthorization(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(priv.PublicKey)

	auth := Authorization{
		From:        from,
		To:          common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Value:       big.NewInt(1_000_000),
		ValidAfter:  big.NewInt(0),
		ValidBefore: big.NewInt(9_999_999_999),
		Nonce:       [32]byte{1, 2, 3},
	}

	sig, err := Sign(testDomain(), auth, priv)
	require.NoError(t, err)

	tampered := auth
	tampered.Value = big.NewInt(2_000_000)

	_, err = Verify(testDomain(), tampered, sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyRejectsShortSignature(t *testing.T) {
	auth := Authorization{
		From:        common.HexToAddress("0x2222222222222222222222222222222222222222"),
		To:          common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Value:       big.NewInt(1),
		ValidAfter:  big.NewInt(0),
		ValidBefore: big.NewInt(1),
		Nonce:       [32]byte{},
	}
	_, err := Verify(testDomain(), auth, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
