package decimal

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripMinorAtomic(t *testing.T) {
	for _, decimal := range []uint8{2, 6, 8, 18} {
		for _, minor := range []int32{0, 1, 500, 1_000_000} {
			atomic := ToAtomic(minor, decimal)
			require.Equal(t, minor, ToMinor(atomic, decimal), "decimal=%d minor=%d", decimal, minor)
		}
	}
}

func TestToAtomicIdentityAtTwoDecimals(t *testing.T) {
	assert.Equal(t, big.NewInt(500), ToAtomic(500, 2))
	assert.Equal(t, int32(500), ToMinor(big.NewInt(500), 2))
}

func TestToMinorSaturatesAtInt32Max(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 200)
	assert.Equal(t, int32(1<<31-1), ToMinor(huge, 6))
}

func TestPriceToAtomic(t *testing.T) {
	assert.Equal(t, big.NewInt(1_000_000), PriceToAtomic("1", 6))
	assert.Equal(t, big.NewInt(1_500_000), PriceToAtomic("1.5", 6))
	assert.Equal(t, big.NewInt(1_234_567), PriceToAtomic("1.23456789", 6))
	assert.Equal(t, big.NewInt(0), PriceToAtomic("abc", 6))
	assert.Equal(t, big.NewInt(5), PriceToAtomic(".05", 2))
}
