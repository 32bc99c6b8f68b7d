package composer

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToSmallestUnit(t *testing.T) {
	assert.Equal(t, big.NewInt(1_000000), toSmallestUnit(1, 6))
	assert.Equal(t, big.NewInt(12_500000), toSmallestUnit(12.5, 6))
	assert.Equal(t, big.NewInt(0), toSmallestUnit(0, 6))
	assert.Equal(t, big.NewInt(0), toSmallestUnit(-3, 6))

	// sub-unit fractions truncate toward zero
	assert.Equal(t, big.NewInt(1), toSmallestUnit(0.0000019, 6))
}

func TestFromSmallestUnit(t *testing.T) {
	assert.Equal(t, 1.5, fromSmallestUnit(big.NewInt(1_500000), 6))
	assert.Equal(t, 0.0, fromSmallestUnit(nil, 6))
	assert.Equal(t, 0.0, fromSmallestUnit(big.NewInt(0), 18))
}
