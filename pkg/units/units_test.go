package units

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatEther(t *testing.T) {
	oneAndHalf, _ := new(big.Int).SetString("1500000000000000000", 10)
	withGas, _ := new(big.Int).SetString("1000000000000315000", 10)

	tests := []struct {
		name string
		wei  *big.Int
		want string
	}{
		{"nil", nil, "0"},
		{"zero", big.NewInt(0), "0"},
		{"one and a half", oneAndHalf, "1.5"},
		{"value plus buffered gas", withGas, "1.000000000000315"},
		{"one wei", big.NewInt(1), "0.000000000000000001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatEther(tt.wei))
		})
	}
}

func TestFormatQuantity(t *testing.T) {
	assert.Equal(t, "1", FormatQuantity("0xde0b6b3a7640000"))
	assert.Equal(t, "1", FormatQuantity("1000000000000000000"))
	assert.Equal(t, "0", FormatQuantity(""))
	assert.Equal(t, "abc", FormatQuantity("abc"))
}

func TestWeiToDecimal(t *testing.T) {
	assert.True(t, WeiToDecimal(nil).IsZero())
	assert.Equal(t, "315000", WeiToDecimal(big.NewInt(315000)).String())
}
