package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedUnits(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"100", 1000000},
		{"0.0001", 1},
		{"123.4567", 1234567},
		{"-2.5", -25000},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MustParse(tt.in).Units())
		})
	}
}

func TestFixedValueScan(t *testing.T) {
	f := MustParse("110.1234")
	v, err := f.Value()
	require.NoError(t, err)

	var got Fixed
	require.NoError(t, got.Scan(v))
	assert.True(t, f.Equal(got.Decimal), "got %s", got)

	require.NoError(t, got.Scan([]byte("25000")))
	assert.Equal(t, "2.5", got.String())

	require.NoError(t, got.Scan(nil))
	assert.True(t, got.IsZero())

	assert.Error(t, got.Scan(true))
	assert.Error(t, got.Scan("abc"))
}

func TestFitsScale(t *testing.T) {
	assert.True(t, MustParse("10.25").FitsScale(2))
	assert.False(t, MustParse("10.255").FitsScale(2))
	assert.True(t, MustParse("10.2555").FitsScale(4))
}

func TestFromUnits(t *testing.T) {
	assert.True(t, decimal.NewFromInt(100).Equal(FromUnits(10000000000, 2*Scale)))
}
