package tracker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupThousands(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{100000, "100,000"},
		{1250000, "1,250,000"},
		{-100000, "-100,000"},
		{-1, "-1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GroupThousands(tt.n), "GroupThousands(%d)", tt.n)
	}
}

func TestFormatSigned(t *testing.T) {
	assert.Equal(t, "+50,000 ₽", FormatSignedPrice(50000, "RUB"))
	assert.Equal(t, "-50,000 $", FormatSignedPrice(-50000, "USD"))
	assert.Equal(t, "-4.0%", FormatSignedPercent(-4.04))
	assert.Equal(t, "n/a", FormatSignedPercent(math.Inf(1)))
}
