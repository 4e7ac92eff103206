package valuation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"millions suffix", "1.5m", 1_500_000},
		{"thousands suffix", "500k", 500_000},
		{"spelled billion with space", "2 billion", 2_000_000_000},
		{"spelled million", "3 Million", 3_000_000},
		{"spelled thousand", "40 thousand", 40_000},
		{"uppercase suffix", "200M", 200_000_000},
		{"currency and separators", "$250,000", 250_000},
		{"currency before suffix", "$1.5m", 1_500_000},
		{"plain number", "1200", 1200},
		{"letters only", "abc", 0},
		{"empty", "", 0},
		{"whitespace", "   ", 0},
		{"suffix without number falls through", "mark 5", 5},
		{"repeated dots", "1.2.3", 1.2},
		{"trailing dot", "5.", 5},
		{"leading dot", ".5m", 500_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ParseAmount(tt.in), 1e-6)
		})
	}
}

func TestParseAmountStrict(t *testing.T) {
	v, ok := ParseAmountStrict("abc")
	assert.False(t, ok)
	assert.Zero(t, v)

	v, ok = ParseAmountStrict("0")
	assert.True(t, ok)
	assert.Zero(t, v)

	v, ok = ParseAmountStrict("-5k")
	assert.True(t, ok)
	assert.Equal(t, 5000.0, v)
}

func TestParseAmountNeverInfinite(t *testing.T) {
	huge := "1"
	for i := 0; i < 400; i++ {
		huge += "0"
	}
	v, ok := ParseAmountStrict(huge)
	assert.False(t, ok)
	assert.Zero(t, v)
}

func TestCalculateTiers(t *testing.T) {
	tests := []struct {
		name      string
		brokerage float64
		advisory  float64
		level     int
		want      float64
	}{
		{"tier one", 100_000_000, 50_000_000, 1, 250_000_000},
		{"tier two", 300_000_000, 300_000_000, 2, 2_100_000_000},
		{"tier three", 600_000_000, 500_000_000, 3, 4_700_000_000},
		{"lower boundary of tier two", 250_000_000, 250_000_000, 2, 1_750_000_000},
		{"lower boundary of tier three", 500_000_000, 500_000_000, 3, 4_500_000_000},
		{"just under tier two", 499_999_999, 0, 1, 499_999_999},
		{"zero", 0, 0, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.brokerage, tt.advisory)
			assert.Equal(t, tt.level, got.Tier.Level)
			assert.InDelta(t, tt.want, got.Amount, 1e-3)
			assert.Equal(t, tt.brokerage+tt.advisory, got.TotalAUM)
		})
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	first := Calculate(200_000_000, 100_000_000)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Calculate(200_000_000, 100_000_000))
	}
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, 1, TierFor(499_999_999.99).Level)
	assert.Equal(t, 2, TierFor(500_000_000).Level)
	assert.Equal(t, 2, TierFor(999_999_999).Level)
	assert.Equal(t, 3, TierFor(1_000_000_000).Level)
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$500,000,000", FormatUSD(500_000_000))
	assert.Equal(t, "$0", FormatUSD(0))
	assert.Equal(t, "$1,235", FormatUSD(1234.5))
	assert.Equal(t, "$999", FormatUSD(999))
}

func TestFormatUSDBeyondInt64(t *testing.T) {
	assert.Equal(t, "$10,000,000,000,000,000,000", FormatUSD(1e19))
	assert.Equal(t, "$90,000,000,000,000,000,000,000", FormatUSD(9e22))
	assert.Equal(t, "$0", FormatUSD(math.Inf(1)))
	assert.Equal(t, "$0", FormatUSD(math.NaN()))

	huge := Calculate(ParseAmount("9999999999999b"), 0)
	assert.NotContains(t, FormatUSD(huge.Amount), "-")
}
