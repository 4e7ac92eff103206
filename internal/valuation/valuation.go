package valuation

import (
	"math"
	"math/big"

	"github.com/dustin/go-humanize"
)

// Tier is a total-AUM bracket and the multipliers it applies.
type Tier struct {
	Level             int     `json:"level"`
	MinTotalAUM       float64 `json:"min_total_aum"`
	BrokerageMultiple float64 `json:"brokerage_multiple"`
	AdvisoryMultiple  float64 `json:"advisory_multiple"`
}

// Tiers are ordered from the highest bracket down. Boundary values belong to
// the higher tier.
var Tiers = []Tier{
	{Level: 3, MinTotalAUM: 1_000_000_000, BrokerageMultiple: 2, AdvisoryMultiple: 7},
	{Level: 2, MinTotalAUM: 500_000_000, BrokerageMultiple: 2, AdvisoryMultiple: 5},
	{Level: 1, MinTotalAUM: 0, BrokerageMultiple: 1, AdvisoryMultiple: 3},
}

// Result is a computed valuation and the inputs that produced it.
type Result struct {
	BrokerageAUM float64 `json:"brokerage_aum"`
	AdvisoryAUM  float64 `json:"advisory_aum"`
	TotalAUM     float64 `json:"total_aum"`
	Tier         Tier    `json:"tier"`
	Amount       float64 `json:"amount"`
}

// TierFor selects the bracket for a total AUM.
func TierFor(totalAUM float64) Tier {
	for _, t := range Tiers {
		if totalAUM >= t.MinTotalAUM {
			return t
		}
	}
	return Tiers[len(Tiers)-1]
}

// Calculate values a practice from its brokerage and advisory AUM.
func Calculate(brokerageAUM, advisoryAUM float64) Result {
	total := brokerageAUM + advisoryAUM
	tier := TierFor(total)
	return Result{
		BrokerageAUM: brokerageAUM,
		AdvisoryAUM:  advisoryAUM,
		TotalAUM:     total,
		Tier:         tier,
		Amount:       brokerageAUM*tier.BrokerageMultiple + advisoryAUM*tier.AdvisoryMultiple,
	}
}

// MaxAmount is the largest amount a visitor may enter for a single field.
const MaxAmount = 1e15

// FormatUSD renders whole US dollars with thousands separators, e.g. "$500,000,000".
// Non-finite amounts render as "$0".
func FormatUSD(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "$0"
	}
	rounded := math.Round(amount)
	sign := ""
	if rounded < 0 {
		sign = "-"
		rounded = -rounded
	}
	if rounded < math.MaxInt64 {
		return sign + "$" + humanize.Comma(int64(rounded))
	}
	whole, _ := big.NewFloat(rounded).Int(nil)
	return sign + "$" + humanize.BigComma(whole)
}
