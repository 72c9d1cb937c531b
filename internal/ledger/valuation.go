package ledger

import (
	"time"

	"apolo/internal/pricing"
	"apolo/internal/schema"
)

// ModelDebit prices the cost of buying back t per contract with Black-Scholes at spot and
// volatility iv. Expired legs are worth their intrinsic value.
func ModelDebit(t Trade, spot, iv, rate float64, now time.Time) float64 {
	debit := 0.0
	for _, leg := range t.Legs {
		years := pricing.YearsUntil(leg.Expiration.Sub(now).Hours() / 24)
		price := pricing.ComputeGreeks(spot, leg.Strike, years, rate, iv, leg.OptionType).TheoreticalPrice
		if leg.Side == schema.SideSell {
			debit += price
		} else {
			debit -= price
		}
	}
	return max(debit, 0)
}
