// Package pricing values European options with the Black-Scholes-Merton closed form.
//
// Inputs are not validated: a non-positive volatility, or a negative spot or strike, is the
// caller's responsibility and yields NaN or Inf rather than an error.
package pricing

import (
	"math"

	"apolo/internal/schema"
)

const (
	daysPerYear  = 365.0
	vegaPerPoint = 100.0
	invSqrt2     = 0.7071067811865476
	invSqrt2Pi   = 0.3989422804014327
)

// Greeks holds option sensitivities and the model price.
//
// Theta is daily decay (annual theta / 365) and Vega is the change per one volatility
// point (raw vega / 100), matching how brokers quote them.
type Greeks struct {
	Delta            float64
	Gamma            float64
	Theta            float64
	Vega             float64
	Rho              float64
	TheoreticalPrice float64
	IV               float64
}

// ComputeGreeks prices one option. With t <= 0 the option is at expiry: the price is its
// intrinsic value and every sensitivity is zero.
func ComputeGreeks(spot, strike, t, r, sigma float64, typ schema.OptionType) Greeks {
	if t <= 0 {
		return Greeks{
			TheoreticalPrice: Intrinsic(spot, strike, typ),
			IV:               sigma,
		}
	}

	sqrtT := math.Sqrt(t)
	volSqrtT := sigma * sqrtT
	d1 := (math.Log(spot/strike) + (r+0.5*sigma*sigma)*t) / volSqrtT
	d2 := d1 - volSqrtT
	discount := strike * math.Exp(-r*t)
	decay := -(spot * NormPDF(d1) * sigma) / (2 * sqrtT)

	var g Greeks
	switch typ {
	case schema.OptionCall:
		g.Delta = NormCDF(d1)
		g.Theta = decay - r*discount*NormCDF(d2)
		g.TheoreticalPrice = spot*NormCDF(d1) - discount*NormCDF(d2)
		g.Rho = discount * t * NormCDF(d2)
	default:
		g.Delta = NormCDF(d1) - 1
		g.Theta = decay + r*discount*NormCDF(-d2)
		g.TheoreticalPrice = discount*NormCDF(-d2) - spot*NormCDF(-d1)
		g.Rho = -discount * t * NormCDF(-d2)
	}

	g.Gamma = NormPDF(d1) / (spot * volSqrtT)
	g.Vega = spot * NormPDF(d1) * sqrtT / vegaPerPoint
	g.Theta /= daysPerYear
	g.IV = sigma
	return g
}

// Intrinsic returns the exercise value of an option.
func Intrinsic(spot, strike float64, typ schema.OptionType) float64 {
	if typ == schema.OptionCall {
		return math.Max(0, spot-strike)
	}
	return math.Max(0, strike-spot)
}

// NormCDF is the standard normal cumulative distribution.
func NormCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x*invSqrt2)
}

// NormPDF is the standard normal density.
func NormPDF(x float64) float64 {
	return invSqrt2Pi * math.Exp(-0.5*x*x)
}

// YearsUntil converts a day count to a year fraction on a 365-day basis.
func YearsUntil(days float64) float64 {
	return days / daysPerYear
}
