package features

import (
	"PriceAgent/internal/domain/service"
)

// Vectors builds one feature vector per observation. Every column except RSI
// stays on the price scale so one global min/max normalizes them together.
// RSI is already in [0,1] and is left untouched by the normalizer.
//
//	price            -> [price]
//	price_indicators -> [price, rsi/100, sma20(prefix), ema20(prefix)]
func Vectors(prices []float64, fs service.FeatureSet) [][]float64 {
	out := make([][]float64, len(prices))
	for i, p := range prices {
		if fs != service.FeaturesPriceIndicators {
			out[i] = []float64{p}
			continue
		}
		prefix := prices[:i+1]
		out[i] = []float64{
			p,
			RSI(prefix, RSILength) / 100,
			SMA(prefix, SMALength),
			EMA(prefix, EMALength),
		}
	}
	return out
}

// PriceScaledColumns reports which columns share the price scale.
func PriceScaledColumns(fs service.FeatureSet) []bool {
	if fs == service.FeaturesPriceIndicators {
		return []bool{true, false, true, true}
	}
	return []bool{true}
}
