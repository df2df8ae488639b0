// Package features computes technical indicators and model feature vectors
// from an ordered price series. Every function is pure and safe for
// concurrent use. Short inputs degrade to a defined default instead of failing.
package features

import (
	"math"

	"PriceAgent/internal/domain/models"
)

// Default lookbacks.
const (
	SMALength       = 20
	EMALength       = 20
	RSILength       = 14
	MACDFast        = 12
	MACDSlow        = 26
	MACDSignal      = 9
	BollingerLength = 20
	BollingerStdDev = 2
	ATRLength       = 14
	WilliamsRLength = 14

	// simulated intraday range when only closes are known
	syntheticRange = 0.001
)

func last(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return xs[len(xs)-1]
}

// SMA is the mean of the last n values, or the last value when len < n.
func SMA(prices []float64, n int) float64 {
	if n <= 0 || len(prices) < n {
		return last(prices)
	}
	sum := 0.0
	for _, p := range prices[len(prices)-n:] {
		sum += p
	}
	return sum / float64(n)
}

// EMA seeds with the first price and smooths across the whole series with
// k = 2/(n+1). Returns the last price when len < n.
func EMA(prices []float64, n int) float64 {
	if n <= 0 || len(prices) < n {
		return last(prices)
	}
	k := 2.0 / float64(n+1)
	ema := prices[0]
	for _, p := range prices[1:] {
		ema = p*k + ema*(1-k)
	}
	return ema
}

// RSI over the last n deltas. 50 with fewer than n+1 prices, 100 when there
// were no losses.
func RSI(prices []float64, n int) float64 {
	if n <= 0 || len(prices) < n+1 {
		return 50
	}
	var gains, losses float64
	for i := 1; i <= n; i++ {
		diff := prices[len(prices)-i] - prices[len(prices)-i-1]
		if diff >= 0 {
			gains += diff
		} else {
			losses -= diff
		}
	}
	avgGain := gains / float64(n)
	avgLoss := losses / float64(n)
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// MACD returns EMA(12)-EMA(26) at the series end. The signal line is EMA(9) of
// a MACD line rebuilt from every prefix of the series; the two are not one
// incremental line and histogram keeps that mismatch.
func MACD(prices []float64) models.MACD {
	macd := EMA(prices, MACDFast) - EMA(prices, MACDSlow)

	line := make([]float64, len(prices))
	for i := range prices {
		prefix := prices[:i+1]
		line[i] = EMA(prefix, MACDFast) - EMA(prefix, MACDSlow)
	}
	signal := EMA(line, MACDSignal)

	return models.MACD{MACD: macd, Signal: signal, Histogram: macd - signal}
}

// BollingerBands uses SMA(20) and the population deviation of the last 20 prices.
func BollingerBands(prices []float64) models.Bollinger {
	middle := SMA(prices, BollingerLength)

	start := len(prices) - BollingerLength
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, p := range prices[start:] {
		d := p - middle
		sum += d * d
	}
	std := math.Sqrt(sum / BollingerLength)

	return models.Bollinger{
		Upper:  middle + BollingerStdDev*std,
		Middle: middle,
		Lower:  middle - BollingerStdDev*std,
	}
}

// OBV starts at volumes[0] and adds or subtracts each day's volume by the
// direction of the close.
func OBV(prices, volumes []float64) float64 {
	if len(volumes) == 0 {
		return 0
	}
	obv := volumes[0]
	for i := 1; i < len(prices) && i < len(volumes); i++ {
		switch {
		case prices[i] > prices[i-1]:
			obv += volumes[i]
		case prices[i] < prices[i-1]:
			obv -= volumes[i]
		}
	}
	return obv
}

// TrueRanges starts at index 1; the first day has no previous close.
func TrueRanges(high, low, closes []float64) []float64 {
	n := minLen(high, low, closes)
	if n < 2 {
		return nil
	}
	out := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		tr := math.Max(high[i]-low[i],
			math.Max(math.Abs(high[i]-closes[i-1]), math.Abs(low[i]-closes[i-1])))
		out = append(out, tr)
	}
	return out
}

// ATR is the SMA of true ranges over n.
func ATR(high, low, closes []float64, n int) float64 {
	return SMA(TrueRanges(high, low, closes), n)
}

// WilliamsR over the last n observations. A flat range yields 0.
func WilliamsR(closes, high, low []float64, n int) float64 {
	if len(closes) == 0 || len(high) == 0 || len(low) == 0 || n <= 0 {
		return 0
	}
	hs := tail(high, n)
	ls := tail(low, n)
	hh, ll := hs[0], ls[0]
	for _, h := range hs {
		hh = math.Max(hh, h)
	}
	for _, l := range ls {
		ll = math.Min(ll, l)
	}
	if hh == ll {
		return 0
	}
	return (hh - last(closes)) / (hh - ll) * -100
}

// Calculate builds the full indicator set over a close series. Highs and lows
// are simulated at ±0.1%; missing volumes count as zero.
func Calculate(prices, volumes []float64) models.IndicatorSet {
	vols := make([]float64, len(prices))
	copy(vols, volumes)
	high := make([]float64, len(prices))
	low := make([]float64, len(prices))
	for i, p := range prices {
		high[i] = p * (1 + syntheticRange)
		low[i] = p * (1 - syntheticRange)
	}

	return models.IndicatorSet{
		SMA:       SMA(prices, SMALength),
		EMA:       EMA(prices, EMALength),
		RSI:       RSI(prices, RSILength),
		MACD:      MACD(prices),
		Bollinger: BollingerBands(prices),
		OBV:       OBV(prices, vols),
		ATR:       ATR(high, low, prices, ATRLength),
		WilliamsR: WilliamsR(prices, high, low, WilliamsRLength),
	}
}

func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func minLen(xs ...[]float64) int {
	n := math.MaxInt
	for _, x := range xs {
		if len(x) < n {
			n = len(x)
		}
	}
	return n
}
