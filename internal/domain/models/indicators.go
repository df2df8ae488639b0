package models

type MACD struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

type Bollinger struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// IndicatorSet is derived from a price window and never stored.
type IndicatorSet struct {
	SMA       float64   `json:"sma"`
	EMA       float64   `json:"ema"`
	RSI       float64   `json:"rsi"`
	MACD      MACD      `json:"macd"`
	Bollinger Bollinger `json:"bollinger"`
	OBV       float64   `json:"obv"`
	ATR       float64   `json:"atr"`
	WilliamsR float64   `json:"williams_r"`
}
