package sequence

// Scaler maps values into [0,1] using the global min and max of a series.
type Scaler struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// FitScaler scans the whole series once.
func FitScaler(series []float64) Scaler {
	if len(series) == 0 {
		return Scaler{}
	}
	s := Scaler{Min: series[0], Max: series[0]}
	for _, v := range series[1:] {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	return s
}

func (s Scaler) flat() bool { return s.Max == s.Min }

// Normalize maps v to (v-min)/(max-min). A flat series maps to 0.
func (s Scaler) Normalize(v float64) float64 {
	if s.flat() {
		return 0
	}
	return (v - s.Min) / (s.Max - s.Min)
}

// Denormalize inverts Normalize. A flat series maps back to its constant.
func (s Scaler) Denormalize(v float64) float64 {
	if s.flat() {
		return s.Min
	}
	return v*(s.Max-s.Min) + s.Min
}

// NormalizeSeries returns a scaled copy.
func (s Scaler) NormalizeSeries(series []float64) []float64 {
	out := make([]float64, len(series))
	for i, v := range series {
		out[i] = s.Normalize(v)
	}
	return out
}

// NormalizeRows scales the columns flagged in priceCols and copies the rest.
func (s Scaler) NormalizeRows(rows [][]float64, priceCols []bool) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		r := make([]float64, len(row))
		for j, v := range row {
			if j < len(priceCols) && priceCols[j] {
				r[j] = s.Normalize(v)
			} else {
				r[j] = v
			}
		}
		out[i] = r
	}
	return out
}
