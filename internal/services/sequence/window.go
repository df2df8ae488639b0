package sequence

import "fmt"

// Windows pairs W consecutive feature rows with the next H targets.
// A series of length N yields exactly N-W-H pairs; the last complete pair is
// not emitted.
func Windows(features [][]float64, targets []float64, window, horizon int) ([][][]float64, [][]float64, error) {
	if window <= 0 || horizon <= 0 {
		return nil, nil, fmt.Errorf("window and horizon must be positive, got %d and %d", window, horizon)
	}
	if len(features) != len(targets) {
		return nil, nil, fmt.Errorf("features and targets differ in length: %d != %d", len(features), len(targets))
	}
	n := len(targets) - window - horizon
	if n <= 0 {
		return nil, nil, nil
	}

	inputs := make([][][]float64, n)
	outs := make([][]float64, n)
	for i := 0; i < n; i++ {
		inputs[i] = features[i : i+window]
		outs[i] = targets[i+window : i+window+horizon]
	}
	return inputs, outs, nil
}

// MinSeriesLength is the shortest series that yields one pair.
func MinSeriesLength(window, horizon int) int {
	return window + horizon + 1
}
