package sequence

import (
	"math/rand"

	"PriceAgent/internal/domain/service"
)

// Split holds out a fraction of pairs for validation. SplitTail keeps the
// most recent pairs for validation; SplitRandom shuffles with seed first.
// When the holdout would leave nothing to train on, every pair trains.
func Split(ds service.Dataset, fraction float64, strategy service.SplitStrategy, seed int64) (service.Dataset, service.Dataset) {
	n := ds.Len()
	if n == 0 || fraction <= 0 {
		return ds, service.Dataset{}
	}
	if fraction >= 1 {
		fraction = 0.5
	}
	cut := int(float64(n) * (1 - fraction))
	if cut < 1 {
		return ds, service.Dataset{}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if strategy == service.SplitRandom {
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	pick := func(idx []int) service.Dataset {
		out := service.Dataset{
			Inputs:  make([][][]float64, len(idx)),
			Targets: make([][]float64, len(idx)),
		}
		for k, i := range idx {
			out.Inputs[k] = ds.Inputs[i]
			out.Targets[k] = ds.Targets[i]
		}
		return out
	}
	return pick(order[:cut]), pick(order[cut:])
}
