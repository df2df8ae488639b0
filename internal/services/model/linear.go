// Package model provides SequenceModel implementations: an in-process linear
// forecaster and an HTTP client for an external model server.
package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"PriceAgent/internal/domain/models"
	"PriceAgent/internal/domain/service"

	"gonum.org/v1/gonum/mat"
)

// LinearOption configures Linear.
type LinearOption func(*Linear)

// WithLearningRate sets the gradient step.
func WithLearningRate(lr float64) LinearOption {
	return func(m *Linear) {
		m.lr = lr
	}
}

// WithL2 sets the ridge penalty.
func WithL2(lambda float64) LinearOption {
	return func(m *Linear) {
		m.l2 = lambda
	}
}

// WithSeed fixes batch shuffling.
func WithSeed(seed int64) LinearOption {
	return func(m *Linear) {
		m.seed = seed
	}
}

// Linear maps a flattened window plus bias to H outputs with one weight
// matrix, trained by mini-batch gradient descent on mean squared error.
// Weights start as a persistence forecast: every output copies the last price.
type Linear struct {
	window   int
	horizon  int
	features int
	lr       float64
	l2       float64
	seed     int64

	w *mat.Dense // (window*features+1) x horizon
}

// NewLinear returns an uninitialized model.
func NewLinear(opts ...LinearOption) *Linear {
	m := &Linear{lr: 0.01, l2: 1e-4, seed: 42}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LinearFactory adapts NewLinear to service.ModelFactory.
func LinearFactory(opts ...LinearOption) service.ModelFactory {
	return func() service.SequenceModel { return NewLinear(opts...) }
}

var _ service.SequenceModel = (*Linear)(nil)

func (m *Linear) inputs() int { return m.window*m.features + 1 }

func (m *Linear) Initialize(_ context.Context, window, horizon, features int) error {
	if window <= 0 || horizon <= 0 || features <= 0 {
		return fmt.Errorf("invalid shape window=%d horizon=%d features=%d", window, horizon, features)
	}
	m.window, m.horizon, m.features = window, horizon, features
	m.w = mat.NewDense(m.inputs(), horizon, nil)
	lastPrice := (window - 1) * features
	for h := 0; h < horizon; h++ {
		m.w.Set(lastPrice, h, 1)
	}
	return nil
}

func (m *Linear) design(windows [][][]float64) (*mat.Dense, error) {
	d := m.inputs()
	x := mat.NewDense(len(windows), d, nil)
	for i, win := range windows {
		if len(win) != m.window {
			return nil, fmt.Errorf("window %d has %d rows, want %d", i, len(win), m.window)
		}
		for t, row := range win {
			if len(row) != m.features {
				return nil, fmt.Errorf("window %d row %d has %d features, want %d", i, t, len(row), m.features)
			}
			for f, v := range row {
				x.Set(i, t*m.features+f, v)
			}
		}
		x.Set(i, d-1, 1)
	}
	return x, nil
}

func (m *Linear) targets(ts [][]float64) (*mat.Dense, error) {
	y := mat.NewDense(len(ts), m.horizon, nil)
	for i, row := range ts {
		if len(row) != m.horizon {
			return nil, fmt.Errorf("target %d has %d values, want %d", i, len(row), m.horizon)
		}
		y.SetRow(i, row)
	}
	return y, nil
}

func mse(x, y, w *mat.Dense) float64 {
	var p mat.Dense
	p.Mul(x, w)
	p.Sub(&p, y)
	r, c := p.Dims()
	return mat.Sum(squared(&p)) / float64(r*c)
}

func squared(a *mat.Dense) *mat.Dense {
	var sq mat.Dense
	sq.MulElem(a, a)
	return &sq
}

func (m *Linear) Fit(ctx context.Context, train, validation service.Dataset, epochs, batchSize int) (service.FitResult, error) {
	if m.w == nil {
		return service.FitResult{}, fmt.Errorf("model not initialized")
	}
	if train.Len() == 0 {
		return service.FitResult{}, fmt.Errorf("empty training set")
	}
	if batchSize <= 0 {
		batchSize = train.Len()
	}

	x, err := m.design(train.Inputs)
	if err != nil {
		return service.FitResult{}, err
	}
	y, err := m.targets(train.Targets)
	if err != nil {
		return service.FitResult{}, err
	}
	var xv, yv *mat.Dense
	if validation.Len() > 0 {
		if xv, err = m.design(validation.Inputs); err != nil {
			return service.FitResult{}, err
		}
		if yv, err = m.targets(validation.Targets); err != nil {
			return service.FitResult{}, err
		}
	}

	n := train.Len()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewSource(m.seed))
	history := make([]models.EpochMetrics, 0, epochs)

	// Updates go to a copy; m.w changes only when the whole fit succeeds.
	w := mat.DenseCopyOf(m.w)

	for epoch := 1; epoch <= epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return service.FitResult{}, err
		}
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		for start := 0; start < n; start += batchSize {
			end := start + batchSize
			if end > n {
				end = n
			}
			m.step(w, x, y, order[start:end])
		}

		em := models.EpochMetrics{Epoch: epoch, Loss: mse(x, y, w)}
		if xv != nil {
			em.ValLoss = mse(xv, yv, w)
		}
		if math.IsNaN(em.Loss) || math.IsInf(em.Loss, 0) {
			return service.FitResult{}, fmt.Errorf("training diverged at epoch %d", epoch)
		}
		history = append(history, em)
	}

	final := mse(x, y, w)
	if xv != nil {
		final = mse(xv, yv, w)
	}
	m.w = w
	return service.FitResult{History: history, Accuracy: accuracyFromMSE(final)}, nil
}

// step applies one gradient update to w over the rows in idx.
func (m *Linear) step(w, x, y *mat.Dense, idx []int) {
	d := m.inputs()
	b := len(idx)
	xb := mat.NewDense(b, d, nil)
	yb := mat.NewDense(b, m.horizon, nil)
	for k, i := range idx {
		xb.SetRow(k, x.RawRowView(i))
		yb.SetRow(k, y.RawRowView(i))
	}

	var e mat.Dense
	e.Mul(xb, w)
	e.Sub(&e, yb)

	var grad mat.Dense
	grad.Mul(xb.T(), &e)
	grad.Scale(2/float64(b), &grad)

	var reg mat.Dense
	reg.Scale(2*m.l2, w)
	grad.Add(&grad, &reg)

	grad.Scale(m.lr, &grad)
	w.Sub(w, &grad)
}

// accuracyFromMSE maps normalized RMSE to a percentage in [0,100].
func accuracyFromMSE(mse float64) float64 {
	acc := 100 * (1 - math.Sqrt(mse))
	if acc < 0 || math.IsNaN(acc) {
		return 0
	}
	if acc > 100 {
		return 100
	}
	return acc
}

func (m *Linear) Predict(_ context.Context, window [][]float64) ([]float64, error) {
	if m.w == nil {
		return nil, fmt.Errorf("model not initialized")
	}
	x, err := m.design([][][]float64{window})
	if err != nil {
		return nil, err
	}
	var p mat.Dense
	p.Mul(x, m.w)
	return mat.Row(nil, 0, &p), nil
}

type linearState struct {
	Kind     string    `json:"kind"`
	Window   int       `json:"window"`
	Horizon  int       `json:"horizon"`
	Features int       `json:"features"`
	Weights  []float64 `json:"weights"`
}

func (m *Linear) Serialize() ([]byte, error) {
	if m.w == nil {
		return nil, fmt.Errorf("model not initialized")
	}
	r, c := m.w.Dims()
	weights := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		weights = append(weights, m.w.RawRowView(i)...)
	}
	return json.Marshal(linearState{
		Kind:     "linear",
		Window:   m.window,
		Horizon:  m.horizon,
		Features: m.features,
		Weights:  weights,
	})
}

func (m *Linear) Deserialize(blob []byte) error {
	var st linearState
	if err := json.Unmarshal(blob, &st); err != nil {
		return fmt.Errorf("decode linear model: %w", err)
	}
	if st.Kind != "linear" {
		return fmt.Errorf("unexpected model kind %q", st.Kind)
	}
	if err := m.Initialize(context.Background(), st.Window, st.Horizon, st.Features); err != nil {
		return err
	}
	if len(st.Weights) != m.inputs()*m.horizon {
		return fmt.Errorf("weights length %d, want %d", len(st.Weights), m.inputs()*m.horizon)
	}
	m.w = mat.NewDense(m.inputs(), m.horizon, st.Weights)
	return nil
}
