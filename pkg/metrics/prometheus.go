package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "priceagent_training_cycles_total",
			Help: "Training cycles by result (ok, skipped, failed)",
		},
		[]string{"result"},
	)
	cycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "priceagent_training_cycle_duration_seconds",
			Help:    "Duration of training cycles in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"result"},
	)
	fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "priceagent_fetches_total",
			Help: "Price data lookups by source and result",
		},
		[]string{"source", "result"},
	)
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "priceagent_errors_total",
			Help: "Reported failures by context",
		},
		[]string{"context"},
	)
	accuracy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "priceagent_model_accuracy_percent",
		Help: "Accuracy of the last trained model",
	})
	trainingCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "priceagent_training_count",
		Help: "Completed training cycles recorded in agent state",
	})
	lastPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "priceagent_last_price",
			Help: "Last fetched spot price",
		},
		[]string{"asset"},
	)

	regOnce sync.Once
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct{}

// New registers the collectors on first use.
func New() *Recorder {
	regOnce.Do(func() {
		prometheus.MustRegister(cyclesTotal, cycleDuration, fetchesTotal, errorsTotal, accuracy, trainingCount, lastPrice)
	})
	return &Recorder{}
}

func (r *Recorder) RecordCycle(result string, seconds float64) {
	cyclesTotal.WithLabelValues(result).Inc()
	cycleDuration.WithLabelValues(result).Observe(seconds)
}

func (r *Recorder) RecordFetch(source, result string) {
	fetchesTotal.WithLabelValues(source, result).Inc()
}

// RecordError counts a reported failure under its context label.
func (r *Recorder) RecordError(context string) {
	errorsTotal.WithLabelValues(context).Inc()
}

func (r *Recorder) RecordAccuracy(v float64)      { accuracy.Set(v) }
func (r *Recorder) RecordTrainingCount(count int) { trainingCount.Set(float64(count)) }

func (r *Recorder) RecordLastPrice(asset string, price float64) {
	lastPrice.WithLabelValues(asset).Set(price)
}
