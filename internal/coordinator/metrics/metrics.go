package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var stageBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// Metrics tracks coordinator throughput, terminal outcomes and per-stage latency.
type Metrics struct {
	Requests      *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	InFlight      prometheus.Gauge
	PollAttempts  prometheus.Counter
	MintedTokens  prometheus.Counter
}

// New registers the coordinator metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "creditmint_requests_total",
			Help: "Coordinator requests by terminal state and error code",
		}, []string{"state", "code"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "creditmint_stage_duration_seconds",
			Help:    "Duration of coordinator stages (prepare, submit, confirm)",
			Buckets: stageBuckets,
		}, []string{"stage"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "creditmint_requests_in_flight",
			Help: "Coordinator requests not yet in a terminal state",
		}),
		PollAttempts: f.NewCounter(prometheus.CounterOpts{
			Name: "creditmint_receipt_polls_total",
			Help: "Receipt lookups issued while waiting for confirmation",
		}),
		MintedTokens: f.NewCounter(prometheus.CounterOpts{
			Name: "creditmint_minted_tokens_total",
			Help: "Whole tokens minted by confirmed requests",
		}),
	}
}

// IncrementRequest records a terminal outcome. code is empty on success.
func (m *Metrics) IncrementRequest(state, code string) {
	m.Requests.WithLabelValues(state, code).Inc()
}

// ObserveStage records how long a stage took.
// Call with time.Now() at the start of the stage.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementInFlight() { m.InFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.InFlight.Dec() }

func (m *Metrics) IncrementPollAttempt() { m.PollAttempts.Inc() }

// AddMinted records whole tokens minted.
func (m *Metrics) AddMinted(tokens float64) {
	if tokens > 0 {
		m.MintedTokens.Add(tokens)
	}
}
