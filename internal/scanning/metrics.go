package scanning

import "github.com/prometheus/client_golang/prometheus"

// Outcome is what happened when the pipeline visited a tier.
type Outcome string

const (
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
	OutcomeRejected Outcome = "rejected"
	OutcomeAccepted Outcome = "accepted"
)

// Metrics records pipeline activity. A nil *Metrics records nothing.
type Metrics struct {
	tierOutcomes *prometheus.CounterVec
	tierDuration *prometheus.HistogramVec
	confidence   prometheus.Histogram
	needsReview  prometheus.Counter
}

// NewMetrics creates the pipeline collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tierOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receipt_scanner",
			Name:      "tier_outcomes_total",
			Help:      "Extraction tier visits by outcome.",
		}, []string{"tier", "outcome"}),
		tierDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "receipt_scanner",
			Name:      "tier_duration_seconds",
			Help:      "Time spent in each extraction tier.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"tier"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "receipt_scanner",
			Name:      "draft_confidence",
			Help:      "Confidence of produced drafts.",
			Buckets:   []float64{0.1, 0.3, 0.5, 0.7, 0.9, 1},
		}),
		needsReview: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "receipt_scanner",
			Name:      "drafts_needing_review_total",
			Help:      "Drafts flagged for manual review.",
		}),
	}
	reg.MustRegister(m.tierOutcomes, m.tierDuration, m.confidence, m.needsReview)
	return m
}

func (m *Metrics) observeTier(tier Tier, outcome Outcome, seconds float64) {
	if m == nil {
		return
	}
	m.tierOutcomes.WithLabelValues(string(tier), string(outcome)).Inc()
	if outcome != OutcomeSkipped {
		m.tierDuration.WithLabelValues(string(tier)).Observe(seconds)
	}
}

func (m *Metrics) observeDraft(d *Draft) {
	if m == nil {
		return
	}
	m.confidence.Observe(d.Confidence)
	if d.NeedsReview {
		m.needsReview.Inc()
	}
}
