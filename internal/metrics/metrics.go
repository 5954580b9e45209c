// Package metrics holds the prometheus collectors of the question pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ragchat"

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	questions      *prometheus.CounterVec
	answerDuration *prometheus.HistogramVec
	retrieved      prometheus.Histogram
	indexLoads     *prometheus.CounterVec
	indexChunks    prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		questions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_total",
			Help:      "Questions answered, by chain type and outcome.",
		}, []string{"chain_type", "outcome"}),
		answerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_duration_seconds",
			Help:      "Time from question to answer, retrieval included.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"chain_type"}),
		retrieved: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_chunks",
			Help:      "Chunks retrieved per question.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),
		indexLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_initializations_total",
			Help:      "Index initializations by path taken: hit, build, failed.",
		}, []string{"result"}),
		indexChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_chunks",
			Help:      "Chunks held by the loaded index.",
		}),
	}
	reg.MustRegister(m.questions, m.answerDuration, m.retrieved, m.indexLoads, m.indexChunks)
	return m
}

// ObserveQuestion records one answered or failed question.
func (m *Metrics) ObserveQuestion(chainType string, retrieved int, took time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.questions.WithLabelValues(chainType, outcome).Inc()
	if err == nil {
		m.answerDuration.WithLabelValues(chainType).Observe(took.Seconds())
		m.retrieved.Observe(float64(retrieved))
	}
}

// ObserveIndex records how the index was obtained and its size.
func (m *Metrics) ObserveIndex(result string, chunks int) {
	if m == nil {
		return
	}
	m.indexLoads.WithLabelValues(result).Inc()
	m.indexChunks.Set(float64(chunks))
}
