package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_ObserveQuestion(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveQuestion("stuff", 4, 2*time.Second, nil)
	m.ObserveQuestion("stuff", 0, time.Second, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.questions.WithLabelValues("stuff", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.questions.WithLabelValues("stuff", "error")))
}

func TestMetrics_ObserveIndex(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveIndex("build", 42)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.indexLoads.WithLabelValues("build")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.indexChunks))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveQuestion("stuff", 1, time.Second, nil)
		m.ObserveIndex("hit", 1)
	})
}
