package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRewrite(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRewrite("rewritten", time.Millisecond)
	m.ObserveRewrite("rewritten", time.Millisecond)
	m.ObserveRewrite("skip_table", time.Microsecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.rewrites.WithLabelValues("rewritten")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rewrites.WithLabelValues("skip_table")))

	count, err := testutil.GatherAndCount(reg, "sql_rewriter_rewrite_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestObserveExecution(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveExecution(nil)
	m.ObserveExecution(errors.New("boom"))
	m.ObserveExecution(errors.New("boom"))
	m.ObserveVeto()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.executions.WithLabelValues(ResultOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.executions.WithLabelValues(ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.executions.WithLabelValues(ResultVetoed)))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRewrite("rewritten", time.Second)
		m.ObserveExecution(nil)
		m.ObserveVeto()
	})
}

func TestDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
