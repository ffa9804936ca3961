package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"unixutils/pkg/metrics"
)

func TestRecordInvocation(t *testing.T) {
	okBefore := testutil.ToFloat64(metrics.InvocationsTotal.WithLabelValues("metrics-test", metrics.OutcomeOK))
	diagBefore := testutil.ToFloat64(metrics.DiagnosticsTotal.WithLabelValues("metrics-test"))

	metrics.RecordInvocation("metrics-test", metrics.OutcomeOK, false, 0.01)
	metrics.RecordInvocation("metrics-test", metrics.OutcomeOK, true, 0.02)

	assert.Equal(t, okBefore+2, testutil.ToFloat64(metrics.InvocationsTotal.WithLabelValues("metrics-test", metrics.OutcomeOK)))
	assert.Equal(t, diagBefore+1, testutil.ToFloat64(metrics.DiagnosticsTotal.WithLabelValues("metrics-test")))
}

func TestRecordBytes_IgnoresEmpty(t *testing.T) {
	before := testutil.ToFloat64(metrics.BytesTotal.WithLabelValues("metrics-test"))

	metrics.RecordBytes("metrics-test", 0)
	metrics.RecordBytes("metrics-test", 1024)

	assert.Equal(t, before+1024, testutil.ToFloat64(metrics.BytesTotal.WithLabelValues("metrics-test")))
}
