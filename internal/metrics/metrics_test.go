package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRequestsTotalIncrements(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "version", "2xx"))
	RequestsTotal.WithLabelValues("GET", "version", "2xx").Inc()
	after := testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "version", "2xx"))
	assert.Equal(t, before+1, after)
}

func TestUploadJobsGauge(t *testing.T) {
	before := testutil.ToFloat64(UploadJobsOpen)
	UploadJobsOpen.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(UploadJobsOpen))
	UploadJobsOpen.Dec()
	assert.Equal(t, before, testutil.ToFloat64(UploadJobsOpen))
}

func TestHandlerNotNil(t *testing.T) {
	assert.NotNil(t, Handler())
}

func TestTimerObservesNonNegativeDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	timer.ObserveDurationVec(RequestDuration, "version")
}
