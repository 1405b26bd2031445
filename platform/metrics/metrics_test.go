package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(dispatchResults.WithLabelValues("failed"))
	RecordDispatch(false)
	RecordDispatch(true)
	assert.Equal(t, before+1, testutil.ToFloat64(dispatchResults.WithLabelValues("failed")))

	fb := testutil.ToFloat64(targetingFallbacks)
	RecordTargetingFallback()
	assert.Equal(t, fb+1, testutil.ToFloat64(targetingFallbacks))

	SessionOpened()
	SessionOpened()
	SessionClosed()
	assert.GreaterOrEqual(t, testutil.ToFloat64(activeSessions), 1.0)
}
