package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/danmuck/edgelink/internal/connect"
	"github.com/danmuck/edgelink/internal/testutil/testlog"
)

var _ connect.Observer = (*EngineObserver)(nil)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()
	RecordHTTPRequest("echo-a", "GET", "/health", 200, 12*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequests.WithLabelValues("echo-a", "GET", "/health", "200")))
}

func TestEngineObserverRecords(t *testing.T) {
	testlog.Start(t)
	o := NewEngineObserver("obs-test")

	o.StateChanged(connect.Connected)
	o.CommandSent(12, true)
	o.ResponseMatched(13)
	o.PushEvent(50)
	o.CommandFailed(12, &connect.CommandError{Kind: connect.ErrConnectionDropped})
	o.TableDepth(3, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(connected.WithLabelValues("obs-test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(commandsSent.WithLabelValues("obs-test", "12", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(responsesMatched.WithLabelValues("obs-test", "13")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pushEvents.WithLabelValues("obs-test", "50")))
	assert.Equal(t, 1.0, testutil.ToFloat64(commandFailures.WithLabelValues("obs-test", "connection_dropped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(tableDepth.WithLabelValues("obs-test", "pending")))
	assert.Equal(t, 2.0, testutil.ToFloat64(tableDepth.WithLabelValues("obs-test", "queued")))

	o.StateChanged(connect.Disconnected)
	assert.Equal(t, 0.0, testutil.ToFloat64(connected.WithLabelValues("obs-test")))
}

func TestFailureKindLabels(t *testing.T) {
	testlog.Start(t)
	assert.Equal(t, "not_connected", FailureKind(connect.ErrNotConnected))
	assert.Equal(t, "send_failed", FailureKind(&connect.CommandError{Kind: connect.ErrSendFailed}))
	assert.Equal(t, "other", FailureKind(nil))
}
