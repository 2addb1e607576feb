package observability

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danmuck/edgelink/internal/connect"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgelink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgelink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	commandsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgelink",
			Subsystem: "connect",
			Name:      "commands_sent_total",
			Help:      "Commands handed to the adapter.",
		},
		[]string{"instance", "payload_type", "replay"},
	)
	responsesMatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgelink",
			Subsystem: "connect",
			Name:      "responses_total",
			Help:      "Inbound messages matched to a pending command.",
		},
		[]string{"instance", "payload_type"},
	)
	pushEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgelink",
			Subsystem: "connect",
			Name:      "push_events_total",
			Help:      "Inbound messages routed to the push event sink.",
		},
		[]string{"instance", "payload_type"},
	)
	commandFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgelink",
			Subsystem: "connect",
			Name:      "command_failures_total",
			Help:      "Commands reported as failed, by kind.",
		},
		[]string{"instance", "kind"},
	)
	connected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "edgelink",
			Subsystem: "connect",
			Name:      "connected",
			Help:      "1 while the adapter reports connected.",
		},
		[]string{"instance"},
	)
	tableDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "edgelink",
			Subsystem: "connect",
			Name:      "table_depth",
			Help:      "Commands held by the engine, by table.",
		},
		[]string{"instance", "table"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			commandsSent, responsesMatched, pushEvents, commandFailures, connected, tableDepth,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// EngineObserver records connect.Client activity under one instance label.
type EngineObserver struct {
	instance string
}

func NewEngineObserver(instance string) *EngineObserver {
	RegisterMetrics()
	return &EngineObserver{instance: instance}
}

func (o *EngineObserver) StateChanged(s connect.State) {
	v := 0.0
	if s == connect.Connected {
		v = 1
	}
	connected.WithLabelValues(o.instance).Set(v)
}

func (o *EngineObserver) CommandSent(payloadType uint32, replay bool) {
	commandsSent.WithLabelValues(o.instance, payloadTypeLabel(payloadType), strconv.FormatBool(replay)).Inc()
}

func (o *EngineObserver) ResponseMatched(payloadType uint32) {
	responsesMatched.WithLabelValues(o.instance, payloadTypeLabel(payloadType)).Inc()
}

func (o *EngineObserver) PushEvent(payloadType uint32) {
	pushEvents.WithLabelValues(o.instance, payloadTypeLabel(payloadType)).Inc()
}

func (o *EngineObserver) CommandFailed(_ uint32, kind error) {
	commandFailures.WithLabelValues(o.instance, FailureKind(kind)).Inc()
}

func (o *EngineObserver) TableDepth(pending, queued int) {
	tableDepth.WithLabelValues(o.instance, "pending").Set(float64(pending))
	tableDepth.WithLabelValues(o.instance, "queued").Set(float64(queued))
}

// FailureKind maps an engine error to a bounded label value.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, connect.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, connect.ErrSendFailed):
		return "send_failed"
	case errors.Is(err, connect.ErrConnectionDropped):
		return "connection_dropped"
	case errors.Is(err, connect.ErrClosed):
		return "closed"
	case errors.Is(err, connect.ErrDuplicateID):
		return "duplicate_id"
	default:
		return "other"
	}
}

func payloadTypeLabel(pt uint32) string {
	return strconv.FormatUint(uint64(pt), 10)
}
