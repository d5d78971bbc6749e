package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every crmflow collector; exposed at /metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	executionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crmflow",
		Subsystem: "automation",
		Name:      "executions_total",
		Help:      "Rule evaluations that reached dispatch, by resulting status.",
	}, []string{"trigger", "status"})

	actionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crmflow",
		Subsystem: "automation",
		Name:      "actions_total",
		Help:      "Dispatched actions by kind and outcome.",
	}, []string{"action", "status"})

	dispatchSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crmflow",
		Subsystem: "automation",
		Name:      "event_duration_seconds",
		Help:      "Time to process one event end to end.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"trigger"})

	outreachTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crmflow",
		Subsystem: "outreach",
		Name:      "messages_total",
		Help:      "Outbound messages by channel and status.",
	}, []string{"channel", "status"})

	pendingProcessed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "crmflow",
		Subsystem: "automation",
		Name:      "pending_actions_processed_total",
		Help:      "Delayed actions processed by the pending worker.",
	})

	rateLimitDrops = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crmflow",
		Subsystem: "http",
		Name:      "rate_limit_drops_total",
		Help:      "Requests rejected with 429, by limiter prefix.",
	}, []string{"prefix"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveExecution counts one execution record.
func ObserveExecution(trigger, status string) {
	executionsTotal.WithLabelValues(trigger, status).Inc()
}

// ObserveAction counts one action outcome.
func ObserveAction(action, status string) {
	actionsTotal.WithLabelValues(action, status).Inc()
}

// ObserveEvent records how long an event took to process.
func ObserveEvent(trigger string, d time.Duration) {
	dispatchSeconds.WithLabelValues(trigger).Observe(d.Seconds())
}

// ObserveOutreach counts one outbound message.
func ObserveOutreach(channel, status string) {
	outreachTotal.WithLabelValues(channel, status).Inc()
}

// AddPendingProcessed adds n processed delayed actions.
func AddPendingProcessed(n int) {
	pendingProcessed.Add(float64(n))
}

// IncRateLimitDrop increments drop counters for the given prefix.
// Use prefix "global" for global limiter rejections.
func IncRateLimitDrop(prefix string) {
	if prefix == "" {
		prefix = "global"
	}
	rateLimitDrops.WithLabelValues(prefix).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
