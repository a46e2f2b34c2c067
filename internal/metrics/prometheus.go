package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promMetrics holds the Prometheus series for one collector.
type promMetrics struct {
	registry *prometheus.Registry

	turnsTotal      *prometheus.CounterVec
	roundsTotal     prometheus.Counter
	tokensTotal     *prometheus.CounterVec
	toolCallsTotal  *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	opDuration      *prometheus.HistogramVec
}

func newPromMetrics() *promMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &promMetrics{
		registry: reg,
		turnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sprintpilot_chat_turns_total",
				Help: "Total number of chat turns by outcome",
			},
			[]string{"outcome"},
		),
		roundsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "sprintpilot_chat_rounds_total",
				Help: "Total number of provider rounds across all turns",
			},
		),
		tokensTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sprintpilot_tokens_total",
				Help: "Provider-reported tokens by operation and direction",
			},
			[]string{"operation", "direction"},
		),
		toolCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sprintpilot_tool_calls_total",
				Help: "Total number of tool calls by tool and status",
			},
			[]string{"tool", "status"},
		),
		providerLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sprintpilot_provider_request_duration_seconds",
				Help:    "Duration of provider calls in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),
		opDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sprintpilot_operation_duration_seconds",
				Help:    "Duration of non-provider operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (p *promMetrics) observeProvider(op string, d time.Duration, in, out int64) {
	if p == nil {
		return
	}
	p.providerLatency.WithLabelValues(op).Observe(d.Seconds())
	p.tokensTotal.WithLabelValues(op, "input").Add(float64(in))
	p.tokensTotal.WithLabelValues(op, "output").Add(float64(out))
	if op == OpChatRound {
		p.roundsTotal.Inc()
	}
}

func (p *promMetrics) observeTool(tool string, d time.Duration, success bool) {
	if p == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	p.toolCallsTotal.WithLabelValues(tool, status).Inc()
	p.opDuration.WithLabelValues("tool_call").Observe(d.Seconds())
}

func (p *promMetrics) observeTurn(outcome string) {
	if p == nil {
		return
	}
	p.turnsTotal.WithLabelValues(outcome).Inc()
}

func (p *promMetrics) observeDB(d time.Duration) {
	if p == nil {
		return
	}
	p.opDuration.WithLabelValues("db_query").Observe(d.Seconds())
}

// Registry returns the collector's Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil || c.prom == nil {
		return nil
	}
	return c.prom.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	reg := c.Registry()
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
