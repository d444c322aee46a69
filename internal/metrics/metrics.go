// Package metrics exposes gala's operational counters on a dedicated
// Prometheus registry. Components increment these directly; cmd/gala mounts
// Handler() when the metrics endpoint is enabled. Using a private registry
// keeps test runs from tripping over duplicate registration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every gala collector.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// Bus metrics
var (
	MessagesSent = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gala", Subsystem: "bus", Name: "messages_sent_total",
		Help: "Messages enqueued on the bus, by kind.",
	}, []string{"kind"})

	MessagesDropped = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gala", Subsystem: "bus", Name: "messages_dropped_total",
		Help: "Messages dropped (unknown endpoint, stale reply, full queue).",
	}, []string{"reason"})

	WaitTimeouts = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "gala", Subsystem: "bus", Name: "wait_timeouts_total",
		Help: "send_and_wait calls that returned empty on timeout.",
	})
)

// Planner metrics
var (
	SessionsActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "gala", Subsystem: "planner", Name: "sessions_active",
		Help: "Sessions currently open.",
	})

	SessionsCompleted = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gala", Subsystem: "planner", Name: "sessions_completed_total",
		Help: "Sessions that reached a final response, by outcome.",
	}, []string{"outcome"})

	TasksDispatched = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gala", Subsystem: "planner", Name: "tasks_dispatched_total",
		Help: "Tasks sent to workers, by task type.",
	}, []string{"type"})

	TasksFailed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gala", Subsystem: "planner", Name: "tasks_failed_total",
		Help: "Tasks that returned errors or timed out, by task type.",
	}, []string{"type"})

	Corrections = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "gala", Subsystem: "planner", Name: "corrections_total",
		Help: "Correction tasks injected after failures or user objections.",
	})
)

// Budget metrics
var (
	AnnealIterations = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gala", Subsystem: "budget", Name: "anneal_iterations",
		Help:    "Iterations consumed per distribution.",
		Buckets: prometheus.LinearBuckets(100, 100, 10),
	})

	BudgetFallbacks = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "gala", Subsystem: "budget", Name: "fallbacks_total",
		Help: "Distributions that fell back to the weight-proportional split.",
	})
)

// Knowledge metrics
var (
	GraphNodes = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gala", Subsystem: "graph", Name: "nodes",
		Help: "Nodes per category graph.",
	}, []string{"category"})

	Enrichments = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gala", Subsystem: "enrich", Name: "runs_total",
		Help: "Enrichment attempts, by outcome (enriched, skipped, failed).",
	}, []string{"outcome"})

	LLMCalls = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gala", Subsystem: "llm", Name: "calls_total",
		Help: "LLM calls, by provider and outcome.",
	}, []string{"provider", "outcome"})

	CrawlerPages = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "gala", Subsystem: "crawler", Name: "pages_total",
		Help: "Pages ingested by the crawler.",
	})
)

// Handler returns the HTTP handler serving the gala registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
