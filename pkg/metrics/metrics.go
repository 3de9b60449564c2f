// Package metrics exposes the Prometheus collectors of the agent engine.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes.
const (
	OutcomeAnswered   = "answered"
	OutcomeSummarized = "summarized"
	OutcomeFailed     = "failed"
)

// Collector groups every metric the engine records.
type Collector struct {
	agentRuns        *prometheus.CounterVec
	agentTurns       prometheus.Histogram
	runDuration      prometheus.Histogram
	toolCalls        *prometheus.CounterVec
	toolDuration     *prometheus.HistogramVec
	providerConnects *prometheus.CounterVec
	providerSessions prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		agentRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foodai_agent_runs_total",
				Help: "Agent runs by outcome",
			},
			[]string{"outcome"},
		),
		agentTurns: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "foodai_agent_turns",
				Help:    "Tool-requesting model turns per agent run",
				Buckets: prometheus.LinearBuckets(0, 1, 7),
			},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name: "foodai_agent_run_duration_seconds",
				Help: "Wall time of agent runs",
			},
		),
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foodai_tool_invocations_total",
				Help: "Tool invocations by outcome (ok, error, denied)",
			},
			[]string{"tool", "outcome"},
		),
		toolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "foodai_tool_duration_seconds",
				Help: "Duration of tool executions",
			},
			[]string{"tool"},
		),
		providerConnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foodai_provider_connects_total",
				Help: "Provider handshakes by outcome",
			},
			[]string{"provider", "outcome"},
		),
		providerSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "foodai_provider_sessions",
				Help: "Provider sessions currently held in the pool",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			c.agentRuns, c.agentTurns, c.runDuration,
			c.toolCalls, c.toolDuration,
			c.providerConnects, c.providerSessions,
		)
	}
	return c
}

// ObserveRun records the end of an agent run.
func (c *Collector) ObserveRun(outcome string, turns int, d time.Duration) {
	if c == nil {
		return
	}
	c.agentRuns.WithLabelValues(outcome).Inc()
	c.agentTurns.Observe(float64(turns))
	c.runDuration.Observe(d.Seconds())
}

// ObserveTool records one tool invocation.
func (c *Collector) ObserveTool(tool string, res domain.ToolResult, d time.Duration) {
	if c == nil {
		return
	}
	outcome := "ok"
	switch {
	case res.Denied:
		outcome = "denied"
	case !res.OK:
		outcome = "error"
	}
	c.toolCalls.WithLabelValues(tool, outcome).Inc()
	if !res.Denied {
		c.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
	}
}

// ObserveConnect records a provider handshake attempt.
func (c *Collector) ObserveConnect(provider string, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.providerConnects.WithLabelValues(provider, outcome).Inc()
}

// SetSessions reports the pool size.
func (c *Collector) SetSessions(n int) {
	if c == nil {
		return
	}
	c.providerSessions.Set(float64(n))
}
