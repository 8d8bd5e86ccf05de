// Package metrics aggregates per-agent call statistics in memory and mirrors
// every sample to OpenTelemetry instruments.
package metrics

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/ymahak/cust/internal/domain"
)

// Agent labels used by the pipeline.
const (
	AgentIntent     = "intent_agent"
	AgentSupport    = "support_agent"
	AgentEscalation = "escalation_agent"
)

// EscalationCounter supplies escalation counts at read time.
type EscalationCounter interface {
	Stats(ctx context.Context) (domain.EscalationCounts, error)
}

// AgentStats is the derived view of one agent's counters.
type AgentStats struct {
	TotalCalls     int64   `json:"total_calls"`
	Escalations    int64   `json:"escalations"`
	AvgLatencyMS   float64 `json:"avg_latency_ms"`
	TotalLatencyMS float64 `json:"total_latency_ms"`
	MinLatencyMS   float64 `json:"min_latency_ms"`
	MaxLatencyMS   float64 `json:"max_latency_ms"`
	EscalationRate float64 `json:"escalation_rate"`
}

// EscalationStats groups escalation counts for the monitoring view.
type EscalationStats struct {
	Pending  int64 `json:"pending"`
	Resolved int64 `json:"resolved"` // approved + edited
	Rejected int64 `json:"rejected"`
}

// Overview is the full in-memory metrics picture.
type Overview struct {
	Agents             map[string]AgentStats `json:"agent_performance"`
	IntentDistribution map[string]int64      `json:"intent_distribution"`
	Errors             map[string]int64      `json:"errors"`
	TotalCalls         int64                 `json:"total_calls"`
	TotalEscalations   int64                 `json:"total_escalations"`
	UptimeSeconds      float64               `json:"uptime_seconds"`
}

type agentCounters struct {
	mu          sync.Mutex
	calls       int64
	escalations int64
	total       time.Duration
	min         time.Duration
	max         time.Duration
}

func (c *agentCounters) add(latency time.Duration, escalated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	c.total += latency
	if latency < c.min {
		c.min = latency
	}
	if latency > c.max {
		c.max = latency
	}
	if escalated {
		c.escalations++
	}
}

func (c *agentCounters) stats() AgentStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := AgentStats{
		TotalCalls:     c.calls,
		Escalations:    c.escalations,
		TotalLatencyMS: ms(c.total),
		MaxLatencyMS:   ms(c.max),
	}
	if c.calls > 0 {
		s.AvgLatencyMS = ms(c.total) / float64(c.calls)
		s.MinLatencyMS = ms(c.min)
		s.EscalationRate = float64(c.escalations) / float64(c.calls)
	}
	return s
}

type instruments struct {
	calls       metric.Int64Counter
	escalations metric.Int64Counter
	errors      metric.Int64Counter
	intents     metric.Int64Counter
	latency     metric.Float64Histogram
}

func newInstruments(m metric.Meter) (*instruments, error) {
	var (
		in  instruments
		err error
	)
	if in.calls, err = m.Int64Counter("cust.agent.calls",
		metric.WithDescription("Agent invocations")); err != nil {
		return nil, err
	}
	if in.escalations, err = m.Int64Counter("cust.agent.escalations",
		metric.WithDescription("Agent invocations that flagged escalation")); err != nil {
		return nil, err
	}
	if in.errors, err = m.Int64Counter("cust.agent.errors",
		metric.WithDescription("Agent capability failures")); err != nil {
		return nil, err
	}
	if in.intents, err = m.Int64Counter("cust.intents",
		metric.WithDescription("Classified intents")); err != nil {
		return nil, err
	}
	if in.latency, err = m.Float64Histogram("cust.agent.latency",
		metric.WithDescription("Agent call latency"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	return &in, nil
}

// Registry holds per-agent counters. The map lock is only taken for writing
// when an agent label is seen for the first time or on Reset.
type Registry struct {
	mu      sync.RWMutex
	agents  map[string]*agentCounters
	started time.Time

	auxMu   sync.Mutex
	intents map[string]int64
	errors  map[string]int64

	escalations EscalationCounter
	inst        *instruments
}

type Option func(*Registry)

// WithMeter mirrors samples to instruments created on m.
func WithMeter(m metric.Meter) Option {
	return func(r *Registry) {
		in, err := newInstruments(m)
		if err == nil {
			r.inst = in
		}
	}
}

// WithEscalations sets the source for EscalationStats.
func WithEscalations(c EscalationCounter) Option {
	return func(r *Registry) { r.escalations = c }
}

func New(opts ...Option) *Registry {
	r := &Registry{
		agents:  make(map[string]*agentCounters),
		intents: make(map[string]int64),
		errors:  make(map[string]int64),
		started: time.Now(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.inst == nil {
		r.inst, _ = newInstruments(noop.NewMeterProvider().Meter(""))
	}
	return r
}

// Record adds one call sample for agent. The sample is applied while holding
// r.mu so a concurrent Reset either sees it or drops it with the old map.
func (r *Registry) Record(agent string, latency time.Duration, escalated bool) {
	r.mu.RLock()
	c, ok := r.agents[agent]
	if ok {
		c.add(latency, escalated)
	}
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		if c, ok = r.agents[agent]; !ok {
			c = &agentCounters{min: time.Duration(math.MaxInt64)}
			r.agents[agent] = c
		}
		c.add(latency, escalated)
		r.mu.Unlock()
	}

	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("agent", agent))
	r.inst.calls.Add(ctx, 1, attrs)
	r.inst.latency.Record(ctx, ms(latency), attrs)
	if escalated {
		r.inst.escalations.Add(ctx, 1, attrs)
	}
}

// RecordIntent counts one classification result.
func (r *Registry) RecordIntent(intent string) {
	r.auxMu.Lock()
	r.intents[intent]++
	r.auxMu.Unlock()

	r.inst.intents.Add(context.Background(), 1, metric.WithAttributes(attribute.String("intent", intent)))
}

// RecordError counts one capability failure for agent.
func (r *Registry) RecordError(agent, kind string) {
	r.auxMu.Lock()
	r.errors[agent+"_"+kind]++
	r.auxMu.Unlock()

	r.inst.errors.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("kind", kind),
	))
}

// Snapshot returns derived stats for every agent seen since the last reset.
func (r *Registry) Snapshot() map[string]AgentStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]AgentStats, len(r.agents))
	for name, c := range r.agents {
		out[name] = c.stats()
	}
	return out
}

// Overview returns the snapshot together with intent and error counts.
func (r *Registry) Overview() Overview {
	agents := r.Snapshot()

	r.mu.RLock()
	started := r.started
	r.mu.RUnlock()

	o := Overview{
		Agents:             agents,
		IntentDistribution: make(map[string]int64),
		Errors:             make(map[string]int64),
		UptimeSeconds:      time.Since(started).Seconds(),
	}
	for _, s := range agents {
		o.TotalCalls += s.TotalCalls
		o.TotalEscalations += s.Escalations
	}

	r.auxMu.Lock()
	for k, v := range r.intents {
		o.IntentDistribution[k] = v
	}
	for k, v := range r.errors {
		o.Errors[k] = v
	}
	r.auxMu.Unlock()

	return o
}

// EscalationStats reads current escalation counts from the escalation store.
func (r *Registry) EscalationStats(ctx context.Context) (EscalationStats, error) {
	if r.escalations == nil {
		return EscalationStats{}, nil
	}

	c, err := r.escalations.Stats(ctx)
	if err != nil {
		return EscalationStats{}, fmt.Errorf("metrics.Registry.EscalationStats: %w", err)
	}

	return EscalationStats{
		Pending:  c.Pending,
		Resolved: c.Approved + c.Edited,
		Rejected: c.Rejected,
	}, nil
}

// Reset drops every counter.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.agents = make(map[string]*agentCounters)
	r.started = time.Now()
	r.mu.Unlock()

	r.auxMu.Lock()
	r.intents = make(map[string]int64)
	r.errors = make(map[string]int64)
	r.auxMu.Unlock()
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
