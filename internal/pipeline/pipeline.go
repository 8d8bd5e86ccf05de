// Package pipeline runs one support request through the guard, the agents and
// the escalation decision, tracing and measuring every stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ymahak/cust/internal/agent"
	"github.com/ymahak/cust/internal/domain"
	"github.com/ymahak/cust/internal/guard"
	"github.com/ymahak/cust/internal/metrics"
	"github.com/ymahak/cust/internal/tracing"
)

// DefaultCapabilityTimeout bounds a single Classifier or Responder call.
const DefaultCapabilityTimeout = 30 * time.Second

// EscalationReasonPrefix precedes the intent in every pipeline-created escalation.
const EscalationReasonPrefix = "support agent flagged for review: "

// Stage is the position of a request in the pipeline.
type Stage string

const (
	StageStart      Stage = "start"
	StageGuarded    Stage = "guarded"
	StageClassified Stage = "classified"
	StageResponded  Stage = "responded"
	StageEscalated  Stage = "escalated"
	StageResolved   Stage = "resolved"
	StageDone       Stage = "done"
)

// Request is one inbound message.
type Request struct {
	Text     string
	CallerID string       // empty for anonymous callers
	History  []agent.Turn // optional, oldest first; loaded from MessageStore when nil
}

// Result is what the caller sees for an accepted request.
type Result struct {
	Reply        string         `json:"response"`
	Intent       agent.Intent   `json:"intent"`
	AgentType    string         `json:"agent_type"`
	Escalated    bool           `json:"escalated"`
	EscalationID *uuid.UUID     `json:"escalation_id,omitempty"`
	TraceID      tracing.SpanID `json:"trace_id"`
	Timestamp    time.Time      `json:"timestamp"`
}

// RejectionError is returned when the guard blocks a request.
type RejectionError struct {
	Reason  string
	TraceID tracing.SpanID
}

func (e *RejectionError) Error() string { return "pipeline: rejected: " + e.Reason }
func (e *RejectionError) Unwrap() error { return domain.ErrValidationRejected }

// Escalator creates escalations. Satisfied by escalation.Service.
type Escalator interface {
	Create(ctx context.Context, callerID, reason, agentType, originalResponse string) (*domain.Escalation, error)
}

// MessageStore persists exchanges and serves recent history.
type MessageStore interface {
	SaveMessage(ctx context.Context, m *domain.Message) error
	RecentHistory(ctx context.Context, callerID string, limit int) ([]agent.Turn, error)
}

// Policy makes the final escalation decision from the classified intent and
// the responder output.
type Policy func(intent agent.Intent, resp agent.Response) bool

// HintPolicy escalates exactly when the responder asked for it.
func HintPolicy(_ agent.Intent, resp agent.Response) bool {
	return resp.NeedsEscalation
}

// Deps are the collaborators every pipeline needs.
type Deps struct {
	Guard       *guard.Guard
	Classifier  agent.Classifier
	Responder   agent.Responder
	Escalations Escalator
	Tracer      *tracing.Tracer
	Metrics     *metrics.Registry
}

type Pipeline struct {
	Deps

	messages MessageStore
	policy   Policy
	timeout  time.Duration
	now      func() time.Time
}

type Option func(*Pipeline)

// WithMessageStore enables history lookup and message persistence.
func WithMessageStore(m MessageStore) Option {
	return func(p *Pipeline) { p.messages = m }
}

// WithPolicy replaces HintPolicy.
func WithPolicy(policy Policy) Option {
	return func(p *Pipeline) { p.policy = policy }
}

// WithCapabilityTimeout bounds each Classifier and Responder call.
func WithCapabilityTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(deps Deps, opts ...Option) *Pipeline {
	p := &Pipeline{
		Deps:    deps,
		policy:  HintPolicy,
		timeout: DefaultCapabilityTimeout,
		now:     time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// run carries the per-request state.
type run struct {
	p      *Pipeline
	root   tracing.SpanID
	caller string
	stage  Stage
}

func (r *run) advance(s Stage) {
	r.stage = s
	r.p.Tracer.AddLog(r.root, tracing.LevelDebug, "stage: "+string(s))
}

// Handle processes one request. The only error it returns is a
// *RejectionError; capability and persistence failures are absorbed.
func (p *Pipeline) Handle(ctx context.Context, req Request) (*Result, error) {
	caller := req.CallerID
	if caller == "" {
		caller = domain.AnonymousCaller
	}

	r := &run{p: p, caller: caller, stage: StageStart}
	r.root = p.Tracer.StartSpan(ctx, "chat_request", "")
	p.Tracer.SetAttribute(r.root, "caller_id", caller)

	if rej := r.guard(ctx, req.Text); rej != nil {
		return nil, rej
	}
	r.advance(StageGuarded)

	// Capability calls and the escalation write outlive a disconnected caller.
	work := context.WithoutCancel(ctx)

	history := req.History
	if history == nil {
		history = r.history(work)
	}

	intent := r.classify(work, req.Text)
	r.advance(StageClassified)

	resp, latency, failed := r.respond(work, req.Text, intent, history)
	escalate := failed || p.policy(intent, resp)
	p.Metrics.Record(metrics.AgentSupport, latency, resp.NeedsEscalation)
	r.advance(StageResponded)

	result := &Result{
		Reply:     resp.Text,
		Intent:    intent,
		AgentType: metrics.AgentSupport,
		Escalated: escalate,
		TraceID:   r.root,
	}

	if escalate {
		if id, ok := r.escalate(work, intent, resp.Text); ok {
			result.EscalationID = &id
		}
		r.advance(StageEscalated)
	} else {
		r.advance(StageResolved)
	}

	r.persist(work, req.Text, result)

	p.Tracer.SetAttribute(r.root, "intent", string(intent))
	r.advance(StageDone)
	p.Tracer.EndSpan(r.root, tracing.StatusCompleted)

	result.Timestamp = p.now().UTC()
	return result, nil
}

func (r *run) guard(ctx context.Context, text string) *RejectionError {
	t := r.p.Tracer
	span := t.StartSpan(ctx, "guard", r.root)

	res := r.p.Guard.Check(text)
	if res.Allowed {
		t.EndSpan(span, tracing.StatusCompleted)
		return nil
	}

	t.AddLog(span, tracing.LevelWarn, "blocked: "+res.Reason)
	t.EndSpan(span, tracing.StatusFailed)
	t.AddLog(r.root, tracing.LevelWarn, "request rejected at stage "+string(r.stage))
	t.EndSpan(r.root, tracing.StatusFailed)

	log.Info().Str("trace_id", string(r.root)).Str("reason", res.Reason).Msg("request rejected by guard")

	return &RejectionError{Reason: res.Reason, TraceID: r.root}
}

func (r *run) history(ctx context.Context) []agent.Turn {
	if r.p.messages == nil || r.caller == domain.AnonymousCaller {
		return nil
	}

	turns, err := r.p.messages.RecentHistory(ctx, r.caller, agent.MaxHistory)
	if err != nil {
		r.p.Tracer.AddLog(r.root, tracing.LevelWarn, "history unavailable: "+err.Error())
		log.Warn().Err(err).Str("caller_id", r.caller).Msg("history unavailable")
		return nil
	}
	return turns
}

func (r *run) classify(ctx context.Context, text string) agent.Intent {
	p := r.p
	span := p.Tracer.StartSpan(ctx, metrics.AgentIntent, r.root)

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	start := p.now()
	intent, err := contain(func() (agent.Intent, error) { return p.Classifier.Classify(cctx, text) })
	latency := p.now().Sub(start)
	cancel()

	p.Metrics.Record(metrics.AgentIntent, latency, false)

	if err != nil {
		intent = agent.IntentOther
		r.fail(span, metrics.AgentIntent, err)
	} else {
		intent = agent.ParseIntent(string(intent))
		p.Tracer.AddLog(span, tracing.LevelInfo, "intent: "+string(intent))
		p.Tracer.EndSpan(span, tracing.StatusCompleted)
	}

	p.Metrics.RecordIntent(string(intent))
	return intent
}

// respond reports failed=true when the fallback reply was substituted.
func (r *run) respond(ctx context.Context, text string, intent agent.Intent, history []agent.Turn) (agent.Response, time.Duration, bool) {
	p := r.p
	span := p.Tracer.StartSpan(ctx, metrics.AgentSupport, r.root)

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	start := p.now()
	resp, err := contain(func() (agent.Response, error) {
		return p.Responder.Respond(cctx, text, intent, agent.LastTurns(history))
	})
	latency := p.now().Sub(start)
	cancel()

	if err != nil {
		r.fail(span, metrics.AgentSupport, err)
		return agent.Response{Text: agent.FallbackReply, NeedsEscalation: true}, latency, true
	}

	if resp.NeedsEscalation {
		p.Tracer.AddLog(span, tracing.LevelInfo, "responder requested escalation")
	}
	p.Tracer.EndSpan(span, tracing.StatusCompleted)
	return resp, latency, false
}

func (r *run) escalate(ctx context.Context, intent agent.Intent, reply string) (uuid.UUID, bool) {
	p := r.p
	span := p.Tracer.StartSpan(ctx, metrics.AgentEscalation, r.root)

	start := p.now()
	e, err := p.Escalations.Create(ctx, r.caller, EscalationReasonPrefix+string(intent), metrics.AgentSupport, reply)
	p.Metrics.Record(metrics.AgentEscalation, p.now().Sub(start), false)

	if err != nil {
		p.Tracer.AddLog(span, tracing.LevelError, "escalation not created: "+err.Error())
		p.Tracer.EndSpan(span, tracing.StatusFailed)
		p.Metrics.RecordError(metrics.AgentEscalation, "persistence")
		log.Error().Err(err).Str("trace_id", string(r.root)).Msg("escalation not created")
		return uuid.Nil, false
	}

	p.Tracer.SetAttribute(span, "escalation_id", e.ID.String())
	p.Tracer.EndSpan(span, tracing.StatusCompleted)
	return e.ID, true
}

func (r *run) persist(ctx context.Context, text string, res *Result) {
	if r.p.messages == nil {
		return
	}

	m := &domain.Message{
		ID:        uuid.New(),
		CallerID:  r.caller,
		Text:      text,
		Reply:     res.Reply,
		AgentType: res.AgentType,
		Metadata: map[string]any{
			"intent":    string(res.Intent),
			"escalated": res.Escalated,
			"trace_id":  string(res.TraceID),
		},
		CreatedAt: r.p.now().UTC(),
	}
	if err := r.p.messages.SaveMessage(ctx, m); err != nil {
		err = errors.Join(domain.ErrPersistenceDegraded, err)
		r.p.Tracer.AddLog(r.root, tracing.LevelWarn, "message not saved: "+err.Error())
		log.Warn().Err(err).Str("trace_id", string(r.root)).Msg("message not saved")
	}
}

// contain runs a capability call, turning a panic into an upstream error.
func contain[T any](call func() (T, error)) (out T, err error) {
	defer func() {
		if v := recover(); v != nil {
			var zero T
			out, err = zero, fmt.Errorf("%w: panic: %v", domain.ErrUpstreamUnavailable, v)
		}
	}()
	return call()
}

// fail logs a capability error into span and counts it.
func (r *run) fail(span tracing.SpanID, agentLabel string, err error) {
	r.p.Tracer.AddLog(span, tracing.LevelError, err.Error())
	r.p.Tracer.EndSpan(span, tracing.StatusFailed)
	r.p.Metrics.RecordError(agentLabel, errorKind(err))
	log.Warn().Err(err).Str("agent", agentLabel).Str("trace_id", string(r.root)).Msg("capability failed, using fallback")
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	default:
		return "error"
	}
}
