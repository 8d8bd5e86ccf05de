package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ymahak/cust/internal/agent"
	"github.com/ymahak/cust/internal/domain"
	"github.com/ymahak/cust/internal/escalation"
	"github.com/ymahak/cust/internal/guard"
	"github.com/ymahak/cust/internal/metrics"
	"github.com/ymahak/cust/internal/pipeline"
	"github.com/ymahak/cust/internal/store/memory"
	"github.com/ymahak/cust/internal/tracing"
)

// --- mocks ---

type mockClassifier struct {
	calls        atomic.Int32
	classifyFunc func(ctx context.Context, text string) (agent.Intent, error)
}

func (m *mockClassifier) Classify(ctx context.Context, text string) (agent.Intent, error) {
	m.calls.Add(1)
	if m.classifyFunc != nil {
		return m.classifyFunc(ctx, text)
	}
	return agent.IntentOther, nil
}

type mockResponder struct {
	calls       atomic.Int32
	respondFunc func(ctx context.Context, text string, intent agent.Intent, history []agent.Turn) (agent.Response, error)
}

func (m *mockResponder) Respond(ctx context.Context, text string, intent agent.Intent, history []agent.Turn) (agent.Response, error) {
	m.calls.Add(1)
	if m.respondFunc != nil {
		return m.respondFunc(ctx, text, intent, history)
	}
	return agent.Response{Text: "ok"}, nil
}

type mockEscalator struct {
	createFunc func(ctx context.Context, callerID, reason, agentType, original string) (*domain.Escalation, error)
}

func (m *mockEscalator) Create(ctx context.Context, callerID, reason, agentType, original string) (*domain.Escalation, error) {
	return m.createFunc(ctx, callerID, reason, agentType, original)
}

type mockMessages struct {
	mu      sync.Mutex
	saved   []*domain.Message
	history []agent.Turn
	saveErr error
	histErr error
}

func (m *mockMessages) SaveMessage(_ context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, msg)
	return nil
}

func (m *mockMessages) RecentHistory(_ context.Context, _ string, _ int) ([]agent.Turn, error) {
	return m.history, m.histErr
}

// --- helpers ---

type fixture struct {
	classifier *mockClassifier
	responder  *mockResponder
	esc        *escalation.Service
	store      *memory.Store
	tracer     *tracing.Tracer
	metrics    *metrics.Registry
}

func newFixture(opts ...pipeline.Option) (*fixture, *pipeline.Pipeline) {
	store := memory.New()
	f := &fixture{
		classifier: &mockClassifier{},
		responder:  &mockResponder{},
		esc:        escalation.NewService(store.Escalations(), store.Feedback()),
		store:      store,
		tracer:     tracing.New(),
		metrics:    metrics.New(),
	}
	p := pipeline.New(pipeline.Deps{
		Guard:       guard.New(0, nil),
		Classifier:  f.classifier,
		Responder:   f.responder,
		Escalations: f.esc,
		Tracer:      f.tracer,
		Metrics:     f.metrics,
	}, opts...)
	return f, p
}

func pending(t *testing.T, f *fixture) []*domain.Escalation {
	t.Helper()
	list, err := f.esc.ListPending(context.Background())
	require.NoError(t, err)
	return list
}

// --- tests ---

func TestHandle_ResolvedWithoutEscalation(t *testing.T) {
	t.Parallel()

	f, p := newFixture()
	f.classifier.classifyFunc = func(_ context.Context, _ string) (agent.Intent, error) {
		return agent.IntentRefund, nil
	}
	f.responder.respondFunc = func(_ context.Context, _ string, intent agent.Intent, _ []agent.Turn) (agent.Response, error) {
		assert.Equal(t, agent.IntentRefund, intent)
		return agent.Response{Text: "Refunds take 5 days."}, nil
	}

	res, err := p.Handle(context.Background(), pipeline.Request{Text: "I want a refund"})
	require.NoError(t, err)

	assert.Equal(t, "Refunds take 5 days.", res.Reply)
	assert.Equal(t, agent.IntentRefund, res.Intent)
	assert.Equal(t, "support_agent", res.AgentType)
	assert.False(t, res.Escalated)
	assert.Nil(t, res.EscalationID)
	assert.Empty(t, pending(t, f))

	trace, err := f.tracer.GetTrace(res.TraceID)
	require.NoError(t, err)
	assert.Equal(t, "chat_request", trace.Operation)
	assert.Equal(t, tracing.StatusCompleted, trace.Status)

	ops := make([]string, 0, len(trace.Children))
	for _, c := range trace.Children {
		ops = append(ops, c.Operation)
		assert.Equal(t, tracing.StatusCompleted, c.Status)
	}
	assert.Equal(t, []string{"guard", "intent_agent", "support_agent"}, ops)

	snap := f.metrics.Snapshot()
	assert.Equal(t, int64(1), snap[metrics.AgentIntent].TotalCalls)
	assert.Equal(t, int64(1), snap[metrics.AgentSupport].TotalCalls)
	assert.Equal(t, int64(0), snap[metrics.AgentSupport].Escalations)
	assert.Equal(t, int64(1), f.metrics.Overview().IntentDistribution["refund"])
}

func TestHandle_GuardRejection(t *testing.T) {
	t.Parallel()

	f, p := newFixture()

	res, err := p.Handle(context.Background(), pipeline.Request{Text: "my password=hunter2"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, domain.ErrValidationRejected)

	var rej *pipeline.RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, guard.ReasonSensitiveData, rej.Reason)

	assert.Zero(t, f.classifier.calls.Load())
	assert.Zero(t, f.responder.calls.Load())
	assert.Empty(t, f.metrics.Snapshot())
	assert.Empty(t, pending(t, f))

	trace, err := f.tracer.GetTrace(rej.TraceID)
	require.NoError(t, err)
	assert.Equal(t, tracing.StatusFailed, trace.Status)
	require.Len(t, trace.Children, 1)
	assert.Equal(t, "guard", trace.Children[0].Operation)
	assert.Equal(t, tracing.StatusFailed, trace.Children[0].Status)
}

func TestHandle_ResponderFailureFallsBack(t *testing.T) {
	t.Parallel()

	f, p := newFixture()
	f.classifier.classifyFunc = func(_ context.Context, _ string) (agent.Intent, error) {
		return agent.IntentTechnical, nil
	}
	f.responder.respondFunc = func(_ context.Context, _ string, _ agent.Intent, _ []agent.Turn) (agent.Response, error) {
		return agent.Response{}, domain.ErrUpstreamUnavailable
	}

	res, err := p.Handle(context.Background(), pipeline.Request{Text: "the app crashes", CallerID: "bob"})
	require.NoError(t, err)

	assert.Equal(t, agent.FallbackReply, res.Reply)
	assert.True(t, res.Escalated)
	require.NotNil(t, res.EscalationID)

	list := pending(t, f)
	require.Len(t, list, 1)
	assert.Equal(t, *res.EscalationID, list[0].ID)
	assert.Equal(t, "support_agent", list[0].AgentType)
	assert.Equal(t, "bob", list[0].CallerID)
	assert.Equal(t, agent.FallbackReply, list[0].OriginalResponse)
	assert.Equal(t, pipeline.EscalationReasonPrefix+"technical", list[0].Reason)

	snap := f.metrics.Snapshot()
	assert.Equal(t, int64(1), snap[metrics.AgentSupport].Escalations)
	assert.Equal(t, int64(1), snap[metrics.AgentEscalation].TotalCalls)
	assert.Equal(t, int64(1), f.metrics.Overview().Errors["support_agent_upstream_unavailable"])

	trace, err := f.tracer.GetTrace(res.TraceID)
	require.NoError(t, err)
	assert.Equal(t, tracing.StatusCompleted, trace.Status)
	require.Len(t, trace.Children, 4)
	assert.Equal(t, tracing.StatusFailed, trace.Children[2].Status)
	assert.Equal(t, "escalation_agent", trace.Children[3].Operation)
}

func TestHandle_ClassifierFailureUsesOther(t *testing.T) {
	t.Parallel()

	f, p := newFixture()
	f.classifier.classifyFunc = func(_ context.Context, _ string) (agent.Intent, error) {
		return "", errors.New("boom")
	}

	res, err := p.Handle(context.Background(), pipeline.Request{Text: "hmm"})
	require.NoError(t, err)
	assert.Equal(t, agent.IntentOther, res.Intent)
	assert.False(t, res.Escalated)

	o := f.metrics.Overview()
	assert.Equal(t, int64(1), o.Errors["intent_agent_error"])
	assert.Equal(t, int64(1), o.Agents[metrics.AgentIntent].TotalCalls)
}

func TestHandle_HintEscalates(t *testing.T) {
	t.Parallel()

	f, p := newFixture()
	f.responder.respondFunc = func(_ context.Context, _ string, _ agent.Intent, _ []agent.Turn) (agent.Response, error) {
		return agent.Response{Text: "Let me get someone.", NeedsEscalation: true}, nil
	}

	res, err := p.Handle(context.Background(), pipeline.Request{Text: "talk to a human"})
	require.NoError(t, err)
	assert.True(t, res.Escalated)

	list := pending(t, f)
	require.Len(t, list, 1)
	assert.Equal(t, domain.AnonymousCaller, list[0].CallerID)
	assert.Equal(t, "Let me get someone.", list[0].OriginalResponse)
}

func TestHandle_MetricsMatchRequests(t *testing.T) {
	t.Parallel()

	f, p := newFixture()
	var n atomic.Int32
	f.responder.respondFunc = func(_ context.Context, _ string, _ agent.Intent, _ []agent.Turn) (agent.Response, error) {
		// every third request escalates
		return agent.Response{Text: "ok", NeedsEscalation: n.Add(1)%3 == 0}, nil
	}

	const requests = 30
	var wg sync.WaitGroup
	for range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Handle(context.Background(), pipeline.Request{Text: "hello there"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap := f.metrics.Snapshot()
	assert.Equal(t, int64(requests), snap[metrics.AgentIntent].TotalCalls)
	assert.Equal(t, int64(requests), snap[metrics.AgentSupport].TotalCalls)
	assert.Equal(t, int64(requests/3), snap[metrics.AgentSupport].Escalations)
	assert.InDelta(t, 1.0/3.0, snap[metrics.AgentSupport].EscalationRate, 1e-9)
	assert.Len(t, pending(t, f), requests/3)
}

func TestHandle_EscalationCreateFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	f, p := newFixture()
	p.Escalations = &mockEscalator{
		createFunc: func(_ context.Context, _, _, _, _ string) (*domain.Escalation, error) {
			return nil, errors.New("db down")
		},
	}
	f.responder.respondFunc = func(_ context.Context, _ string, _ agent.Intent, _ []agent.Turn) (agent.Response, error) {
		return agent.Response{Text: "checking", NeedsEscalation: true}, nil
	}

	res, err := p.Handle(context.Background(), pipeline.Request{Text: "where is my order"})
	require.NoError(t, err)
	assert.Equal(t, "checking", res.Reply)
	assert.True(t, res.Escalated)
	assert.Nil(t, res.EscalationID)

	trace, err := f.tracer.GetTrace(res.TraceID)
	require.NoError(t, err)
	assert.Equal(t, tracing.StatusCompleted, trace.Status)
	assert.Equal(t, tracing.StatusFailed, trace.Children[len(trace.Children)-1].Status)
}

func TestHandle_CancelledCallerStillCompletes(t *testing.T) {
	t.Parallel()

	f, p := newFixture()
	f.responder.respondFunc = func(ctx context.Context, _ string, _ agent.Intent, _ []agent.Turn) (agent.Response, error) {
		if err := ctx.Err(); err != nil {
			return agent.Response{}, err
		}
		return agent.Response{Text: "done", NeedsEscalation: true}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Handle(ctx, pipeline.Request{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Reply)
	assert.Len(t, pending(t, f), 1)
}

func TestHandle_CapabilityTimeout(t *testing.T) {
	t.Parallel()

	f, p := newFixture(pipeline.WithCapabilityTimeout(10 * time.Millisecond))
	f.classifier.classifyFunc = func(ctx context.Context, _ string) (agent.Intent, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	res, err := p.Handle(context.Background(), pipeline.Request{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, agent.IntentOther, res.Intent)
	assert.Equal(t, int64(1), f.metrics.Overview().Errors["intent_agent_timeout"])
}

func TestHandle_HistoryAndPersistence(t *testing.T) {
	t.Parallel()

	msgs := &mockMessages{history: []agent.Turn{{Text: "hi", Reply: "hello"}}}
	f, p := newFixture(
		pipeline.WithMessageStore(msgs),
		pipeline.WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }),
	)

	var gotHistory []agent.Turn
	f.responder.respondFunc = func(_ context.Context, _ string, _ agent.Intent, h []agent.Turn) (agent.Response, error) {
		gotHistory = h
		return agent.Response{Text: "sure"}, nil
	}

	res, err := p.Handle(context.Background(), pipeline.Request{Text: "and now?", CallerID: "carol"})
	require.NoError(t, err)
	assert.Equal(t, msgs.history, gotHistory)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), res.Timestamp)

	require.Len(t, msgs.saved, 1)
	saved := msgs.saved[0]
	assert.Equal(t, "carol", saved.CallerID)
	assert.Equal(t, "and now?", saved.Text)
	assert.Equal(t, "sure", saved.Reply)
	assert.Equal(t, "other", saved.Metadata["intent"])
	assert.Equal(t, false, saved.Metadata["escalated"])
	assert.Equal(t, string(res.TraceID), saved.Metadata["trace_id"])
}

func TestHandle_AnonymousSkipsHistory(t *testing.T) {
	t.Parallel()

	msgs := &mockMessages{history: []agent.Turn{{Text: "secret", Reply: "leak"}}}
	f, p := newFixture(pipeline.WithMessageStore(msgs))

	f.responder.respondFunc = func(_ context.Context, _ string, _ agent.Intent, h []agent.Turn) (agent.Response, error) {
		assert.Empty(t, h)
		return agent.Response{Text: "hi"}, nil
	}

	_, err := p.Handle(context.Background(), pipeline.Request{Text: "hello"})
	require.NoError(t, err)
}

func TestHandle_PersistenceFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	msgs := &mockMessages{saveErr: errors.New("disk full"), histErr: errors.New("read failed")}
	_, p := newFixture(pipeline.WithMessageStore(msgs))

	res, err := p.Handle(context.Background(), pipeline.Request{Text: "hello", CallerID: "dave"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Reply)
}

func TestHandle_SensitivePolicy(t *testing.T) {
	t.Parallel()

	f, p := newFixture(pipeline.WithPolicy(pipeline.SensitivePolicy))
	f.classifier.classifyFunc = func(_ context.Context, _ string) (agent.Intent, error) {
		return agent.IntentBilling, nil
	}

	res, err := p.Handle(context.Background(), pipeline.Request{Text: "my invoice is wrong"})
	require.NoError(t, err)
	assert.True(t, res.Escalated)
	require.NotNil(t, res.EscalationID)
	assert.NotEqual(t, uuid.Nil, *res.EscalationID)
}

func TestSensitivePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		intent agent.Intent
		resp   agent.Response
		want   bool
	}{
		{"hint", agent.IntentGreeting, agent.Response{Text: "hi", NeedsEscalation: true}, true},
		{"refund", agent.IntentRefund, agent.Response{Text: "sure"}, true},
		{"complaint", agent.IntentComplaint, agent.Response{Text: "sorry"}, true},
		{"uncertain", agent.IntentQuestion, agent.Response{Text: "I'm Not Sure about that"}, true},
		{"unable", agent.IntentOther, agent.Response{Text: "I am unable to check"}, true},
		{"confident", agent.IntentQuestion, agent.Response{Text: "Open settings."}, false},
		{"greeting", agent.IntentGreeting, agent.Response{Text: "Hello!"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, pipeline.SensitivePolicy(tt.intent, tt.resp))
		})
	}
}

func TestRepoMessages_RecentHistoryOldestFirst(t *testing.T) {
	t.Parallel()

	store := memory.New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, text := range []string{"one", "two", "three"} {
		require.NoError(t, store.Messages().Save(ctx, &domain.Message{
			ID:        uuid.New(),
			CallerID:  "erin",
			Text:      text,
			Reply:     "re " + text,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	turns, err := pipeline.NewRepoMessages(store.Messages()).RecentHistory(ctx, "erin", 2)
	require.NoError(t, err)
	assert.Equal(t, []agent.Turn{
		{Text: "two", Reply: "re two"},
		{Text: "three", Reply: "re three"},
	}, turns)
}

func TestHandle_UnknownIntentBecomesOther(t *testing.T) {
	t.Parallel()

	f, p := newFixture()
	f.classifier.classifyFunc = func(_ context.Context, _ string) (agent.Intent, error) {
		return "banana", nil
	}
	f.responder.respondFunc = func(_ context.Context, _ string, intent agent.Intent, _ []agent.Turn) (agent.Response, error) {
		assert.Equal(t, agent.IntentOther, intent)
		return agent.Response{Text: "Let me check.", NeedsEscalation: true}, nil
	}

	res, err := p.Handle(context.Background(), pipeline.Request{Text: "something odd"})
	require.NoError(t, err)
	assert.Equal(t, agent.IntentOther, res.Intent)

	list := pending(t, f)
	require.Len(t, list, 1)
	assert.Equal(t, pipeline.EscalationReasonPrefix+"other", list[0].Reason)

	dist := f.metrics.Overview().IntentDistribution
	assert.Equal(t, int64(1), dist["other"])
	assert.NotContains(t, dist, "banana")
}

func TestHandle_ResponderPanicFallsBack(t *testing.T) {
	t.Parallel()

	f, p := newFixture()
	f.responder.respondFunc = func(_ context.Context, _ string, _ agent.Intent, _ []agent.Turn) (agent.Response, error) {
		panic("boom")
	}

	var res *pipeline.Result
	require.NotPanics(t, func() {
		var err error
		res, err = p.Handle(context.Background(), pipeline.Request{Text: "hello"})
		require.NoError(t, err)
	})

	assert.Equal(t, agent.FallbackReply, res.Reply)
	assert.True(t, res.Escalated)
	assert.Len(t, pending(t, f), 1)
	assert.Equal(t, int64(1), f.metrics.Overview().Errors["support_agent_upstream_unavailable"])

	trace, err := f.tracer.GetTrace(res.TraceID)
	require.NoError(t, err)
	assert.Equal(t, tracing.StatusCompleted, trace.Status)

	sum := f.tracer.Summary()
	assert.Equal(t, 1, sum.Completed)
	assert.Zero(t, sum.InProgress)
}

func TestHandle_ClassifierPanicUsesOther(t *testing.T) {
	t.Parallel()

	f, p := newFixture()
	f.classifier.classifyFunc = func(_ context.Context, _ string) (agent.Intent, error) {
		panic("nil map")
	}

	res, err := p.Handle(context.Background(), pipeline.Request{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, agent.IntentOther, res.Intent)
	assert.Equal(t, "ok", res.Reply)
	assert.Equal(t, int64(1), f.metrics.Overview().Errors["intent_agent_upstream_unavailable"])
}

func TestHandle_PolicyEscalationNotCountedAgainstResponder(t *testing.T) {
	t.Parallel()

	f, p := newFixture(pipeline.WithPolicy(pipeline.SensitivePolicy))
	f.classifier.classifyFunc = func(_ context.Context, _ string) (agent.Intent, error) {
		return agent.IntentBilling, nil
	}

	res, err := p.Handle(context.Background(), pipeline.Request{Text: "my invoice is wrong"})
	require.NoError(t, err)
	assert.True(t, res.Escalated)

	snap := f.metrics.Snapshot()
	assert.Equal(t, int64(1), snap[metrics.AgentSupport].TotalCalls)
	assert.Zero(t, snap[metrics.AgentSupport].Escalations)
}
