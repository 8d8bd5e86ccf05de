package v1_test

import (
	"context"

	"github.com/google/uuid"

	"github.com/ymahak/cust/internal/auth"
	"github.com/ymahak/cust/internal/domain"
	"github.com/ymahak/cust/internal/metrics"
	"github.com/ymahak/cust/internal/pipeline"
	"github.com/ymahak/cust/internal/server/middleware"
	"github.com/ymahak/cust/internal/tracing"
)

// ---------------------------------------------------------------------------
// Context helpers: inject identity into context for DoCtx
// ---------------------------------------------------------------------------

func identityCtx(username, role string) context.Context {
	return middleware.WithIdentity(context.Background(), uuid.New(), username, role)
}

func reviewerCtx() context.Context { return identityCtx("rev", domain.RoleAgent) }

// ---------------------------------------------------------------------------
// Mock ChatService
// ---------------------------------------------------------------------------

type mockChat struct {
	handleFunc func(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

func (m *mockChat) Handle(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	return m.handleFunc(ctx, req)
}

// ---------------------------------------------------------------------------
// Mock MessageRepository
// ---------------------------------------------------------------------------

type mockMessageRepo struct {
	saveFunc       func(ctx context.Context, m *domain.Message) error
	listRecentFunc func(ctx context.Context, callerID string, limit int) ([]*domain.Message, error)
}

func (m *mockMessageRepo) Save(ctx context.Context, msg *domain.Message) error {
	return m.saveFunc(ctx, msg)
}

func (m *mockMessageRepo) ListRecent(ctx context.Context, callerID string, limit int) ([]*domain.Message, error) {
	return m.listRecentFunc(ctx, callerID, limit)
}

// ---------------------------------------------------------------------------
// Mock AuthService
// ---------------------------------------------------------------------------

type mockAuthService struct {
	signupFunc  func(ctx context.Context, username, password, role string) (*domain.User, error)
	loginFunc   func(ctx context.Context, username, password string) (*auth.Tokens, error)
	refreshFunc func(ctx context.Context, refreshToken string) (string, error)
	getUserFunc func(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

func (m *mockAuthService) Signup(ctx context.Context, username, password, role string) (*domain.User, error) {
	return m.signupFunc(ctx, username, password, role)
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*auth.Tokens, error) {
	return m.loginFunc(ctx, username, password)
}

func (m *mockAuthService) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	return m.refreshFunc(ctx, refreshToken)
}

func (m *mockAuthService) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return m.getUserFunc(ctx, userID)
}

// ---------------------------------------------------------------------------
// Mock TraceSource / MetricsSource
// ---------------------------------------------------------------------------

type mockTraces struct {
	recentFunc  func(limit int) []*tracing.Span
	getFunc     func(id tracing.SpanID) (*tracing.Span, error)
	summaryFunc func() tracing.Summary
}

func (m *mockTraces) RecentTraces(limit int) []*tracing.Span { return m.recentFunc(limit) }
func (m *mockTraces) GetTrace(id tracing.SpanID) (*tracing.Span, error) {
	return m.getFunc(id)
}
func (m *mockTraces) Summary() tracing.Summary { return m.summaryFunc() }

type mockMetrics struct {
	overviewFunc func() metrics.Overview
	statsFunc    func(ctx context.Context) (metrics.EscalationStats, error)
	resetCalls   int
}

func (m *mockMetrics) Overview() metrics.Overview { return m.overviewFunc() }
func (m *mockMetrics) EscalationStats(ctx context.Context) (metrics.EscalationStats, error) {
	return m.statsFunc(ctx)
}
func (m *mockMetrics) Reset() { m.resetCalls++ }
