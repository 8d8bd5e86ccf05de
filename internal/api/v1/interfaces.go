package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/ymahak/cust/internal/auth"
	"github.com/ymahak/cust/internal/domain"
	"github.com/ymahak/cust/internal/metrics"
	"github.com/ymahak/cust/internal/pipeline"
	"github.com/ymahak/cust/internal/tracing"
)

// ChatService runs one message through the support pipeline.
// *pipeline.Pipeline satisfies this interface.
type ChatService interface {
	Handle(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// AuthService abstracts authentication operations for handler testing.
// *auth.Service satisfies this interface.
type AuthService interface {
	Signup(ctx context.Context, username, password, role string) (*domain.User, error)
	Login(ctx context.Context, username, password string) (*auth.Tokens, error)
	RefreshToken(ctx context.Context, refreshToken string) (string, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// EscalationService abstracts the review workflow.
// *escalation.Service satisfies this interface.
type EscalationService interface {
	ListPending(ctx context.Context) ([]*domain.Escalation, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Escalation, error)
	Feedback(ctx context.Context, id uuid.UUID) ([]*domain.Feedback, error)
	Approve(ctx context.Context, id uuid.UUID, reviewer, response, notes string) (*domain.Escalation, error)
	Reject(ctx context.Context, id uuid.UUID, reviewer, response, reason string) (*domain.Escalation, error)
	Edit(ctx context.Context, id uuid.UUID, reviewer, original, edited, reason string) (*domain.Escalation, error)
	Stats(ctx context.Context) (domain.EscalationCounts, error)
}

// TraceSource is the read side of *tracing.Tracer.
type TraceSource interface {
	RecentTraces(limit int) []*tracing.Span
	GetTrace(id tracing.SpanID) (*tracing.Span, error)
	Summary() tracing.Summary
}

// MetricsSource is the read side of *metrics.Registry.
type MetricsSource interface {
	Overview() metrics.Overview
	EscalationStats(ctx context.Context) (metrics.EscalationStats, error)
	Reset()
}
