// Package notify tells human reviewers about escalation lifecycle changes.
package notify

import (
	"context"

	"github.com/ymahak/cust/internal/domain"
)

// Notifier receives escalation lifecycle changes.
type Notifier interface {
	EscalationCreated(ctx context.Context, e *domain.Escalation) error
	EscalationResolved(ctx context.Context, e *domain.Escalation) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) EscalationCreated(context.Context, *domain.Escalation) error  { return nil }
func (Nop) EscalationResolved(context.Context, *domain.Escalation) error { return nil }
