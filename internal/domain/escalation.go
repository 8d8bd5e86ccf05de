package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EscalationStatus string

const (
	EscalationStatusPending  EscalationStatus = "pending"
	EscalationStatusApproved EscalationStatus = "approved"
	EscalationStatusRejected EscalationStatus = "rejected"
	EscalationStatusEdited   EscalationStatus = "edited"
)

// AnonymousCaller is the caller id recorded for unauthenticated chat requests.
const AnonymousCaller = "anonymous"

// IsTerminal reports whether s is one of the reviewer dispositions.
func (s EscalationStatus) IsTerminal() bool {
	switch s {
	case EscalationStatusApproved, EscalationStatusRejected, EscalationStatusEdited:
		return true
	default:
		return false
	}
}

// ValidTransition reports whether an escalation may move from s to next.
// Only pending escalations can be resolved, and only into a disposition.
func (s EscalationStatus) ValidTransition(next EscalationStatus) bool {
	return s == EscalationStatusPending && next.IsTerminal()
}

type Escalation struct {
	ID               uuid.UUID        `json:"id"`
	CallerID         string           `json:"caller_id"`
	Reason           string           `json:"reason"`
	AgentType        string           `json:"agent_type"`
	OriginalResponse string           `json:"original_response"`
	Status           EscalationStatus `json:"status"`
	HumanResponse    string           `json:"human_response,omitempty"`
	ReviewedBy       string           `json:"reviewed_by,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	ResolvedAt       *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Resolution carries the reviewer's decision for a pending escalation.
type Resolution struct {
	Status        EscalationStatus
	HumanResponse string
	ReviewedBy    string
	Notes         string
	ResolvedAt    time.Time
}

// Apply copies the resolution onto e. Callers must have checked the transition.
func (r Resolution) Apply(e *Escalation) {
	at := r.ResolvedAt
	e.Status = r.Status
	e.HumanResponse = r.HumanResponse
	e.ReviewedBy = r.ReviewedBy
	e.Notes = r.Notes
	e.ResolvedAt = &at
}

// EscalationCounts is the number of escalations in each status.
type EscalationCounts struct {
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
	Edited   int64 `json:"edited"`
}

// Feedback records a reviewer disposition for later agent improvement.
type Feedback struct {
	ID               uuid.UUID        `json:"id"`
	EscalationID     uuid.UUID        `json:"escalation_id"`
	Reviewer         string           `json:"reviewer"`
	Action           EscalationStatus `json:"action"`
	Response         string           `json:"response"`
	OriginalResponse string           `json:"original_response,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

type EscalationRepository interface {
	Create(ctx context.Context, e *Escalation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Escalation, error)
	ListPending(ctx context.Context) ([]*Escalation, error) // oldest first
	// Resolve moves a pending escalation to a disposition in one conditional
	// update. Returns ErrNotFound or ErrAlreadyResolved.
	Resolve(ctx context.Context, id uuid.UUID, res Resolution) error
	CountByStatus(ctx context.Context) (EscalationCounts, error)
}

type FeedbackRepository interface {
	Create(ctx context.Context, f *Feedback) error
	ListByEscalation(ctx context.Context, escalationID uuid.UUID) ([]*Feedback, error)
}
