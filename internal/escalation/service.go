// Package escalation owns the human review lifecycle of flagged replies.
package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ymahak/cust/internal/domain"
	"github.com/ymahak/cust/internal/notify"
)

var (
	// ErrOriginalRequired is returned by Edit when the original reply is missing.
	ErrOriginalRequired = errors.New("escalation: original response required")
	// ErrInvalidDisposition is returned when resolving into a non-terminal status.
	ErrInvalidDisposition = errors.New("escalation: invalid disposition")
)

// DefaultNotifyTimeout bounds a single reviewer notification.
const DefaultNotifyTimeout = 5 * time.Second

// Publisher broadcasts serialized events. Satisfied by the redis PubSub.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type EventType string

const (
	EventCreated  EventType = "escalation.created"
	EventResolved EventType = "escalation.resolved"
)

// Event is the payload published for every lifecycle change.
type Event struct {
	Type       EventType          `json:"type"`
	Escalation *domain.Escalation `json:"escalation"`
	At         time.Time          `json:"at"`
}

// Resolution is a reviewer's decision.
type Resolution struct {
	Status           domain.EscalationStatus
	HumanResponse    string
	Reviewer         string
	Notes            string
	OriginalResponse string // recorded in feedback for edits
}

type Service struct {
	repo     domain.EscalationRepository
	feedback domain.FeedbackRepository

	publisher Publisher
	channel   string
	notifier  notify.Notifier
	timeout   time.Duration
	now       func() time.Time
}

type Option func(*Service)

// WithPublisher publishes lifecycle events on channel.
func WithPublisher(p Publisher, channel string) Option {
	return func(s *Service) {
		s.publisher = p
		s.channel = channel
	}
}

// WithNotifier sends lifecycle changes to reviewers.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithNotifyTimeout bounds each notifier call.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo domain.EscalationRepository, feedback domain.FeedbackRepository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		feedback: feedback,
		notifier: notify.Nop{},
		timeout:  DefaultNotifyTimeout,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create records a new pending escalation.
func (s *Service) Create(ctx context.Context, callerID, reason, agentType, originalResponse string) (*domain.Escalation, error) {
	if callerID == "" {
		callerID = domain.AnonymousCaller
	}

	e := &domain.Escalation{
		ID:               uuid.New(),
		CallerID:         callerID,
		Reason:           reason,
		AgentType:        agentType,
		OriginalResponse: originalResponse,
		Status:           domain.EscalationStatusPending,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("escalation.Service.Create: %w", err)
	}

	s.announce(ctx, EventCreated, e)

	return e, nil
}

// ListPending returns pending escalations, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]*domain.Escalation, error) {
	list, err := s.repo.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("escalation.Service.ListPending: %w", err)
	}
	return list, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Escalation, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("escalation.Service.Get: %w", err)
	}
	return e, nil
}

// Feedback returns the reviewer records for an escalation.
func (s *Service) Feedback(ctx context.Context, id uuid.UUID) ([]*domain.Feedback, error) {
	list, err := s.feedback.ListByEscalation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("escalation.Service.Feedback: %w", err)
	}
	return list, nil
}

// Resolve moves a pending escalation into res.Status. Only one of several
// concurrent calls for the same id succeeds; the rest get ErrAlreadyResolved.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, res Resolution) (*domain.Escalation, error) {
	if !res.Status.IsTerminal() {
		return nil, fmt.Errorf("escalation.Service.Resolve: %q: %w", res.Status, ErrInvalidDisposition)
	}

	now := s.now().UTC()
	err := s.repo.Resolve(ctx, id, domain.Resolution{
		Status:        res.Status,
		HumanResponse: res.HumanResponse,
		ReviewedBy:    res.Reviewer,
		Notes:         res.Notes,
		ResolvedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("escalation.Service.Resolve: %w", err)
	}

	fb := &domain.Feedback{
		ID:               uuid.New(),
		EscalationID:     id,
		Reviewer:         res.Reviewer,
		Action:           res.Status,
		Response:         res.HumanResponse,
		OriginalResponse: res.OriginalResponse,
		Notes:            res.Notes,
		CreatedAt:        now,
	}
	if err := s.feedback.Create(ctx, fb); err != nil {
		log.Warn().Err(errors.Join(domain.ErrPersistenceDegraded, err)).
			Str("escalation_id", id.String()).Msg("feedback not recorded")
	}

	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("escalation.Service.Resolve: reload: %w", err)
	}

	s.announce(ctx, EventResolved, e)

	return e, nil
}

// Approve accepts the escalation. An empty response keeps the drafted reply.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, reviewer, response, notes string) (*domain.Escalation, error) {
	if response == "" {
		e, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		response = e.OriginalResponse
	}

	return s.Resolve(ctx, id, Resolution{
		Status:        domain.EscalationStatusApproved,
		HumanResponse: response,
		Reviewer:      reviewer,
		Notes:         notes,
	})
}

// Reject discards the drafted reply in favour of response. reason is kept as
// the review notes.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reviewer, response, reason string) (*domain.Escalation, error) {
	return s.Resolve(ctx, id, Resolution{
		Status:        domain.EscalationStatusRejected,
		HumanResponse: response,
		Reviewer:      reviewer,
		Notes:         reason,
	})
}

// Edit replaces the drafted reply with edited and records the pair.
func (s *Service) Edit(ctx context.Context, id uuid.UUID, reviewer, original, edited, reason string) (*domain.Escalation, error) {
	if original == "" {
		return nil, fmt.Errorf("escalation.Service.Edit: %w", ErrOriginalRequired)
	}

	return s.Resolve(ctx, id, Resolution{
		Status:           domain.EscalationStatusEdited,
		HumanResponse:    edited,
		Reviewer:         reviewer,
		Notes:            "Edited: " + reason,
		OriginalResponse: original,
	})
}

// Stats counts escalations by status.
func (s *Service) Stats(ctx context.Context) (domain.EscalationCounts, error) {
	c, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return c, fmt.Errorf("escalation.Service.Stats: %w", err)
	}
	return c, nil
}

// announce publishes and notifies. Failures are logged only.
func (s *Service) announce(ctx context.Context, typ EventType, e *domain.Escalation) {
	if s.publisher != nil {
		payload, err := json.Marshal(Event{Type: typ, Escalation: e, At: s.now().UTC()})
		if err == nil {
			err = s.publisher.Publish(ctx, s.channel, payload)
		}
		if err != nil {
			log.Warn().Err(err).Str("event", string(typ)).Str("escalation_id", e.ID.String()).
				Msg("escalation event not published")
		}
	}

	nctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var err error
	switch typ {
	case EventCreated:
		err = s.notifier.EscalationCreated(nctx, e)
	case EventResolved:
		err = s.notifier.EscalationResolved(nctx, e)
	}
	if err != nil {
		log.Warn().Err(err).Str("event", string(typ)).Str("escalation_id", e.ID.String()).
			Msg("reviewer notification failed")
	}
}
