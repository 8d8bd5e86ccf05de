// Package memory provides process-local repositories used when no database
// is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ymahak/cust/internal/domain"
)

type Store struct {
	users       *UserRepo
	messages    *MessageRepo
	escalations *EscalationRepo
	feedback    *FeedbackRepo
}

func New() *Store {
	return &Store{
		users:       &UserRepo{byID: make(map[uuid.UUID]*domain.User)},
		messages:    &MessageRepo{},
		escalations: &EscalationRepo{byID: make(map[uuid.UUID]*domain.Escalation)},
		feedback:    &FeedbackRepo{},
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close()                     {}

func (s *Store) Users() domain.UserRepository             { return s.users }
func (s *Store) Messages() domain.MessageRepository       { return s.messages }
func (s *Store) Escalations() domain.EscalationRepository { return s.escalations }
func (s *Store) Feedback() domain.FeedbackRepository      { return s.feedback }

// --- Escalations ---

type EscalationRepo struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*domain.Escalation
	order []uuid.UUID // insertion order
}

func (r *EscalationRepo) Create(_ context.Context, e *domain.Escalation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[e.ID]; ok {
		return fmt.Errorf("escalationRepo.Create: %w", domain.ErrConflict)
	}
	cp := *e
	r.byID[e.ID] = &cp
	r.order = append(r.order, e.ID)

	return nil
}

func (r *EscalationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Escalation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("escalationRepo.GetByID: %w", domain.ErrNotFound)
	}
	cp := *e

	return &cp, nil
}

func (r *EscalationRepo) ListPending(context.Context) ([]*domain.Escalation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Escalation
	for _, id := range r.order {
		e := r.byID[id]
		if e.Status == domain.EscalationStatusPending {
			cp := *e
			out = append(out, &cp)
		}
	}

	return out, nil
}

func (r *EscalationRepo) Resolve(_ context.Context, id uuid.UUID, res domain.Resolution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("escalationRepo.Resolve: %w", domain.ErrNotFound)
	}
	if !e.Status.ValidTransition(res.Status) {
		return fmt.Errorf("escalationRepo.Resolve: %w", domain.ErrAlreadyResolved)
	}
	res.Apply(e)

	return nil
}

func (r *EscalationRepo) CountByStatus(context.Context) (domain.EscalationCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var c domain.EscalationCounts
	for _, e := range r.byID {
		switch e.Status {
		case domain.EscalationStatusPending:
			c.Pending++
		case domain.EscalationStatusApproved:
			c.Approved++
		case domain.EscalationStatusRejected:
			c.Rejected++
		case domain.EscalationStatusEdited:
			c.Edited++
		}
	}

	return c, nil
}

// --- Feedback ---

type FeedbackRepo struct {
	mu    sync.Mutex
	items []*domain.Feedback
}

func (r *FeedbackRepo) Create(_ context.Context, f *domain.Feedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *f
	r.items = append(r.items, &cp)

	return nil
}

func (r *FeedbackRepo) ListByEscalation(_ context.Context, escalationID uuid.UUID) ([]*domain.Feedback, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Feedback
	for _, f := range r.items {
		if f.EscalationID == escalationID {
			cp := *f
			out = append(out, &cp)
		}
	}

	return out, nil
}

// --- Messages ---

type MessageRepo struct {
	mu    sync.Mutex
	items []*domain.Message
}

func (r *MessageRepo) Save(_ context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *m
	r.items = append(r.items, &cp)

	return nil
}

func (r *MessageRepo) ListRecent(_ context.Context, callerID string, limit int) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Message
	for i := len(r.items) - 1; i >= 0 && len(out) < limit; i-- {
		if r.items[i].CallerID == callerID {
			cp := *r.items[i]
			out = append(out, &cp)
		}
	}

	return out, nil
}

// --- Users ---

type UserRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*domain.User
}

func (r *UserRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.Username == u.Username {
			return fmt.Errorf("userRepo.Create: %w", domain.ErrConflict)
		}
	}
	cp := *u
	r.byID[u.ID] = &cp

	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("userRepo.GetByID: %w", domain.ErrNotFound)
	}
	cp := *u

	return &cp, nil
}

func (r *UserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}

	return nil, fmt.Errorf("userRepo.GetByUsername: %w", domain.ErrNotFound)
}
