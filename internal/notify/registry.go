package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ymahak/cust/internal/domain"
)

// Registry fans notifications out to every registered Notifier. It is itself
// a Notifier.
type Registry struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		notifiers: make(map[string]Notifier),
	}
}

// Register adds a notifier under the given name, replacing any previous one.
func (r *Registry) Register(name string, n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifiers[name] = n
}

// Names returns registered notifier names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.notifiers))
	for name := range r.notifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) EscalationCreated(ctx context.Context, e *domain.Escalation) error {
	return r.each(func(name string, n Notifier) error {
		if err := n.EscalationCreated(ctx, e); err != nil {
			return fmt.Errorf("notify.Registry.EscalationCreated(%q): %w", name, err)
		}
		return nil
	})
}

func (r *Registry) EscalationResolved(ctx context.Context, e *domain.Escalation) error {
	return r.each(func(name string, n Notifier) error {
		if err := n.EscalationResolved(ctx, e); err != nil {
			return fmt.Errorf("notify.Registry.EscalationResolved(%q): %w", name, err)
		}
		return nil
	})
}

// each calls fn for every notifier and joins the failures.
func (r *Registry) each(fn func(name string, n Notifier) error) error {
	r.mu.RLock()
	snapshot := make(map[string]Notifier, len(r.notifiers))
	for k, v := range r.notifiers {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	var errs []error
	for name, n := range snapshot {
		if err := fn(name, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
