// Package tracing records a tree of timed spans per pipeline run and keeps
// the most recent finished runs in memory for inspection.
package tracing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultRetention is the number of ended root spans kept in memory.
const DefaultRetention = 50

// ErrTraceNotFound is returned by GetTrace for unknown or evicted ids.
var ErrTraceNotFound = errors.New("tracing: trace not found")

type SpanID string

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
}

// Span is a point-in-time copy of a recorded span and its descendants.
type Span struct {
	ID         SpanID            `json:"span_id"`
	ParentID   SpanID            `json:"parent_id,omitempty"`
	Operation  string            `json:"operation"`
	Start      time.Time         `json:"start_time"`
	End        *time.Time        `json:"end_time,omitempty"`
	DurationMS float64           `json:"duration_ms,omitempty"`
	Status     Status            `json:"status"`
	Logs       []LogEntry        `json:"logs"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Children   []*Span           `json:"children,omitempty"`
}

// Summary counts the root spans currently held by the tracer.
type Summary struct {
	Total       int     `json:"total_traces"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	InProgress  int     `json:"in_progress"`
	SuccessRate float64 `json:"success_rate"`
}

type record struct {
	id        SpanID
	parentID  SpanID
	rootID    SpanID
	operation string

	mu       sync.Mutex
	start    time.Time
	end      time.Time
	status   Status
	logs     []LogEntry
	attrs    map[string]string
	children []SpanID
	otel     trace.Span
}

// Tracer owns the span index and the retention ring. The index lock guards
// span membership and the ring; each span's mutable fields have their own lock.
type Tracer struct {
	mu        sync.RWMutex
	spans     map[SpanID]*record
	members   map[SpanID][]SpanID // root -> every span in its tree
	ring      []SpanID            // ended roots, oldest first
	retention int

	otel trace.Tracer
	now  func() time.Time
}

type Option func(*Tracer)

// WithRetention overrides DefaultRetention.
func WithRetention(n int) Option {
	return func(t *Tracer) {
		if n > 0 {
			t.retention = n
		}
	}
}

// WithOTel mirrors every span onto an OpenTelemetry tracer.
func WithOTel(tr trace.Tracer) Option {
	return func(t *Tracer) { t.otel = tr }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracer) { t.now = now }
}

func New(opts ...Option) *Tracer {
	t := &Tracer{
		spans:     make(map[SpanID]*record),
		members:   make(map[SpanID][]SpanID),
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// StartSpan opens a span. An empty or unknown parent starts a new root.
func (t *Tracer) StartSpan(ctx context.Context, operation string, parent SpanID) SpanID {
	rec := &record{
		id:        SpanID(uuid.NewString()),
		operation: operation,
		start:     t.now(),
		status:    StatusInProgress,
	}

	t.mu.Lock()
	p, ok := t.spans[parent]
	if ok {
		rec.parentID = p.id
		rec.rootID = p.rootID
	} else {
		rec.rootID = rec.id
	}
	t.spans[rec.id] = rec
	t.members[rec.rootID] = append(t.members[rec.rootID], rec.id)
	t.mu.Unlock()

	if ok {
		p.mu.Lock()
		p.children = append(p.children, rec.id)
		parentOTel := p.otel
		p.mu.Unlock()
		if parentOTel != nil {
			ctx = trace.ContextWithSpan(ctx, parentOTel)
		}
	}

	if t.otel != nil {
		_, span := t.otel.Start(ctx, operation, trace.WithTimestamp(rec.start))
		rec.mu.Lock()
		rec.otel = span
		rec.mu.Unlock()
	}

	return rec.id
}

func (t *Tracer) lookup(id SpanID) *record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.spans[id]
}

// AddLog appends a log entry. Unknown ids are ignored.
func (t *Tracer) AddLog(id SpanID, level Level, msg string) {
	rec := t.lookup(id)
	if rec == nil {
		return
	}

	now := t.now()
	rec.mu.Lock()
	rec.logs = append(rec.logs, LogEntry{Timestamp: now, Level: level, Message: msg})
	otelSpan := rec.otel
	rec.mu.Unlock()

	if otelSpan != nil {
		otelSpan.AddEvent(msg, trace.WithTimestamp(now), trace.WithAttributes(attribute.String("level", string(level))))
	}
}

// SetAttribute records a string attribute. Unknown ids are ignored.
func (t *Tracer) SetAttribute(id SpanID, key, value string) {
	rec := t.lookup(id)
	if rec == nil {
		return
	}

	rec.mu.Lock()
	if rec.attrs == nil {
		rec.attrs = make(map[string]string)
	}
	rec.attrs[key] = value
	otelSpan := rec.otel
	rec.mu.Unlock()

	if otelSpan != nil {
		otelSpan.SetAttributes(attribute.String(key, value))
	}
}

// EndSpan closes a span. Ending twice overwrites the previous end state.
// The first end of a root span enters it into the retention ring, evicting
// the oldest retained tree when the ring is full.
func (t *Tracer) EndSpan(id SpanID, status Status) {
	rec := t.lookup(id)
	if rec == nil {
		return
	}

	end := t.now()
	rec.mu.Lock()
	firstEnd := rec.end.IsZero()
	rec.end = end
	rec.status = status
	otelSpan := rec.otel
	rec.mu.Unlock()

	if otelSpan != nil && firstEnd {
		if status == StatusFailed {
			otelSpan.SetStatus(codes.Error, string(status))
		} else {
			otelSpan.SetStatus(codes.Ok, "")
		}
		otelSpan.End(trace.WithTimestamp(end))
	}

	if rec.rootID != rec.id || !firstEnd {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, still := t.spans[id]; !still {
		return
	}
	t.ring = append(t.ring, id)
	for len(t.ring) > t.retention {
		t.evictLocked(t.ring[0])
		t.ring = t.ring[1:]
	}
}

func (t *Tracer) evictLocked(root SpanID) {
	for _, sid := range t.members[root] {
		delete(t.spans, sid)
	}
	delete(t.members, root)
}

// RecentTraces returns up to limit retained root traces, most recent first.
func (t *Tracer) RecentTraces(limit int) []*Span {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if limit <= 0 || limit > len(t.ring) {
		limit = len(t.ring)
	}

	out := make([]*Span, 0, limit)
	for i := len(t.ring) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, t.snapshotLocked(t.ring[i]))
	}
	return out
}

// GetTrace returns the span and its subtree.
func (t *Tracer) GetTrace(id SpanID) (*Span, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, ok := t.spans[id]; !ok {
		return nil, ErrTraceNotFound
	}
	return t.snapshotLocked(id), nil
}

// Summary counts retained and open root spans by status.
func (t *Tracer) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var s Summary
	for root := range t.members {
		rec := t.spans[root]
		if rec == nil {
			continue
		}
		rec.mu.Lock()
		status := rec.status
		rec.mu.Unlock()

		s.Total++
		switch status {
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		default:
			s.InProgress++
		}
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.Completed) / float64(s.Total) * 100
	}
	return s
}

func (t *Tracer) snapshotLocked(id SpanID) *Span {
	rec := t.spans[id]
	if rec == nil {
		return nil
	}

	rec.mu.Lock()
	s := &Span{
		ID:        rec.id,
		ParentID:  rec.parentID,
		Operation: rec.operation,
		Start:     rec.start,
		Status:    rec.status,
		Logs:      append([]LogEntry(nil), rec.logs...),
	}
	if !rec.end.IsZero() {
		end := rec.end
		s.End = &end
		s.DurationMS = float64(end.Sub(rec.start)) / float64(time.Millisecond)
	}
	if len(rec.attrs) > 0 {
		s.Attributes = make(map[string]string, len(rec.attrs))
		for k, v := range rec.attrs {
			s.Attributes[k] = v
		}
	}
	children := append([]SpanID(nil), rec.children...)
	rec.mu.Unlock()

	if s.Logs == nil {
		s.Logs = []LogEntry{}
	}
	for _, c := range children {
		if cs := t.snapshotLocked(c); cs != nil {
			s.Children = append(s.Children, cs)
		}
	}
	return s
}
