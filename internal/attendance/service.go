package attendance

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"rollcall/internal/metrics"
	"rollcall/internal/queue"
)

// Publisher receives an event for every created record.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Service is the server-side persistence path for attendance.
type Service struct {
	store  Store
	events Publisher
}

// NewService creates a service backed by a store. events may be nil.
func NewService(store Store, events Publisher) *Service {
	return &Service{store: store, events: events}
}

// Create validates rec from scratch and stores it. Only the first create for
// a slot identity succeeds; every later one gets ErrDuplicateSlot.
func (s *Service) Create(ctx context.Context, rec Record) (Record, error) {
	if err := Validate(rec); err != nil {
		metrics.Submissions.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return Record{}, err
	}
	rec = rec.Payload()
	rec.ID = uuid.NewString()

	stored, err := s.store.Insert(ctx, rec)
	switch {
	case errors.Is(err, ErrDuplicateSlot):
		metrics.Submissions.WithLabelValues(metrics.OutcomeDuplicate).Inc()
		return Record{}, err
	case err != nil:
		metrics.Submissions.WithLabelValues(metrics.OutcomeError).Inc()
		return Record{}, err
	}
	metrics.Submissions.WithLabelValues(metrics.OutcomeCreated).Inc()

	if s.events != nil {
		if err := s.events.Publish(ctx, queue.Message{Type: queue.RecordedEvent, Body: []byte(stored.ID)}); err != nil {
			metrics.PublishFailures.Inc()
			log.Printf("publish %s for %s failed: %v", queue.RecordedEvent, stored.ID, err)
		}
	}
	return stored, nil
}

// Get returns a stored record. Ids that are not UUIDs are never found.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Record{}, ErrNotFound
	}
	return s.store.Get(ctx, id)
}

// List returns the records of a class and course sorted ascending by date.
func (s *Service) List(ctx context.Context, className, course string) ([]Record, error) {
	if className == "" || course == "" {
		return nil, &ValidationError{Missing: missing(map[string]string{"className": className, "course": course})}
	}
	recs, err := s.store.List(ctx, className, course)
	if err != nil {
		return nil, err
	}
	sortRecords(recs)
	return recs, nil
}

func missing(fields map[string]string) []string {
	var out []string
	for _, name := range []string{"className", "course"} {
		if v, ok := fields[name]; ok && v == "" {
			out = append(out, name)
		}
	}
	return out
}
