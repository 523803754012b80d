package attendance

import (
	"context"
	"errors"
	"log"

	"rollcall/internal/metrics"
	"rollcall/internal/queue"
)

// Summarizer folds recorded events into weekly summaries.
type Summarizer struct {
	store SummaryStore
}

// NewSummarizer creates a summarizer over store.
func NewSummarizer(store SummaryStore) *Summarizer {
	return &Summarizer{store: store}
}

// Handle processes one queue message. Unknown message types are ignored.
func (s *Summarizer) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != queue.RecordedEvent {
		return nil
	}
	id := string(msg.Body)
	applied, err := s.store.ApplySummary(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		metrics.SummariesApplied.WithLabelValues("missing").Inc()
		log.Printf("summary: record %s not found, skipping", id)
		return nil
	case err != nil:
		metrics.SummariesApplied.WithLabelValues("error").Inc()
		return err
	case !applied:
		metrics.SummariesApplied.WithLabelValues("repeat").Inc()
		return nil
	}
	metrics.SummariesApplied.WithLabelValues("applied").Inc()
	return nil
}

// Run consumes q until ctx is done.
func (s *Summarizer) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		if err := s.Handle(ctx, msg); err != nil {
			log.Printf("summary for %s failed: %v", string(msg.Body), err)
		}
	}
	return nil
}

// Summaries returns the weekly aggregates for a class and course.
func (s *Summarizer) Summaries(ctx context.Context, className, course string) ([]Summary, error) {
	if className == "" || course == "" {
		return nil, &ValidationError{Missing: missing(map[string]string{"className": className, "course": course})}
	}
	return s.store.Summaries(ctx, className, course)
}
