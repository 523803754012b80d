// Package capture keeps attendance captures safe on the recording device
// until the server confirms them.
package capture

import (
	"context"
	"fmt"
	"log"
	"time"

	"rollcall/internal/attendance"
	"rollcall/internal/connectivity"
	"rollcall/internal/metrics"
	"rollcall/internal/transport"
)

// Submitter sends a record to the server.
type Submitter interface {
	Submit(ctx context.Context, rec attendance.Record) transport.Result
}

// Action is the suggested next step for a new capture.
type Action int

const (
	ActionSubmit Action = iota
	ActionExport
)

func (a Action) String() string {
	if a == ActionExport {
		return "export"
	}
	return "submit"
}

// Submission is the result of an online attempt.
type Submission struct {
	Result transport.Result
	// Removed counts backlog entries satisfied by this attempt.
	Removed int
	// FallbackToExport is set when the record is not on the server and
	// should be exported.
	FallbackToExport bool
}

// Receipt describes where a capture ended up.
type Receipt struct {
	Submission Submission
	Attempted  bool
	Exported   *Entry
}

// Store coordinates online submission, export and the backlog.
type Store struct {
	backlog   Backlog
	sender    Submitter
	signal    connectivity.Signal
	exportDir string
	now       func() time.Time
}

// NewStore wires a store. signal may be nil, in which case Suggest always
// says submit.
func NewStore(backlog Backlog, sender Submitter, signal connectivity.Signal, exportDir string) *Store {
	return &Store{
		backlog:   backlog,
		sender:    sender,
		signal:    signal,
		exportDir: exportDir,
		now:       time.Now,
	}
}

// Suggest is a UX hint from the last observed connectivity. It never gates
// a submission.
func (s *Store) Suggest() Action {
	if s.signal == nil || s.signal.Online() {
		return ActionSubmit
	}
	return ActionExport
}

// Export adds rec to the backlog, then writes the portable file. A failed
// file write returns the entry with the backlog copy already in place.
func (s *Store) Export(ctx context.Context, rec attendance.Record) (Entry, error) {
	now := s.now()
	entry, err := NewEntry(rec, now)
	if err != nil {
		return Entry{}, err
	}
	if err := s.backlog.Put(ctx, entry); err != nil {
		return Entry{}, fmt.Errorf("backlog put: %w", err)
	}
	path, err := WriteFile(s.exportDir, entry.Record, now)
	if err != nil {
		return entry, err
	}
	entry.ExportedTo = path
	if err := s.backlog.Put(ctx, entry); err != nil {
		log.Printf("capture: record export path for %s failed: %v", entry.Record.Identity().Key(), err)
	}
	return entry, nil
}

// SubmitOnline sends rec. A Created or Duplicate answer removes every
// backlog entry for the slot; anything else leaves the backlog alone. The
// error is set only for local failures.
func (s *Store) SubmitOnline(ctx context.Context, rec attendance.Record) (Submission, error) {
	res := s.sender.Submit(ctx, rec)
	sub := Submission{Result: res}
	if !res.Persisted() {
		sub.FallbackToExport = true
		return sub, nil
	}
	removed, err := s.backlog.RemoveIdentity(ctx, rec.Identity())
	if err != nil {
		return sub, fmt.Errorf("backlog remove %s: %w", rec.Identity().Key(), err)
	}
	sub.Removed = removed
	return sub, nil
}

// Capture tries the server first and exports whenever the record did not
// reach it, except for validation rejections, which the recorder must fix.
// With offline set the attempt is skipped.
func (s *Store) Capture(ctx context.Context, rec attendance.Record, offline bool) (Receipt, error) {
	var receipt Receipt
	if !offline {
		receipt.Attempted = true
		sub, err := s.SubmitOnline(ctx, rec)
		receipt.Submission = sub
		if err != nil {
			return receipt, err
		}
		if !sub.FallbackToExport {
			metrics.Captures.WithLabelValues("online").Inc()
			return receipt, nil
		}
		if res := sub.Result; res.Outcome == transport.Rejected && attendance.IsValidation(res.Err) {
			metrics.Captures.WithLabelValues("rejected").Inc()
			return receipt, res.Err
		}
		log.Printf("capture: %s not submitted (%s): %v", rec.Identity().Key(), sub.Result.Outcome, sub.Result.Err)
	}
	entry, err := s.Export(ctx, rec)
	if err != nil {
		if entry.ID != "" {
			// backlog holds it even though the file is missing
			metrics.Captures.WithLabelValues("backlog").Inc()
		}
		return receipt, err
	}
	metrics.Captures.WithLabelValues("export").Inc()
	receipt.Exported = &entry
	return receipt, nil
}

// Pending lists the backlog oldest first.
func (s *Store) Pending(ctx context.Context) ([]Entry, error) {
	return s.backlog.List(ctx)
}
