// Package reconcile replays exported captures and the local backlog
// against the server.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"

	"rollcall/internal/attendance"
	"rollcall/internal/capture"
	"rollcall/internal/connectivity"
	"rollcall/internal/metrics"
	"rollcall/internal/slot"
	"rollcall/internal/transport"
)

// ErrCorruptFile wraps any failure to parse a portable file.
var ErrCorruptFile = errors.New("corrupt attendance file")

// Outcome is how one file or backlog entry ended.
type Outcome int

const (
	// Reconciled means this import stored the record.
	Reconciled Outcome = iota
	// AlreadyRecorded means the slot was on the server already.
	AlreadyRecorded
	// Rejected means the server refused the payload; retrying will not help
	// until it is fixed.
	Rejected
	// Failed is retryable: network, cancellation or a local backlog error.
	Failed
	// CorruptFile means the file could not be parsed.
	CorruptFile
)

func (o Outcome) String() string {
	switch o {
	case Reconciled:
		return "reconciled"
	case AlreadyRecorded:
		return "already_recorded"
	case Rejected:
		return "rejected"
	case CorruptFile:
		return "corrupt"
	}
	return "failed"
}

// Success reports whether the record is safe on the server.
func (o Outcome) Success() bool { return o == Reconciled || o == AlreadyRecorded }

// Item is the result for one source.
type Item struct {
	// Source is the file path, or backlog:<id> for entries with no file.
	Source   string
	Identity slot.Identity
	Outcome  Outcome
	// Removed counts backlog entries satisfied by this item.
	Removed int
	Err     error
}

// Report collects the items of one run in input order.
type Report struct {
	Items []Item
}

// Count returns how many items ended with o.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, it := range r.Items {
		if it.Outcome == o {
			n++
		}
	}
	return n
}

// OK reports whether every item is safe on the server.
func (r Report) OK() bool {
	for _, it := range r.Items {
		if !it.Outcome.Success() {
			return false
		}
	}
	return true
}

// Importer submits through the same path as a live capture.
type Importer struct {
	store *capture.Store
}

// NewImporter returns an importer using store for submission and backlog
// bookkeeping.
func NewImporter(store *capture.Store) *Importer {
	return &Importer{store: store}
}

// ImportFiles processes paths one at a time. A bad file never stops the
// batch.
func (i *Importer) ImportFiles(ctx context.Context, paths ...string) Report {
	var report Report
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			report.add(Item{Source: path, Outcome: Failed, Err: err})
			continue
		}
		rec, err := capture.ReadFile(path)
		if err != nil {
			report.add(Item{Source: path, Outcome: CorruptFile, Err: fmt.Errorf("%w %s: %v", ErrCorruptFile, path, err)})
			continue
		}
		item := i.submit(ctx, rec)
		item.Source = path
		report.add(item)
	}
	return report
}

// Drain replays every backlog entry. Entries for a slot already satisfied
// earlier in the same run are skipped, since it removed them.
func (i *Importer) Drain(ctx context.Context) (Report, error) {
	entries, err := i.store.Pending(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list backlog: %w", err)
	}
	var report Report
	done := make(map[slot.Identity]bool)
	for _, e := range entries {
		id := e.Record.Identity()
		if done[id] {
			continue
		}
		source := e.ExportedTo
		if source == "" {
			source = "backlog:" + e.ID
		}
		if err := ctx.Err(); err != nil {
			report.add(Item{Source: source, Identity: id, Outcome: Failed, Err: err})
			continue
		}
		item := i.submit(ctx, e.Record)
		item.Source = source
		report.add(item)
		if item.Outcome.Success() {
			done[id] = true
		}
	}
	return report, nil
}

// Watch drains the backlog whenever d goes from offline to online, and once
// at start if it is online already. It returns when ctx is done.
func (i *Importer) Watch(ctx context.Context, d *connectivity.Detector) error {
	changes := d.Subscribe()
	if d.Online() {
		i.drainAndLog(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case state := <-changes:
			if state == connectivity.Online {
				i.drainAndLog(ctx)
			}
		}
	}
}

func (i *Importer) drainAndLog(ctx context.Context) {
	report, err := i.Drain(ctx)
	if err != nil {
		log.Printf("reconcile: drain failed: %v", err)
		return
	}
	if len(report.Items) > 0 {
		log.Printf("reconcile: drained %d entries, %d reconciled, %d already recorded, %d pending",
			len(report.Items), report.Count(Reconciled), report.Count(AlreadyRecorded),
			len(report.Items)-report.Count(Reconciled)-report.Count(AlreadyRecorded))
	}
}

func (i *Importer) submit(ctx context.Context, rec attendance.Record) Item {
	item := Item{Identity: rec.Identity()}
	sub, err := i.store.SubmitOnline(ctx, rec)
	item.Removed = sub.Removed
	switch {
	case err != nil:
		// server has it, but the backlog still lists it; retry removes it
		item.Outcome = Failed
		item.Err = err
	case sub.Result.Outcome == transport.Created:
		item.Outcome = Reconciled
	case sub.Result.Outcome == transport.Duplicate:
		item.Outcome = AlreadyRecorded
	case sub.Result.Outcome == transport.Rejected:
		item.Outcome = Rejected
		item.Err = sub.Result.Err
	default:
		item.Outcome = Failed
		item.Err = sub.Result.Err
	}
	return item
}

func (r *Report) add(it Item) {
	metrics.Imports.WithLabelValues(it.Outcome.String()).Inc()
	r.Items = append(r.Items, it)
}
