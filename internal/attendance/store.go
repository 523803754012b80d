package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists records. Insert must reject a second record for an identity
// with ErrDuplicateSlot atomically, including under concurrent inserts.
type Store interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, className, course string) ([]Record, error)
}

// SummaryStore maintains the weekly aggregates.
type SummaryStore interface {
	// ApplySummary folds the record into its weekly summary once. It reports
	// false when the record was already counted.
	ApplySummary(ctx context.Context, id string) (bool, error)
	Summaries(ctx context.Context, className, course string) ([]Summary, error)
}

type summaryKey struct {
	className, course string
	year, week        int
}

// MemoryStore keeps records in process; used by tests and single-binary demos.
type MemoryStore struct {
	mu         sync.Mutex
	byID       map[string]Record
	byIdentity map[string]string
	counted    map[string]bool
	summaries  map[summaryKey]*Summary
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]Record),
		byIdentity: make(map[string]string),
		counted:    make(map[string]bool),
		summaries:  make(map[summaryKey]*Summary),
	}
}

func (m *MemoryStore) Insert(ctx context.Context, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rec.Identity().Key()
	if _, ok := m.byIdentity[key]; ok {
		return Record{}, ErrDuplicateSlot
	}
	now := time.Now().UTC()
	rec.CreatedAt = &now
	rec.Students = append([]Student(nil), rec.Students...)
	m.byID[rec.ID] = rec
	m.byIdentity[key] = rec.ID
	return rec, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) List(ctx context.Context, className, course string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.byID {
		if rec.ClassName == className && rec.Course == course {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func (m *MemoryStore) ApplySummary(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if m.counted[id] {
		return false, nil
	}
	k := summaryKey{className: rec.ClassName, course: rec.Course, year: rec.Year, week: rec.Week}
	s, ok := m.summaries[k]
	if !ok {
		s = &Summary{ClassName: rec.ClassName, Course: rec.Course, Year: rec.Year, Week: rec.Week}
		m.summaries[k] = s
	}
	p, a, l := rec.Tally()
	s.Slots++
	s.Present += p
	s.Absent += a
	s.Late += l
	s.UpdatedAt = time.Now().UTC()
	m.counted[id] = true
	return true, nil
}

func (m *MemoryStore) Summaries(ctx context.Context, className, course string) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Summary
	for k, s := range m.summaries {
		if k.className == className && k.course == course {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Week < out[j].Week
	})
	return out, nil
}

// sortRecords orders by date, then slot number.
func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Date != recs[j].Date {
			return recs[i].Date.Before(recs[j].Date)
		}
		return recs[i].SlotNumber < recs[j].SlotNumber
	})
}
