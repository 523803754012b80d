package attendance

import (
	"fmt"

	"rollcall/internal/slot"
)

// BuildInput is everything a recorder chooses or looks up for one slot.
type BuildInput struct {
	Date       slot.Date
	SlotNumber int
	StartTime  string
	EndTime    string
	ClassName  string
	Course     string
	Room       string
	TeacherID  string
	Roster     []RosterEntry
	// Statuses maps student id to status. Students left out are present.
	Statuses map[string]Status
}

// Build assembles a complete record from a roster and the marked statuses.
func Build(in BuildInput) (Record, error) {
	verr := &ValidationError{}
	if !slot.ValidSlotNumber(in.SlotNumber) {
		verr.add("slotNumber", fmt.Sprintf("must be between %d and %d", slot.MinSlot, slot.MaxSlot))
	}
	if !slot.ValidClock(in.StartTime) {
		verr.add("startTime", "must be a 24-hour HH:MM time")
	}
	if !slot.ValidClock(in.EndTime) {
		verr.add("endTime", "must be a 24-hour HH:MM time")
	}

	inRoster := make(map[string]bool, len(in.Roster))
	for _, e := range in.Roster {
		inRoster[e.StudentID] = true
	}
	for id, st := range in.Statuses {
		if !inRoster[id] {
			verr.add("statuses", "student "+id+" is not on the roster")
		}
		if !st.Valid() {
			verr.add("statuses", fmt.Sprintf("student %s has status %q, want P, A or L", id, st))
		}
	}
	if !verr.empty() {
		return Record{}, verr
	}

	cal := slot.Derive(in.Date)
	rec := Record{
		Date:       in.Date,
		Year:       cal.Year,
		Month:      cal.Month,
		Week:       cal.Week,
		SlotNumber: in.SlotNumber,
		StartTime:  in.StartTime,
		EndTime:    in.EndTime,
		ClassName:  in.ClassName,
		Course:     in.Course,
		Room:       in.Room,
		TeacherID:  in.TeacherID,
		Students:   make([]Student, 0, len(in.Roster)),
	}
	for _, e := range in.Roster {
		st, ok := in.Statuses[e.StudentID]
		if !ok {
			st = Present
		}
		rec.Students = append(rec.Students, Student{
			StudentID: e.StudentID,
			RollNo:    e.RollNo,
			Name:      e.Name(),
			Status:    st,
		})
	}

	if err := Validate(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}
