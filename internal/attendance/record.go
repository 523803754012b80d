package attendance

import (
	"time"

	"rollcall/internal/slot"
)

// Status is a student's presence in one slot.
type Status string

const (
	Present Status = "P"
	Absent  Status = "A"
	Late    Status = "L"
)

// Valid reports whether s is one of P, A, L.
func (s Status) Valid() bool {
	switch s {
	case Present, Absent, Late:
		return true
	}
	return false
}

// Student is one line of the roster snapshot taken at capture time.
type Student struct {
	StudentID string `json:"studentId" validate:"required"`
	RollNo    string `json:"rollNo" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Status    Status `json:"status" validate:"required,status"`
}

// Record is one captured slot. It is also the portable file payload and the
// submission wire format; ID and CreatedAt are only set once persisted.
type Record struct {
	ID         string     `json:"id,omitempty"`
	Date       slot.Date  `json:"date" validate:"required"`
	Year       int        `json:"year" validate:"required"`
	Month      int        `json:"month" validate:"required,min=1,max=12"`
	Week       int        `json:"week" validate:"required,min=1,max=53"`
	SlotNumber int        `json:"slotNumber" validate:"required,min=1,max=10"`
	StartTime  string     `json:"startTime" validate:"required,hhmm"`
	EndTime    string     `json:"endTime" validate:"required,hhmm"`
	ClassName  string     `json:"className" validate:"required"`
	Course     string     `json:"course" validate:"required"`
	Room       string     `json:"room" validate:"required"`
	TeacherID  string     `json:"teacherId" validate:"required"`
	Students   []Student  `json:"students" validate:"required,min=1,dive"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
}

// Identity returns the slot the record occupies.
func (r Record) Identity() slot.Identity {
	return slot.Identity{Date: r.Date, ClassName: r.ClassName, SlotNumber: r.SlotNumber}
}

// Payload strips the fields assigned by persistence.
func (r Record) Payload() Record {
	r.ID = ""
	r.CreatedAt = nil
	r.Students = append([]Student(nil), r.Students...)
	return r
}

// StatusOf returns the status recorded for studentID.
func (r Record) StatusOf(studentID string) (Status, bool) {
	for _, s := range r.Students {
		if s.StudentID == studentID {
			return s.Status, true
		}
	}
	return "", false
}

// Tally counts present, absent and late students.
func (r Record) Tally() (present, absent, late int) {
	for _, s := range r.Students {
		switch s.Status {
		case Present:
			present++
		case Absent:
			absent++
		case Late:
			late++
		}
	}
	return present, absent, late
}

// RosterEntry is a student as listed by the class roster.
type RosterEntry struct {
	StudentID string `json:"studentId" yaml:"student_id"`
	RollNo    string `json:"rollNo" yaml:"roll_no"`
	FirstName string `json:"firstName" yaml:"first_name"`
	LastName  string `json:"lastName" yaml:"last_name"`
}

// Name is the display name stored in the snapshot.
func (e RosterEntry) Name() string {
	if e.LastName == "" {
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

// Summary aggregates the recorded slots of one class and course for a week.
type Summary struct {
	ClassName string    `json:"className"`
	Course    string    `json:"course"`
	Year      int       `json:"year"`
	Week      int       `json:"week"`
	Slots     int       `json:"slots"`
	Present   int       `json:"present"`
	Absent    int       `json:"absent"`
	Late      int       `json:"late"`
	UpdatedAt time.Time `json:"updatedAt"`
}
