// Package slot identifies attendance opportunities and derives their calendar fields.
package slot

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// MinSlot and MaxSlot bound the numbered teaching periods of a day.
	MinSlot = 1
	MaxSlot = 10

	dateLayout = "2006-01-02"
	day        = 24 * time.Hour
)

var clockPattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

// Date is a calendar day with no time zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate normalizes y-m-d the way time.Date does (Feb 30 becomes Mar 2).
func NewDate(year int, month time.Month, d int) Date {
	return DateOf(time.Date(year, month, d, 0, 0, 0, 0, time.UTC))
}

// DateOf takes the wall-clock date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate accepts 2006-01-02 or an RFC 3339 timestamp. For timestamps the
// date is taken as written, without converting between zones.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return DateOf(t), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) Before(o Date) bool { return d.Time().Before(o.Time()) }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time().Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value stores the date as a DATE column.
func (d Date) Value() (driver.Value, error) {
	return d.Time(), nil
}

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		return d.Scan(string(v))
	case nil:
		*d = Date{}
		return nil
	}
	return fmt.Errorf("cannot scan %T into slot.Date", src)
}

// Calendar holds the fields every record carries for reporting.
// Year is the week-numbering year, so (Year, Week) is the same for every
// day of a Monday to Sunday week.
type Calendar struct {
	Year  int
	Month int
	Week  int
}

// Derive computes the calendar fields of d.
func Derive(d Date) Calendar {
	thursday := weekThursday(d)
	return Calendar{
		Year:  thursday.Year(),
		Month: int(d.Month),
		Week:  weekOf(thursday),
	}
}

// Week returns the ISO-8601 week number of d.
func Week(d Date) int { return weekOf(weekThursday(d)) }

// ISOYear returns the year the week of d belongs to.
func ISOYear(d Date) int { return weekThursday(d).Year() }

// weekThursday shifts d to the Thursday of its Monday-start week.
func weekThursday(d Date) time.Time {
	t := d.Time()
	dayNum := int(t.Weekday())
	if dayNum == 0 {
		dayNum = 7
	}
	return t.AddDate(0, 0, 4-dayNum)
}

func weekOf(thursday time.Time) int {
	yearStart := time.Date(thursday.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	days := int(thursday.Sub(yearStart)/day) + 1
	return (days + 6) / 7
}

// Identity is the natural key of an attendance record.
type Identity struct {
	Date       Date
	ClassName  string
	SlotNumber int
}

// Key is a stable string form, e.g. "2025-03-10|Grade 2 General|4".
func (id Identity) Key() string {
	return id.Date.String() + "|" + id.ClassName + "|" + strconv.Itoa(id.SlotNumber)
}

func (id Identity) String() string { return id.Key() }

// ValidSlotNumber reports whether n names a teaching period.
func ValidSlotNumber(n int) bool { return n >= MinSlot && n <= MaxSlot }

// ValidClock reports whether s is a 24-hour HH:MM time.
func ValidClock(s string) bool { return clockPattern.MatchString(s) }
