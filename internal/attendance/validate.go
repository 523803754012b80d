package attendance

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"rollcall/internal/slot"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return slot.ValidClock(fl.Field().String())
	})
	_ = v.RegisterValidation("status", func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	})
	return v
}

// Validate checks a record independently of whoever built it. The calendar
// fields are recomputed from the date and must match what the client sent.
func Validate(rec Record) error {
	verr := &ValidationError{}
	if err := validate.Struct(rec); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			name := fieldPath(fe.Namespace())
			if fe.Tag() == "required" {
				verr.Missing = append(verr.Missing, name)
				continue
			}
			verr.add(name, describe(fe))
		}
	}

	if !rec.Date.IsZero() {
		cal := slot.Derive(rec.Date)
		if rec.Year != 0 && rec.Year != cal.Year {
			verr.add("year", fmt.Sprintf("does not match date %s (want %d)", rec.Date, cal.Year))
		}
		if rec.Month != 0 && rec.Month != cal.Month {
			verr.add("month", fmt.Sprintf("does not match date %s (want %d)", rec.Date, cal.Month))
		}
		if rec.Week != 0 && rec.Week != cal.Week {
			verr.add("week", fmt.Sprintf("does not match date %s (want %d)", rec.Date, cal.Week))
		}
	}

	seen := make(map[string]bool, len(rec.Students))
	for i, s := range rec.Students {
		if s.StudentID == "" {
			continue
		}
		if seen[s.StudentID] {
			verr.add(fmt.Sprintf("students[%d].studentId", i), "duplicate student "+s.StudentID)
		}
		seen[s.StudentID] = true
	}

	if verr.empty() {
		return nil
	}
	return verr
}

// fieldPath drops the struct name from a validator namespace,
// "Record.students[0].status" becomes "students[0].status".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		if fe.Field() == "students" {
			return "must list at least one student"
		}
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "hhmm":
		return "must be a 24-hour HH:MM time"
	case "status":
		return "must be one of P, A, L"
	}
	return "failed " + fe.Tag() + " check"
}
