package capture

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"rollcall/internal/attendance"
)

// fileTimestamp is ISO-8601 in UTC with milliseconds, e.g. 2025-03-10T08:15:30.123Z.
const fileTimestamp = "2006-01-02T15:04:05.000Z"

// FileName returns the portable file name for a capture made at t.
func FileName(t time.Time) string {
	return "attendance_" + t.UTC().Format(fileTimestamp) + ".json"
}

// Encode writes rec as one portable JSON document.
func Encode(w io.Writer, rec attendance.Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rec.Payload())
}

// Decode parses one portable document. Anything after the document is an error.
func Decode(r io.Reader) (attendance.Record, error) {
	dec := json.NewDecoder(r)
	var rec attendance.Record
	if err := dec.Decode(&rec); err != nil {
		return attendance.Record{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return attendance.Record{}, errors.New("unexpected data after attendance document")
	}
	return rec.Payload(), nil
}

// ReadFile parses a portable file from disk.
func ReadFile(path string) (attendance.Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return attendance.Record{}, err
	}
	return Decode(bytes.NewReader(raw))
}

// WriteFile writes rec under dir as attendance_<t>.json, moving t forward a
// millisecond at a time past existing files. The file appears under its
// final name only once fully written.
func WriteFile(dir string, rec attendance.Record, t time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".attendance-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, rec); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write export file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync export file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}

	path := filepath.Join(dir, FileName(t))
	for i := 1; fileExists(path); i++ {
		path = filepath.Join(dir, FileName(t.Add(time.Duration(i)*time.Millisecond)))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("publish export file: %w", err)
	}
	return path, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
