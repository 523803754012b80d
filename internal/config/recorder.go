package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"rollcall/internal/attendance"
	"rollcall/internal/slot"
)

// Recorder is the classroom device configuration.
type Recorder struct {
	ServerURL      string        `yaml:"server_url"`
	RecorderID     string        `yaml:"recorder_id"`
	TeacherID      string        `yaml:"teacher_id"`
	Token          string        `yaml:"token"`
	BacklogPath    string        `yaml:"backlog_path"`
	ExportDir      string        `yaml:"export_dir"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Slots          []SlotConfig  `yaml:"slots"`
}

// SlotConfig describes one timetable slot of a class: where and when it
// happens, what is taught, and who attends.
type SlotConfig struct {
	ClassName  string `yaml:"class_name"`
	SlotNumber int    `yaml:"slot_number"`
	Course     string `yaml:"course"`
	Room       string `yaml:"room"`
	StartTime  string `yaml:"start_time"`
	EndTime    string `yaml:"end_time"`
	RosterFile string `yaml:"roster_file"`
}

// LoadRecorder reads a recorder YAML file. Relative paths in it are taken
// relative to the file. RECORDER_TOKEN and RECORDER_SERVER_URL override the
// file when set.
func LoadRecorder(path string) (Recorder, error) {
	var cfg Recorder
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ServerURL = getEnv("RECORDER_SERVER_URL", cfg.ServerURL)
	cfg.Token = getEnv("RECORDER_TOKEN", cfg.Token)

	base := filepath.Dir(path)
	if cfg.BacklogPath == "" {
		cfg.BacklogPath = "backlog.db"
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = "exports"
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 15 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	cfg.BacklogPath = resolve(base, cfg.BacklogPath)
	cfg.ExportDir = resolve(base, cfg.ExportDir)
	for i := range cfg.Slots {
		cfg.Slots[i].RosterFile = resolve(base, cfg.Slots[i].RosterFile)
	}
	return cfg, cfg.validate()
}

func (r Recorder) validate() error {
	var errs []error
	if r.ServerURL == "" {
		errs = append(errs, errors.New("server_url is required"))
	}
	if r.TeacherID == "" {
		errs = append(errs, errors.New("teacher_id is required"))
	}
	seen := make(map[string]bool)
	for i, s := range r.Slots {
		key := fmt.Sprintf("%s/%d", s.ClassName, s.SlotNumber)
		switch {
		case s.ClassName == "":
			errs = append(errs, fmt.Errorf("slots[%d]: class_name is required", i))
		case !slot.ValidSlotNumber(s.SlotNumber):
			errs = append(errs, fmt.Errorf("slots[%d]: slot_number %d out of range", i, s.SlotNumber))
		case seen[key]:
			errs = append(errs, fmt.Errorf("slots[%d]: %s slot %d listed twice", i, s.ClassName, s.SlotNumber))
		}
		seen[key] = true
	}
	return errors.Join(errs...)
}

// Slot returns the descriptor for a class and slot number.
func (r Recorder) Slot(className string, slotNumber int) (SlotConfig, bool) {
	for _, s := range r.Slots {
		if s.ClassName == className && s.SlotNumber == slotNumber {
			return s, true
		}
	}
	return SlotConfig{}, false
}

// LoadRoster reads a roster file: a YAML list of students in
// roll order.
func LoadRoster(path string) ([]attendance.RosterEntry, error) {
	if path == "" {
		return nil, errors.New("no roster file configured")
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	var roster []attendance.RosterEntry
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	return roster, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
