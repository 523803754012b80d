package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const schema = `
CREATE TABLE IF NOT EXISTS recorders (
	recorder_id TEXT PRIMARY KEY,
	teacher_id  TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_seen   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	token       TEXT PRIMARY KEY,
	recorder_id TEXT NOT NULL REFERENCES recorders(recorder_id),
	expires_at  TIMESTAMPTZ NOT NULL,
	revoked     BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS attendance_records (
	id            UUID PRIMARY KEY,
	date          DATE NOT NULL,
	year          INTEGER NOT NULL,
	month         SMALLINT NOT NULL CHECK (month BETWEEN 1 AND 12),
	week          SMALLINT NOT NULL CHECK (week BETWEEN 1 AND 53),
	slot_number   SMALLINT NOT NULL CHECK (slot_number BETWEEN 1 AND 10),
	start_time    TEXT NOT NULL,
	end_time      TEXT NOT NULL,
	class_name    TEXT NOT NULL,
	course        TEXT NOT NULL,
	room          TEXT NOT NULL,
	teacher_id    TEXT NOT NULL,
	students      JSONB NOT NULL,
	summarized_at TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT attendance_slot_unique UNIQUE (date, class_name, slot_number)
);

CREATE INDEX IF NOT EXISTS idx_attendance_class_course ON attendance_records (class_name, course, date);

CREATE TABLE IF NOT EXISTS attendance_weekly_summaries (
	class_name TEXT NOT NULL,
	course     TEXT NOT NULL,
	year       INTEGER NOT NULL,
	week       SMALLINT NOT NULL,
	slots      INTEGER NOT NULL DEFAULT 0,
	present    INTEGER NOT NULL DEFAULT 0,
	absent     INTEGER NOT NULL DEFAULT 0,
	late       INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (class_name, course, year, week)
);
`

const recordColumns = `id, date, year, month, week, slot_number, start_time, end_time, class_name, course, room, teacher_id, students, created_at`

// PostgresStore persists attendance in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables when they do not exist yet.
func (r *PostgresStore) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// UpsertRecorder ensures a recorder row exists and refreshes last_seen.
func (r *PostgresStore) UpsertRecorder(ctx context.Context, recorderID, teacherID string) error {
	if recorderID == "" || teacherID == "" {
		return errors.New("recorder and teacher id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recorders (recorder_id, teacher_id)
		VALUES ($1, $2)
		ON CONFLICT (recorder_id) DO UPDATE SET teacher_id = EXCLUDED.teacher_id, last_seen = NOW()
	`, recorderID, teacherID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *PostgresStore) SaveRefreshToken(ctx context.Context, recorderID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (recorder_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, recorderID, token, expiresAt)
	return err
}

// Insert writes the record unless its slot is already taken. The unique
// constraint does the check, so racing inserts cannot both succeed.
func (r *PostgresStore) Insert(ctx context.Context, rec Record) (Record, error) {
	students, err := json.Marshal(rec.Students)
	if err != nil {
		return Record{}, fmt.Errorf("encode students: %w", err)
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, date, year, month, week, slot_number, start_time, end_time, class_name, course, room, teacher_id, students)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT ON CONSTRAINT attendance_slot_unique DO NOTHING
		RETURNING created_at
	`, rec.ID, rec.Date, rec.Year, rec.Month, rec.Week, rec.SlotNumber, rec.StartTime, rec.EndTime,
		rec.ClassName, rec.Course, rec.Room, rec.TeacherID, string(students))
	var created time.Time
	if err := row.Scan(&created); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return Record{}, ErrDuplicateSlot
		}
		return Record{}, err
	}
	created = created.UTC()
	rec.CreatedAt = &created
	return rec, nil
}

// Get returns a single record by id.
func (r *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM attendance_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// List returns the records of a class and course, oldest first.
func (r *PostgresStore) List(ctx context.Context, className, course string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE class_name = $1 AND course = $2
		ORDER BY date ASC, slot_number ASC
	`, className, course)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// ApplySummary marks the record summarized and adds it to its week in one
// transaction; a redelivered event finds summarized_at already set.
func (r *PostgresStore) ApplySummary(ctx context.Context, id string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		className, course string
		year, week        int
		rawStudents       []byte
	)
	err = tx.QueryRowContext(ctx, `
		UPDATE attendance_records SET summarized_at = NOW()
		WHERE id = $1 AND summarized_at IS NULL
		RETURNING class_name, course, year, week, students
	`, id).Scan(&className, &course, &year, &week, &rawStudents)
	if errors.Is(err, sql.ErrNoRows) {
		if _, gerr := r.Get(ctx, id); gerr != nil {
			return false, gerr
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}

	rec := Record{}
	if err := json.Unmarshal(rawStudents, &rec.Students); err != nil {
		return false, fmt.Errorf("decode students of %s: %w", id, err)
	}
	p, a, l := rec.Tally()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO attendance_weekly_summaries (class_name, course, year, week, slots, present, absent, late)
		VALUES ($1, $2, $3, $4, 1, $5, $6, $7)
		ON CONFLICT (class_name, course, year, week) DO UPDATE SET
			slots = attendance_weekly_summaries.slots + 1,
			present = attendance_weekly_summaries.present + EXCLUDED.present,
			absent = attendance_weekly_summaries.absent + EXCLUDED.absent,
			late = attendance_weekly_summaries.late + EXCLUDED.late,
			updated_at = NOW()
	`, className, course, year, week, p, a, l); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// Summaries returns the weekly aggregates of a class and course.
func (r *PostgresStore) Summaries(ctx context.Context, className, course string) ([]Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT class_name, course, year, week, slots, present, absent, late, updated_at
		FROM attendance_weekly_summaries
		WHERE class_name = $1 AND course = $2
		ORDER BY year, week
	`, className, course)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ClassName, &s.Course, &s.Year, &s.Week, &s.Slots, &s.Present, &s.Absent, &s.Late, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec     Record
		raw     []byte
		created time.Time
	)
	if err := s.Scan(&rec.ID, &rec.Date, &rec.Year, &rec.Month, &rec.Week, &rec.SlotNumber, &rec.StartTime, &rec.EndTime,
		&rec.ClassName, &rec.Course, &rec.Room, &rec.TeacherID, &raw, &created); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(raw, &rec.Students); err != nil {
		return Record{}, fmt.Errorf("decode students of %s: %w", rec.ID, err)
	}
	created = created.UTC()
	rec.CreatedAt = &created
	return rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
