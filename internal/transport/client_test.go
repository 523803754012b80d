package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/attendance"
	"rollcall/internal/slot"
)

func sampleRecord(t *testing.T) attendance.Record {
	t.Helper()
	rec, err := attendance.Build(attendance.BuildInput{
		Date:       slot.NewDate(2025, time.March, 10),
		SlotNumber: 4,
		StartTime:  "10:30",
		EndTime:    "11:15",
		ClassName:  "Grade 2 General",
		Course:     "Mathematics",
		Room:       "R-12",
		TeacherID:  "teacher-7",
		Roster:     []attendance.RosterEntry{{StudentID: "s1", RollNo: "1", FirstName: "Ada", LastName: "Lovelace"}},
	})
	require.NoError(t, err)
	return rec
}

func TestSubmitOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    Outcome
		persist bool
		check   func(t *testing.T, res Result)
	}{
		{name: "created", status: http.StatusCreated, body: `{"message":"Attendance saved successfully","id":"abc"}`, want: Created, persist: true,
			check: func(t *testing.T, res Result) { assert.Equal(t, "abc", res.ID) }},
		{name: "duplicate", status: http.StatusConflict, body: `{"error":"Attendance already recorded for this slot"}`, want: Duplicate, persist: true,
			check: func(t *testing.T, res Result) { assert.True(t, errors.Is(res.Err, attendance.ErrDuplicateSlot)) }},
		{name: "missing fields", status: http.StatusBadRequest, body: `{"error":"Missing required fields: room","missing":["room"]}`, want: Rejected,
			check: func(t *testing.T, res Result) {
				assert.True(t, attendance.IsValidation(res.Err))
				assert.Equal(t, []string{"room"}, res.Missing)
			}},
		{name: "forbidden", status: http.StatusForbidden, body: `{"error":"teacher mismatch"}`, want: Rejected},
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`, want: Unreachable},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"rate limit"}`, want: Unreachable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/attendance", r.URL.Path)
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				var got attendance.Record
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				assert.Equal(t, 11, got.Week)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			res := New(srv.URL, "tok", time.Second).Submit(context.Background(), sampleRecord(t))
			assert.Equal(t, tt.want, res.Outcome)
			assert.Equal(t, tt.status, res.StatusCode)
			assert.Equal(t, tt.persist, res.Persisted())
			if tt.check != nil {
				tt.check(t, res)
			}
		})
	}
}

func TestSubmitUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := New(url, "", time.Second).Submit(context.Background(), sampleRecord(t))
	assert.Equal(t, Unreachable, res.Outcome)
	assert.Error(t, res.Err)
	assert.False(t, res.Persisted())
}

func TestSubmitCancelledIsNotPersisted(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := New(srv.URL, "", 5*time.Second).Submit(ctx, sampleRecord(t))
	assert.Equal(t, Unreachable, res.Outcome)
	assert.False(t, res.Persisted())
}

func TestRegisterAndHealth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/recorders/register", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "tablet-1", req["recorder_id"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"access_token":"a","refresh_token":"r","expires_at":1}`))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL+"/", "", time.Second)
	tokens, err := c.Register(context.Background(), "tablet-1", "teacher-7")
	require.NoError(t, err)
	assert.Equal(t, "a", tokens.AccessToken)
	assert.NoError(t, c.Health(context.Background()))
}
