// Package transport submits attendance records to the server.
//
// Submit never returns an error: every attempt ends in a Result whose
// Outcome tells the caller whether the record is safe on the server.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rollcall/internal/attendance"
)

// Outcome classifies a submission attempt.
type Outcome int

const (
	// Unreachable covers network failures, timeouts, cancellation and 5xx.
	Unreachable Outcome = iota
	// Created means this attempt stored the record.
	Created
	// Duplicate means the slot was already recorded.
	Duplicate
	// Rejected means the server refused the payload (validation, auth).
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Duplicate:
		return "duplicate"
	case Rejected:
		return "rejected"
	}
	return "unreachable"
}

// Result is the outcome of one submission.
type Result struct {
	Outcome    Outcome
	StatusCode int
	ID         string
	Message    string
	Missing    []string
	Fields     []attendance.FieldError
	Err        error
}

// Persisted reports whether the slot's record is known to be on the server.
func (r Result) Persisted() bool {
	return r.Outcome == Created || r.Outcome == Duplicate
}

// Tokens are the credentials issued to a recorder.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Client calls the attendance API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a client with the given request timeout.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type submitResponse struct {
	ID      string                  `json:"id"`
	Message string                  `json:"message"`
	Error   string                  `json:"error"`
	Missing []string                `json:"missing"`
	Fields  []attendance.FieldError `json:"fields"`
}

// Submit posts one record.
func (c *Client) Submit(ctx context.Context, rec attendance.Record) Result {
	body, err := json.Marshal(rec.Payload())
	if err != nil {
		return Result{Outcome: Rejected, Err: fmt.Errorf("encode record: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/attendance", bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: Unreachable, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Result{Outcome: Unreachable, Err: fmt.Errorf("attendance service request failed: %w", err)}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var out submitResponse
	_ = json.Unmarshal(raw, &out)

	res := Result{
		StatusCode: resp.StatusCode,
		ID:         out.ID,
		Message:    out.Message,
		Missing:    out.Missing,
		Fields:     out.Fields,
	}
	if res.Message == "" {
		res.Message = out.Error
	}
	switch {
	case resp.StatusCode == http.StatusCreated:
		res.Outcome = Created
	case resp.StatusCode == http.StatusConflict:
		res.Outcome = Duplicate
		res.Err = attendance.ErrDuplicateSlot
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		res.Outcome = Unreachable
		res.Err = fmt.Errorf("attendance service error %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	case resp.StatusCode >= 400:
		res.Outcome = Rejected
		if resp.StatusCode == http.StatusBadRequest {
			res.Err = &attendance.ValidationError{Missing: out.Missing, Fields: out.Fields}
		} else {
			res.Err = fmt.Errorf("attendance service refused %s: %s", resp.Status, res.Message)
		}
	default:
		res.Outcome = Unreachable
		res.Err = fmt.Errorf("unexpected response %s", resp.Status)
	}
	return res
}

// Register exchanges a recorder id for tokens.
func (c *Client) Register(ctx context.Context, recorderID, teacherID string) (Tokens, error) {
	body, _ := json.Marshal(map[string]string{"recorder_id": recorderID, "teacher_id": teacherID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/recorders/register", bytes.NewReader(body))
	if err != nil {
		return Tokens{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("attendance service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		return Tokens{}, fmt.Errorf("register failed %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	var out Tokens
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Tokens{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.AccessToken == "" {
		return Tokens{}, errors.New("register returned no access token")
	}
	return out, nil
}

// Health checks if the attendance service is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("attendance service unavailable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("attendance service unhealthy: %s", resp.Status)
	}
	return nil
}
