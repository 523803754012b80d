// Package handler exposes attendance submission and retrieval over HTTP.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
)

// Recorders keeps track of registered recorder devices.
type Recorders interface {
	UpsertRecorder(ctx context.Context, recorderID, teacherID string) error
	SaveRefreshToken(ctx context.Context, recorderID, token string, expiresAt time.Time) error
}

// Summaries serves the weekly aggregates.
type Summaries interface {
	Summaries(ctx context.Context, className, course string) ([]attendance.Summary, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) bool

// Auth holds the token settings.
type Auth struct {
	SigningKey string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Handler serves the /v1 API.
type Handler struct {
	service   *attendance.Service
	summaries Summaries
	recorders Recorders
	auth      Auth
	checks    map[string]HealthCheck
}

// New creates a handler. checks are reported by /healthz under their names.
func New(service *attendance.Service, summaries Summaries, recorders Recorders, a Auth, checks map[string]HealthCheck) *Handler {
	return &Handler{service: service, summaries: summaries, recorders: recorders, auth: a, checks: checks}
}

// Middleware is extra per-route handling. Protected handlers run after
// authentication, so they can see the recorder's claims.
type Middleware struct {
	Public    []gin.HandlerFunc
	Protected []gin.HandlerFunc
}

// Register mounts the routes.
func (h *Handler) Register(r gin.IRouter, mw Middleware) {
	r.GET("/healthz", h.health)
	public := append([]gin.HandlerFunc{}, mw.Public...)
	r.POST("/v1/recorders/register", append(public, h.registerRecorder)...)

	v1 := r.Group("/v1", auth.RecorderAuth(h.auth.SigningKey, h.auth.Issuer))
	v1.Use(mw.Protected...)
	v1.POST("/attendance", h.createAttendance)
	v1.GET("/attendance", h.listAttendance)
	v1.GET("/attendance/summary", h.summary)
	v1.GET("/attendance/:id", h.getAttendance)
}

func (h *Handler) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func (h *Handler) registerRecorder(c *gin.Context) {
	var req struct {
		RecorderID string `json:"recorder_id" binding:"required"`
		TeacherID  string `json:"teacher_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.recorders.UpsertRecorder(c.Request.Context(), req.RecorderID, req.TeacherID); err != nil {
		log.Printf("register recorder %s failed: %v", req.RecorderID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "register failed"})
		return
	}

	tokens, err := auth.Issue(req.TeacherID, req.RecorderID, h.auth.Issuer, h.auth.SigningKey, h.auth.AccessTTL, h.auth.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	if err := h.recorders.SaveRefreshToken(c.Request.Context(), req.RecorderID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		log.Printf("save refresh token for %s failed: %v", req.RecorderID, err)
	}

	c.JSON(http.StatusCreated, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (h *Handler) createAttendance(c *gin.Context) {
	var rec attendance.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}

	claims, _ := auth.ClaimsFrom(c)
	if claims.Subject != "" && rec.TeacherID != "" && claims.Subject != rec.TeacherID {
		c.JSON(http.StatusForbidden, gin.H{"error": "teacher mismatch"})
		return
	}

	saved, err := h.service.Create(c.Request.Context(), rec)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Attendance saved successfully", "id": saved.ID})
}

// listedRecord is a record as seen by one student.
type listedRecord struct {
	attendance.Record
	MyStatus attendance.Status `json:"myStatus,omitempty"`
}

func (h *Handler) listAttendance(c *gin.Context) {
	recs, err := h.service.List(c.Request.Context(), c.Query("className"), c.Query("course"))
	if err != nil {
		h.fail(c, err)
		return
	}
	studentID := c.Query("studentId")
	if studentID == "" {
		if recs == nil {
			recs = []attendance.Record{}
		}
		c.JSON(http.StatusOK, gin.H{"records": recs})
		return
	}
	out := make([]listedRecord, 0, len(recs))
	for _, rec := range recs {
		status, _ := rec.StatusOf(studentID)
		out = append(out, listedRecord{Record: rec, MyStatus: status})
	}
	c.JSON(http.StatusOK, gin.H{"records": out})
}

func (h *Handler) getAttendance(c *gin.Context) {
	rec, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) summary(c *gin.Context) {
	rows, err := h.summaries.Summaries(c.Request.Context(), c.Query("className"), c.Query("course"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if rows == nil {
		rows = []attendance.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"summaries": rows})
}

func (h *Handler) fail(c *gin.Context, err error) {
	var verr *attendance.ValidationError
	switch {
	case errors.As(err, &verr):
		body := gin.H{}
		if len(verr.Missing) > 0 {
			body["error"] = "Missing required fields: " + strings.Join(verr.Missing, ", ")
			body["missing"] = verr.Missing
		} else {
			body["error"] = verr.Error()
		}
		if len(verr.Fields) > 0 {
			body["fields"] = verr.Fields
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, attendance.ErrDuplicateSlot):
		c.JSON(http.StatusConflict, gin.H{"error": "Attendance already recorded for this slot"})
	case errors.Is(err, attendance.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
