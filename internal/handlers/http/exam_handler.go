package http

import (
	"errors"
	"net/http"
	"time"

	"examcast/internal/core/domain"
	"examcast/internal/core/ports"
	"examcast/pkg/tracing"

	"github.com/gin-gonic/gin"
)

type ExamHandler struct {
	examService ports.ExamService
	roomService ports.RoomService
	registry    ConnectionCounter
}

// ConnectionCounter reports the number of live signaling connections.
type ConnectionCounter interface {
	Count() int
}

func NewExamHandler(examService ports.ExamService, roomService ports.RoomService, registry ConnectionCounter) *ExamHandler {
	return &ExamHandler{
		examService: examService,
		roomService: roomService,
		registry:    registry,
	}
}

// SetupRoutes registers the exam API. The guards are applied, in order, to
// the mutating endpoints only; read endpoints and health stay open.
func (h *ExamHandler) SetupRoutes(router *gin.Engine, guards ...gin.HandlerFunc) {
	api := router.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/exams", h.ListExams)
		api.GET("/exams/:id", h.GetExam)

		protected := api.Group("")
		protected.Use(guards...)
		protected.POST("/exams", h.CreateExam)
		protected.PATCH("/exams/:id/status", h.UpdateExamStatus)
	}
}

func (h *ExamHandler) CreateExam(c *gin.Context) {
	var req struct {
		Title        string           `json:"title" binding:"required,min=3,max=200"`
		Duration     int              `json:"duration" binding:"required,min=1,max=600"`
		Questions    []map[string]any `json:"questions"`
		ScheduledFor time.Time        `json:"scheduledFor"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exam, err := h.examService.CreateExam(c.Request.Context(), ports.CreateExamInput{
		Title:        req.Title,
		Duration:     req.Duration,
		Questions:    req.Questions,
		ScheduledFor: req.ScheduledFor,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"exam": exam})
}

func (h *ExamHandler) GetExam(c *gin.Context) {
	tracing.SetExamID(c.Request.Context(), c.Param("id"))
	exam, err := h.examService.GetExam(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrExamNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Exam not found"})
			return
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"exam": exam})
}

func (h *ExamHandler) ListExams(c *gin.Context) {
	exams, err := h.examService.ListExams(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"exams": exams,
		"count": len(exams),
	})
}

func (h *ExamHandler) UpdateExamStatus(c *gin.Context) {
	var req struct {
		Status domain.ExamStatus `json:"status" binding:"required"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tracing.SetExamID(c.Request.Context(), c.Param("id"))
	exam, err := h.examService.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		if errors.Is(err, domain.ErrExamNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Exam not found"})
			return
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"exam": exam})
}

func (h *ExamHandler) Health(c *gin.Context) {
	rooms, participants := h.roomService.Stats()

	connections := 0
	if h.registry != nil {
		connections = h.registry.Count()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"rooms":        rooms,
		"participants": participants,
		"connections":  connections,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
