package domain

import "time"

// ExamStatus is the lifecycle state of a scheduled exam.
type ExamStatus string

const (
	ExamStatusPending   ExamStatus = "pending"
	ExamStatusActive    ExamStatus = "active"
	ExamStatusCompleted ExamStatus = "completed"
)

func (s ExamStatus) Valid() bool {
	switch s {
	case ExamStatusPending, ExamStatusActive, ExamStatusCompleted:
		return true
	}
	return false
}

// Exam is a scheduled exam session. Participants join its signaling room
// using the generated room code.
type Exam struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Duration     int              `json:"duration"` // minutes
	Questions    []map[string]any `json:"questions"`
	ScheduledFor time.Time        `json:"scheduledFor"`
	CreatedAt    time.Time        `json:"createdAt"`
	Status       ExamStatus       `json:"status"`
	RoomCode     string           `json:"roomCode"`
	Participants []string         `json:"participants"`
}
