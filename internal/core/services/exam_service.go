package services

import (
	"context"
	"fmt"
	"time"

	"examcast/internal/core/domain"
	"examcast/internal/core/ports"
	apperrors "examcast/pkg/errors"
	"examcast/pkg/utils"

	"go.uber.org/zap"
)

const roomCodeAttempts = 10

type examService struct {
	repo   ports.ExamRepository
	logger *zap.SugaredLogger
}

func NewExamService(repo ports.ExamRepository, logger *zap.SugaredLogger) ports.ExamService {
	return &examService{repo: repo, logger: logger}
}

func (s *examService) CreateExam(ctx context.Context, input ports.CreateExamInput) (*domain.Exam, error) {
	if input.Title == "" {
		return nil, apperrors.NewValidationError("title is required")
	}
	if input.Duration <= 0 {
		return nil, apperrors.NewValidationError("duration must be > 0")
	}

	scheduledFor := input.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = time.Now()
	}

	code, err := s.uniqueRoomCode(ctx)
	if err != nil {
		return nil, err
	}

	exam := &domain.Exam{
		ID:           utils.GenerateExamID(),
		Title:        input.Title,
		Duration:     input.Duration,
		Questions:    input.Questions,
		ScheduledFor: scheduledFor,
		CreatedAt:    time.Now(),
		Status:       domain.ExamStatusPending,
		RoomCode:     code,
		Participants: []string{},
	}

	if err := s.repo.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("failed to create exam: %w", err)
	}

	s.logger.Infow("exam created", "exam_id", exam.ID, "title", exam.Title, "room_code", exam.RoomCode)
	return exam, nil
}

func (s *examService) GetExam(ctx context.Context, id string) (*domain.Exam, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *examService) ListExams(ctx context.Context) ([]*domain.Exam, error) {
	return s.repo.List(ctx)
}

func (s *examService) UpdateStatus(ctx context.Context, id string, status domain.ExamStatus) (*domain.Exam, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown exam status %q", status))
	}

	exam, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !validStatusTransition(exam.Status, status) {
		return nil, apperrors.NewConflictError(fmt.Sprintf("cannot move exam from %s to %s", exam.Status, status))
	}

	exam.Status = status
	if err := s.repo.Update(ctx, exam); err != nil {
		return nil, fmt.Errorf("failed to update exam: %w", err)
	}

	s.logger.Infow("exam status updated", "exam_id", id, "status", status)
	return exam, nil
}

func (s *examService) uniqueRoomCode(ctx context.Context) (string, error) {
	for i := 0; i < roomCodeAttempts; i++ {
		code, err := utils.GenerateRoomCode()
		if err != nil {
			return "", err
		}
		taken, err := s.repo.CodeInUse(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check room code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", apperrors.NewInternalError("could not allocate a unique room code")
}

func validStatusTransition(from, to domain.ExamStatus) bool {
	switch from {
	case domain.ExamStatusPending:
		return to == domain.ExamStatusActive || to == domain.ExamStatusCompleted
	case domain.ExamStatusActive:
		return to == domain.ExamStatusCompleted
	}
	return false
}
