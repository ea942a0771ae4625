package services

import (
	"context"
	"testing"

	"examcast/internal/core/domain"
	"examcast/internal/core/ports"
	apperrors "examcast/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockExamRepository struct {
	mock.Mock
}

func (m *MockExamRepository) Create(ctx context.Context, exam *domain.Exam) error {
	args := m.Called(ctx, exam)
	return args.Error(0)
}

func (m *MockExamRepository) GetByID(ctx context.Context, id string) (*domain.Exam, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Exam), args.Error(1)
}

func (m *MockExamRepository) List(ctx context.Context) ([]*domain.Exam, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Exam), args.Error(1)
}

func (m *MockExamRepository) Update(ctx context.Context, exam *domain.Exam) error {
	args := m.Called(ctx, exam)
	return args.Error(0)
}

func (m *MockExamRepository) CodeInUse(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func TestCreateExam(t *testing.T) {
	repo := new(MockExamRepository)
	repo.On("CodeInUse", mock.Anything, mock.AnythingOfType("string")).Return(false, nil)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Exam")).Return(nil)

	svc := NewExamService(repo, zap.NewNop().Sugar())

	exam, err := svc.CreateExam(context.Background(), ports.CreateExamInput{
		Title:    "Algorithms Final",
		Duration: 90,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, exam.ID)
	assert.Equal(t, "Algorithms Final", exam.Title)
	assert.Equal(t, domain.ExamStatusPending, exam.Status)
	assert.Len(t, exam.RoomCode, 6)
	assert.NotNil(t, exam.Participants)
	repo.AssertExpectations(t)
}

func TestCreateExamValidation(t *testing.T) {
	svc := NewExamService(new(MockExamRepository), zap.NewNop().Sugar())

	_, err := svc.CreateExam(context.Background(), ports.CreateExamInput{Duration: 60})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetAppError(err).Code)

	_, err = svc.CreateExam(context.Background(), ports.CreateExamInput{Title: "Exam"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetAppError(err).Code)
}

func TestCreateExamRetriesTakenRoomCode(t *testing.T) {
	repo := new(MockExamRepository)
	repo.On("CodeInUse", mock.Anything, mock.AnythingOfType("string")).Return(true, nil).Once()
	repo.On("CodeInUse", mock.Anything, mock.AnythingOfType("string")).Return(false, nil).Once()
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Exam")).Return(nil)

	svc := NewExamService(repo, zap.NewNop().Sugar())

	exam, err := svc.CreateExam(context.Background(), ports.CreateExamInput{Title: "Exam", Duration: 30})
	require.NoError(t, err)
	assert.Len(t, exam.RoomCode, 6)
	repo.AssertExpectations(t)
}

func TestUpdateStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    domain.ExamStatus
		to      domain.ExamStatus
		allowed bool
	}{
		{"pending to active", domain.ExamStatusPending, domain.ExamStatusActive, true},
		{"pending to completed", domain.ExamStatusPending, domain.ExamStatusCompleted, true},
		{"active to completed", domain.ExamStatusActive, domain.ExamStatusCompleted, true},
		{"active to pending", domain.ExamStatusActive, domain.ExamStatusPending, false},
		{"completed to active", domain.ExamStatusCompleted, domain.ExamStatusActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockExamRepository)
			repo.On("GetByID", mock.Anything, "exam-1").Return(&domain.Exam{ID: "exam-1", Status: tt.from}, nil)
			if tt.allowed {
				repo.On("Update", mock.Anything, mock.AnythingOfType("*domain.Exam")).Return(nil)
			}

			svc := NewExamService(repo, zap.NewNop().Sugar())
			exam, err := svc.UpdateStatus(context.Background(), "exam-1", tt.to)

			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, exam.Status)
			} else {
				require.Error(t, err)
				assert.Equal(t, apperrors.ErrCodeConflict, apperrors.GetAppError(err).Code)
			}
		})
	}
}

func TestUpdateStatusUnknownStatus(t *testing.T) {
	svc := NewExamService(new(MockExamRepository), zap.NewNop().Sugar())

	_, err := svc.UpdateStatus(context.Background(), "exam-1", domain.ExamStatus("cancelled"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetAppError(err).Code)
}

func TestGetExamNotFound(t *testing.T) {
	repo := new(MockExamRepository)
	repo.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrExamNotFound)

	svc := NewExamService(repo, zap.NewNop().Sugar())

	_, err := svc.GetExam(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrExamNotFound)
}
