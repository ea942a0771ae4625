package memory

import (
	"context"
	"sort"
	"sync"

	"examcast/internal/core/domain"
	"examcast/internal/core/ports"
)

type ExamRepository struct {
	mu    sync.RWMutex
	exams map[string]*domain.Exam
}

func NewExamRepository() ports.ExamRepository {
	return &ExamRepository{
		exams: make(map[string]*domain.Exam),
	}
}

func (r *ExamRepository) Create(ctx context.Context, exam *domain.Exam) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *exam
	r.exams[exam.ID] = &copied
	return nil
}

func (r *ExamRepository) GetByID(ctx context.Context, id string) (*domain.Exam, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exam, ok := r.exams[id]
	if !ok {
		return nil, domain.ErrExamNotFound
	}
	copied := *exam
	return &copied, nil
}

func (r *ExamRepository) List(ctx context.Context) ([]*domain.Exam, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exams := make([]*domain.Exam, 0, len(r.exams))
	for _, exam := range r.exams {
		copied := *exam
		exams = append(exams, &copied)
	}
	sort.Slice(exams, func(i, j int) bool {
		return exams[i].CreatedAt.Before(exams[j].CreatedAt)
	})
	return exams, nil
}

func (r *ExamRepository) Update(ctx context.Context, exam *domain.Exam) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.exams[exam.ID]; !ok {
		return domain.ErrExamNotFound
	}
	copied := *exam
	r.exams[exam.ID] = &copied
	return nil
}

func (r *ExamRepository) CodeInUse(ctx context.Context, code string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, exam := range r.exams {
		if exam.RoomCode == code {
			return true, nil
		}
	}
	return false, nil
}
