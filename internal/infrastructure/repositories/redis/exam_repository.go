package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"examcast/internal/core/domain"
	"examcast/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const (
	examKeyPrefix = "examcast:exam:"
	examIDsKey    = "examcast:exams"
	examCodesKey  = "examcast:exam:codes"
)

type ExamRepository struct {
	client *redis.Client
}

func NewExamRepository(client *redis.Client) ports.ExamRepository {
	return &ExamRepository{client: client}
}

func examKey(id string) string {
	return examKeyPrefix + id
}

func (r *ExamRepository) Create(ctx context.Context, exam *domain.Exam) error {
	data, err := json.Marshal(exam)
	if err != nil {
		return fmt.Errorf("failed to marshal exam: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, examKey(exam.ID), data, 0)
	pipe.SAdd(ctx, examIDsKey, exam.ID)
	pipe.SAdd(ctx, examCodesKey, exam.RoomCode)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store exam in Redis: %w", err)
	}
	return nil
}

func (r *ExamRepository) GetByID(ctx context.Context, id string) (*domain.Exam, error) {
	data, err := r.client.Get(ctx, examKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exam from Redis: %w", err)
	}

	var exam domain.Exam
	if err := json.Unmarshal([]byte(data), &exam); err != nil {
		return nil, fmt.Errorf("failed to unmarshal exam: %w", err)
	}
	return &exam, nil
}

func (r *ExamRepository) List(ctx context.Context) ([]*domain.Exam, error) {
	ids, err := r.client.SMembers(ctx, examIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list exam ids: %w", err)
	}

	exams := make([]*domain.Exam, 0, len(ids))
	for _, id := range ids {
		exam, err := r.GetByID(ctx, id)
		if err == domain.ErrExamNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		exams = append(exams, exam)
	}
	sort.Slice(exams, func(i, j int) bool {
		return exams[i].CreatedAt.Before(exams[j].CreatedAt)
	})
	return exams, nil
}

func (r *ExamRepository) Update(ctx context.Context, exam *domain.Exam) error {
	exists, err := r.client.Exists(ctx, examKey(exam.ID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check exam existence: %w", err)
	}
	if exists == 0 {
		return domain.ErrExamNotFound
	}

	data, err := json.Marshal(exam)
	if err != nil {
		return fmt.Errorf("failed to marshal exam: %w", err)
	}
	if err := r.client.Set(ctx, examKey(exam.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update exam in Redis: %w", err)
	}
	return nil
}

func (r *ExamRepository) CodeInUse(ctx context.Context, code string) (bool, error) {
	used, err := r.client.SIsMember(ctx, examCodesKey, code).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check room code: %w", err)
	}
	return used, nil
}
