package tasks

import (
	"context"
	stdErrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/unitpay/unitpay-gateway/pkg/db/models"
	"github.com/unitpay/unitpay-gateway/pkg/enums"
	"github.com/unitpay/unitpay-gateway/pkg/types"
	"gorm.io/gorm"
)

// claimAttempts bounds how often ClaimNext retries when another worker wins the race.
const claimAttempts = 3

// ListFilter narrows List results.
type ListFilter struct {
	Status *enums.TaskStatus
	Type   *enums.TaskType
	Limit  int
}

// Repository manages persistence for tasks. Every state change is a
// conditional update guarded by the expected current status.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	List(ctx context.Context, filter ListFilter) ([]models.Task, error)
	ListProcessing(ctx context.Context, limit int) ([]models.Task, error)
	HasActive(ctx context.Context, taskType enums.TaskType, reference string) (bool, error)
	CountFailed(ctx context.Context, reference string, taskTypes []enums.TaskType) (int64, error)
	ClaimNext(ctx context.Context, taskTypes []enums.TaskType, now time.Time) (*models.Task, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, result types.JSONDocument, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error)
	Requeue(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a task repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Task, error) {
	query := r.db.WithContext(ctx).Model(&models.Task{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var tasks []models.Task
	if err := query.Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *repository) ListProcessing(ctx context.Context, limit int) ([]models.Task, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.TaskStatusProcessing).
		Order("started_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var tasks []models.Task
	if err := query.Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *repository) HasActive(ctx context.Context, taskType enums.TaskType, reference string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("type = ? AND reference = ? AND status IN ?", taskType, reference,
			[]enums.TaskStatus{enums.TaskStatusPending, enums.TaskStatusProcessing}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) CountFailed(ctx context.Context, reference string, taskTypes []enums.TaskType) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("reference = ? AND status = ?", reference, enums.TaskStatusFailed)
	if len(taskTypes) > 0 {
		query = query.Where("type IN ?", taskTypes)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ClaimNext moves the oldest pending task to processing. It returns
// gorm.ErrRecordNotFound when nothing is claimable.
func (r *repository) ClaimNext(ctx context.Context, taskTypes []enums.TaskType, now time.Time) (*models.Task, error) {
	for attempt := 0; attempt < claimAttempts; attempt++ {
		query := r.db.WithContext(ctx).
			Where("status = ?", enums.TaskStatusPending).
			Order("created_at ASC")
		if len(taskTypes) > 0 {
			query = query.Where("type IN ?", taskTypes)
		}
		var candidate models.Task
		if err := query.First(&candidate).Error; err != nil {
			return nil, err
		}

		res := r.db.WithContext(ctx).
			Model(&models.Task{}).
			Where("id = ? AND status = ?", candidate.ID, enums.TaskStatusPending).
			Updates(map[string]any{
				"status":     enums.TaskStatusProcessing,
				"started_at": now,
				"ended_at":   nil,
				"updated_at": now,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			candidate.Status = enums.TaskStatusProcessing
			candidate.StartedAt = &now
			candidate.EndedAt = nil
			return &candidate, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *repository) MarkCompleted(ctx context.Context, id uuid.UUID, result types.JSONDocument, now time.Time) (bool, error) {
	return r.updateFromProcessing(ctx, id, map[string]any{
		"status":     enums.TaskStatusCompleted,
		"result":     result,
		"error":      nil,
		"ended_at":   now,
		"updated_at": now,
	})
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error) {
	return r.updateFromProcessing(ctx, id, map[string]any{
		"status":     enums.TaskStatusFailed,
		"error":      reason,
		"ended_at":   now,
		"updated_at": now,
	})
}

// Requeue returns a processing task to pending, consuming one retry. It
// refuses once retry_count has reached max_retries.
func (r *repository) Requeue(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND status = ? AND retry_count < max_retries", id, enums.TaskStatusProcessing).
		Updates(map[string]any{
			"status":      enums.TaskStatusPending,
			"retry_count": gorm.Expr("retry_count + 1"),
			"error":       reason,
			"started_at":  nil,
			"updated_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) updateFromProcessing(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND status = ?", id, enums.TaskStatusProcessing).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func isNotFound(err error) bool {
	return stdErrors.Is(err, gorm.ErrRecordNotFound)
}
