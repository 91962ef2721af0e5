package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/unitpay/unitpay-gateway/pkg/db/models"
	"github.com/unitpay/unitpay-gateway/pkg/enums"
	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
	"github.com/unitpay/unitpay-gateway/pkg/metrics"
	"github.com/unitpay/unitpay-gateway/pkg/types"
	"go.uber.org/multierr"
)

// TimeoutReason is the error recorded when an attempt outlives its processing timeout.
const TimeoutReason = "timeout"

const (
	defaultListLimit   = 50
	maxListLimit       = 200
	expireBatchSize    = 100
	unknownErrorReason = "unknown error"

	// expireGrace delays the sweep past the processor's own attempt deadline
	// so a live worker records its timeout before the sweep requeues.
	expireGrace = 10 * time.Second
)

// Service defines task lifecycle operations.
type Service interface {
	Enqueue(ctx context.Context, input EnqueueInput) (*models.Task, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Task, error)
	List(ctx context.Context, filter ListFilter) ([]models.Task, error)
	HasActive(ctx context.Context, taskType enums.TaskType, reference string) (bool, error)
	CountFailed(ctx context.Context, reference string, taskTypes ...enums.TaskType) (int64, error)
	Claim(ctx context.Context, taskTypes ...enums.TaskType) (*models.Task, error)
	Complete(ctx context.Context, id uuid.UUID, result any) (*models.Task, error)
	Fail(ctx context.Context, id uuid.UUID, reason string) (*models.Task, error)
	Retry(ctx context.Context, id uuid.UUID, reason string) (*models.Task, error)
	ExpireTimedOut(ctx context.Context) (ExpireResult, error)
}

// EnqueueInput describes a new task. Zero values fall back to the service defaults.
type EnqueueInput struct {
	Type                enums.TaskType
	Reference           string
	Data                any
	MaxRetries          *int
	ProcessingTimeoutMS int
}

// ExpireResult summarises a timeout sweep.
type ExpireResult struct {
	Requeued int
	Failed   int
}

type ServiceParams struct {
	Repo                       Repository
	Logger                     *logger.Logger
	Metrics                    *metrics.TaskMetrics
	DefaultMaxRetries          int
	DefaultProcessingTimeoutMS int
	Now                        func() time.Time
}

type service struct {
	repo              Repository
	logg              *logger.Logger
	metrics           *metrics.TaskMetrics
	defaultMaxRetries int
	defaultTimeoutMS  int
	now               func() time.Time
}

// NewService wires the task service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("task repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DefaultMaxRetries < 0 {
		return nil, fmt.Errorf("default max retries must not be negative")
	}
	timeoutMS := params.DefaultProcessingTimeoutMS
	if timeoutMS <= 0 {
		timeoutMS = models.DefaultProcessingTimeoutMS
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:              params.Repo,
		logg:              params.Logger,
		metrics:           params.Metrics,
		defaultMaxRetries: params.DefaultMaxRetries,
		defaultTimeoutMS:  timeoutMS,
		now:               now,
	}, nil
}

func (s *service) Enqueue(ctx context.Context, input EnqueueInput) (*models.Task, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid task type").
			WithDetails(map[string]any{"type": input.Type})
	}
	maxRetries := s.defaultMaxRetries
	if input.MaxRetries != nil {
		if *input.MaxRetries < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "max retries must not be negative")
		}
		maxRetries = *input.MaxRetries
	}
	timeoutMS := input.ProcessingTimeoutMS
	if timeoutMS <= 0 {
		timeoutMS = s.defaultTimeoutMS
	}
	data, err := types.NewJSONDocument(input.Data)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "task data must be json encodable")
	}

	task := &models.Task{
		Status:              enums.TaskStatusPending,
		Type:                input.Type,
		Data:                data,
		MaxRetries:          maxRetries,
		ProcessingTimeoutMS: timeoutMS,
	}
	if ref := strings.TrimSpace(input.Reference); ref != "" {
		task.Reference = &ref
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue task")
	}

	ctx = s.logg.WithTaskID(ctx, task.ID.String())
	ctx = s.logg.WithField(ctx, "task_type", task.Type)
	s.logg.Info(ctx, "task enqueued")
	return task, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "task id is required")
	}
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "task not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load task")
	}
	return task, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.Task, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	if filter.Type != nil && !filter.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid type filter")
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}
	tasks, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tasks")
	}
	return tasks, nil
}

func (s *service) HasActive(ctx context.Context, taskType enums.TaskType, reference string) (bool, error) {
	active, err := s.repo.HasActive(ctx, taskType, reference)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check active tasks")
	}
	return active, nil
}

// CountFailed counts failed tasks for reference, optionally limited to taskTypes.
func (s *service) CountFailed(ctx context.Context, reference string, taskTypes ...enums.TaskType) (int64, error) {
	count, err := s.repo.CountFailed(ctx, reference, taskTypes)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count failed tasks")
	}
	return count, nil
}

// Claim returns nil without error when no pending task is available.
func (s *service) Claim(ctx context.Context, taskTypes ...enums.TaskType) (*models.Task, error) {
	task, err := s.repo.ClaimNext(ctx, taskTypes, s.now())
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim task")
	}
	s.metrics.IncClaimed(string(task.Type))
	return task, nil
}

func (s *service) Complete(ctx context.Context, id uuid.UUID, result any) (*models.Task, error) {
	doc, err := types.NewJSONDocument(result)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "task result must be json encodable")
	}
	applied, err := s.repo.MarkCompleted(ctx, id, doc, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete task")
	}
	return s.afterUpdate(ctx, id, applied, enums.TaskStatusCompleted)
}

func (s *service) Fail(ctx context.Context, id uuid.UUID, reason string) (*models.Task, error) {
	applied, err := s.repo.MarkFailed(ctx, id, normalizeReason(reason), s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail task")
	}
	return s.afterUpdate(ctx, id, applied, enums.TaskStatusFailed)
}

// Retry requeues the task while retries remain and fails it otherwise.
func (s *service) Retry(ctx context.Context, id uuid.UUID, reason string) (*models.Task, error) {
	reason = normalizeReason(reason)
	applied, err := s.repo.Requeue(ctx, id, reason, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "requeue task")
	}
	if applied {
		return s.afterUpdate(ctx, id, true, enums.TaskStatusPending)
	}
	return s.Fail(ctx, id, reason)
}

// ExpireTimedOut requeues or fails processing tasks whose attempt outlived
// ProcessingTimeoutMS by more than expireGrace. Per-task errors are aggregated.
func (s *service) ExpireTimedOut(ctx context.Context) (ExpireResult, error) {
	var result ExpireResult
	processing, err := s.repo.ListProcessing(ctx, expireBatchSize)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list processing tasks")
	}

	now := s.now()
	var errs error
	for _, task := range processing {
		if task.StartedAt == nil || now.Before(task.StartedAt.Add(task.ProcessingTimeout() + expireGrace)) {
			continue
		}
		updated, err := s.Retry(ctx, task.ID, TimeoutReason)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("task %s: %w", task.ID, err))
			continue
		}
		s.metrics.IncOutcome(string(task.Type), metrics.OutcomeTimedOut)
		if updated.Status == enums.TaskStatusPending {
			result.Requeued++
		} else {
			result.Failed++
		}
	}
	return result, errs
}

// afterUpdate reloads the task. A conditional update that matched no row
// means the task left processing concurrently.
func (s *service) afterUpdate(ctx context.Context, id uuid.UUID, applied bool, want enums.TaskStatus) (*models.Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "task is not processing").
			WithDetails(map[string]any{"status": task.Status, "wanted": want})
	}

	ctx = s.logg.WithTaskID(ctx, id.String())
	ctx = s.logg.WithFields(ctx, map[string]any{
		"task_type":   task.Type,
		"status":      task.Status,
		"retry_count": task.RetryCount,
	})
	if task.Status == enums.TaskStatusFailed {
		s.logg.Warn(ctx, "task failed")
	} else {
		s.logg.Info(ctx, "task updated")
	}
	return task, nil
}

func normalizeReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return unknownErrorReason
	}
	return reason
}
