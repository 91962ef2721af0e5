package tasks

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/unitpay/unitpay-gateway/pkg/db/models"
	"github.com/unitpay/unitpay-gateway/pkg/enums"
	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
	"github.com/unitpay/unitpay-gateway/pkg/metrics"
)

const defaultPollInterval = time.Second

// Handler executes one attempt of a task. The returned result is stored on
// completion; errors are classified with pkg/errors codes.
type Handler interface {
	Handle(ctx context.Context, task *models.Task) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task *models.Task) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, task *models.Task) (any, error) {
	return f(ctx, task)
}

// FailureHandler is implemented by handlers that clean up after their task
// is abandoned, either on a non-retryable error or once retries run out.
type FailureHandler interface {
	OnFailed(ctx context.Context, task *models.Task)
}

// Observer is notified after every task state change made by the processor.
type Observer interface {
	TaskUpdated(ctx context.Context, task *models.Task)
}

type ProcessorParams struct {
	Service      Service
	Logger       *logger.Logger
	Metrics      *metrics.TaskMetrics
	PollInterval time.Duration
	Observer     Observer
}

// Processor claims pending tasks one at a time and dispatches them to the
// handler registered for their type.
type Processor struct {
	svc      Service
	logg     *logger.Logger
	metrics  *metrics.TaskMetrics
	interval time.Duration
	observer Observer
	handlers map[enums.TaskType]Handler
}

func NewProcessor(params ProcessorParams) (*Processor, error) {
	if params.Service == nil {
		return nil, fmt.Errorf("task service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	interval := params.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Processor{
		svc:      params.Service,
		logg:     params.Logger,
		metrics:  params.Metrics,
		interval: interval,
		observer: params.Observer,
		handlers: map[enums.TaskType]Handler{},
	}, nil
}

// Register binds handler to taskType. Only registered types are claimed.
func (p *Processor) Register(taskType enums.TaskType, handler Handler) {
	if handler == nil {
		return
	}
	p.handlers[taskType] = handler
}

// Run polls until ctx is canceled, draining the queue on every tick.
func (p *Processor) Run(ctx context.Context) error {
	if len(p.handlers) == 0 {
		return fmt.Errorf("no task handlers registered")
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logg.Info(ctx, "task processor started")
	for {
		p.drain(ctx)
		select {
		case <-ctx.Done():
			p.logg.Info(ctx, "task processor stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Processor) drain(ctx context.Context) {
	for ctx.Err() == nil {
		processed, err := p.ProcessNext(ctx)
		if err != nil {
			p.logg.Error(ctx, "task processing failed", err)
			return
		}
		if !processed {
			return
		}
	}
}

// ProcessNext claims and runs a single task. It reports false when the queue is empty.
func (p *Processor) ProcessNext(ctx context.Context) (bool, error) {
	task, err := p.svc.Claim(ctx, p.registeredTypes()...)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	taskCtx := p.logg.WithTaskID(ctx, task.ID.String())
	taskCtx = p.logg.WithFields(taskCtx, map[string]any{
		"task_type":   task.Type,
		"retry_count": task.RetryCount,
	})
	p.notify(taskCtx, task)

	handler, ok := p.handlers[task.Type]
	if !ok {
		updated, err := p.svc.Fail(taskCtx, task.ID, fmt.Sprintf("no handler registered for %s", task.Type))
		p.notify(taskCtx, updated)
		return true, err
	}

	start := time.Now()
	result, attemptErr := p.attempt(taskCtx, handler, task)
	elapsed := time.Since(start)

	var (
		updated *models.Task
		outcome string
	)
	switch {
	case attemptErr == nil:
		outcome = metrics.OutcomeCompleted
		updated, err = p.svc.Complete(taskCtx, task.ID, result)
	case isTimeout(attemptErr):
		outcome = metrics.OutcomeTimedOut
		p.logg.Warn(taskCtx, "task attempt timed out")
		updated, err = p.svc.Retry(taskCtx, task.ID, TimeoutReason)
	case pkgerrors.IsRetryable(attemptErr):
		outcome = metrics.OutcomeRetried
		p.logg.Error(taskCtx, "task attempt failed; retrying", attemptErr)
		updated, err = p.svc.Retry(taskCtx, task.ID, attemptErr.Error())
	default:
		outcome = metrics.OutcomeFailed
		p.logg.Error(taskCtx, "task attempt failed", attemptErr)
		updated, err = p.svc.Fail(taskCtx, task.ID, attemptErr.Error())
	}
	if updated != nil && outcome == metrics.OutcomeRetried && updated.Status == enums.TaskStatusFailed {
		outcome = metrics.OutcomeFailed
	}
	p.metrics.ObserveAttempt(string(task.Type), outcome, elapsed)
	p.notify(taskCtx, updated)
	if updated != nil && updated.Status == enums.TaskStatusFailed {
		if fh, ok := handler.(FailureHandler); ok {
			fh.OnFailed(context.WithoutCancel(taskCtx), updated)
		}
	}
	return true, err
}

// attempt runs the handler under the task's processing timeout and converts
// panics into internal errors.
func (p *Processor) attempt(ctx context.Context, handler Handler, task *models.Task) (result any, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, task.ProcessingTimeout())
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("task handler panic: %v", r))
		}
	}()

	result, err = handler.Handle(attemptCtx, task)
	if err == nil && attemptCtx.Err() != nil && stdErrors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		err = pkgerrors.Wrap(pkgerrors.CodeTimeout, attemptCtx.Err(), "task exceeded processing timeout")
	}
	if err != nil && stdErrors.Is(err, context.DeadlineExceeded) && !pkgerrors.IsCode(err, pkgerrors.CodeTimeout) {
		err = pkgerrors.Wrap(pkgerrors.CodeTimeout, err, "task exceeded processing timeout")
	}
	return result, err
}

func (p *Processor) registeredTypes() []enums.TaskType {
	types := make([]enums.TaskType, 0, len(p.handlers))
	for taskType := range p.handlers {
		types = append(types, taskType)
	}
	return types
}

func (p *Processor) notify(ctx context.Context, task *models.Task) {
	if p.observer == nil || task == nil {
		return
	}
	p.observer.TaskUpdated(ctx, task)
}

func isTimeout(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeTimeout)
}
