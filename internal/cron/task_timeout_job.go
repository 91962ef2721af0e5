package cron

import (
	"context"
	"fmt"

	"github.com/unitpay/unitpay-gateway/internal/tasks"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
)

// TaskTimeoutJobName identifies the timeout sweep in logs and metrics.
const TaskTimeoutJobName = "task-timeout"

type taskExpirer interface {
	ExpireTimedOut(ctx context.Context) (tasks.ExpireResult, error)
}

type taskTimeoutJob struct {
	logg    *logger.Logger
	expirer taskExpirer
}

// NewTaskTimeoutJob requeues or fails tasks whose processing window elapsed.
func NewTaskTimeoutJob(logg *logger.Logger, expirer taskExpirer) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if expirer == nil {
		return nil, fmt.Errorf("task expirer required")
	}
	return &taskTimeoutJob{logg: logg, expirer: expirer}, nil
}

func (j *taskTimeoutJob) Name() string { return TaskTimeoutJobName }

func (j *taskTimeoutJob) Run(ctx context.Context) error {
	result, err := j.expirer.ExpireTimedOut(ctx)
	if result.Requeued > 0 || result.Failed > 0 {
		ctx = j.logg.WithFields(ctx, map[string]any{
			"requeued": result.Requeued,
			"failed":   result.Failed,
		})
		j.logg.Info(ctx, "timed out tasks expired")
	}
	return err
}
