package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/unitpay/unitpay-gateway/pkg/db/models"
	"github.com/unitpay/unitpay-gateway/pkg/enums"
	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
	"go.uber.org/multierr"
)

// StaleIntentJobName identifies the stale intent sweep in logs and metrics.
const StaleIntentJobName = "stale-intent"

// AttemptsExhaustedReason is recorded on intents the sweep gives up on.
const AttemptsExhaustedReason = "settlement attempts exhausted"

const (
	defaultStaleIntentAge   = 30 * time.Minute
	defaultStaleIntentBatch = 100
	defaultMaxAttempts      = 3
)

var settlementTaskTypes = []enums.TaskType{enums.TaskTypePaymentSettlement, enums.TaskTypePaymentConfirmation}

type staleIntentStore interface {
	ListStale(ctx context.Context, status enums.PaymentIntentStatus, olderThan time.Duration, limit int) ([]models.PaymentIntent, error)
	Transition(ctx context.Context, id uuid.UUID, to enums.PaymentIntentStatus, reason string) (*models.PaymentIntent, error)
}

type settlementTaskChecker interface {
	HasActive(ctx context.Context, taskType enums.TaskType, reference string) (bool, error)
	CountFailed(ctx context.Context, reference string, taskTypes ...enums.TaskType) (int64, error)
}

type staleAction int

const (
	staleSkipped staleAction = iota
	staleRequeued
	staleAbandoned
)

type settlementEnqueuer interface {
	EnqueueSettlement(ctx context.Context, paymentIntentID uuid.UUID) (*models.Task, error)
}

// StaleIntentJobParams configure the stale intent sweep.
type StaleIntentJobParams struct {
	Logger      *logger.Logger
	Intents     staleIntentStore
	Tasks       settlementTaskChecker
	Scheduler   settlementEnqueuer
	MaxAge      time.Duration
	BatchSize   int
	// MaxAttempts bounds failed settlement and confirmation tasks per intent.
	MaxAttempts int
}

type staleIntentJob struct {
	logg        *logger.Logger
	intents     staleIntentStore
	tasks       settlementTaskChecker
	scheduler   settlementEnqueuer
	maxAge      time.Duration
	batchSize   int
	maxAttempts int64
}

// NewStaleIntentJob re-enqueues settlement for intents stuck in processing
// with no settlement or confirmation task in flight. Intents that already
// used up MaxAttempts failed tasks are failed instead.
func NewStaleIntentJob(params StaleIntentJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Intents == nil {
		return nil, fmt.Errorf("payment intent lister required")
	}
	if params.Tasks == nil {
		return nil, fmt.Errorf("task checker required")
	}
	if params.Scheduler == nil {
		return nil, fmt.Errorf("settlement scheduler required")
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = defaultStaleIntentAge
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultStaleIntentBatch
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &staleIntentJob{
		logg:        params.Logger,
		intents:     params.Intents,
		tasks:       params.Tasks,
		scheduler:   params.Scheduler,
		maxAge:      maxAge,
		batchSize:   batch,
		maxAttempts: int64(maxAttempts),
	}, nil
}

func (j *staleIntentJob) Name() string { return StaleIntentJobName }

func (j *staleIntentJob) Run(ctx context.Context) error {
	stale, err := j.intents.ListStale(ctx, enums.PaymentIntentStatusProcessing, j.maxAge, j.batchSize)
	if err != nil {
		return err
	}

	var (
		errs      error
		requeued  int
		abandoned int
	)
	for _, intent := range stale {
		action, err := j.handle(ctx, intent)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("payment intent %s: %w", intent.ID, err))
			continue
		}
		switch action {
		case staleRequeued:
			requeued++
		case staleAbandoned:
			abandoned++
		}
	}

	if requeued > 0 || abandoned > 0 {
		ctx = j.logg.WithFields(ctx, map[string]any{"requeued": requeued, "abandoned": abandoned, "scanned": len(stale)})
		j.logg.Info(ctx, "stale payment intents swept")
	}
	return errs
}

func (j *staleIntentJob) handle(ctx context.Context, intent models.PaymentIntent) (staleAction, error) {
	reference := intent.ID.String()
	for _, taskType := range settlementTaskTypes {
		active, err := j.tasks.HasActive(ctx, taskType, reference)
		if err != nil {
			return staleSkipped, err
		}
		if active {
			return staleSkipped, nil
		}
	}

	failed, err := j.tasks.CountFailed(ctx, reference, settlementTaskTypes...)
	if err != nil {
		return staleSkipped, err
	}
	if failed >= j.maxAttempts {
		if _, err := j.intents.Transition(ctx, intent.ID, enums.PaymentIntentStatusFailed, AttemptsExhaustedReason); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				return staleSkipped, nil
			}
			return staleSkipped, err
		}
		return staleAbandoned, nil
	}

	if _, err := j.scheduler.EnqueueSettlement(ctx, intent.ID); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			return staleSkipped, nil
		}
		return staleSkipped, err
	}
	return staleRequeued, nil
}
