package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/unitpay/unitpay-gateway/internal/tasks"
	"github.com/unitpay/unitpay-gateway/pkg/db/models"
	"github.com/unitpay/unitpay-gateway/pkg/enums"
	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
)

// TaskPayload is the data carried by settlement and confirmation tasks.
type TaskPayload struct {
	PaymentIntentID     uuid.UUID `json:"payment_intent_id"`
	BlockchainPaymentID string    `json:"blockchain_payment_id,omitempty"`
	FromBlock           uint64    `json:"from_block,omitempty"`
}

// SettlementFailedReason prefixes the failure reason of intents whose
// settlement task was abandoned.
const SettlementFailedReason = "settlement failed"

// DecodeTaskPayload reads a TaskPayload from task data.
func DecodeTaskPayload(task *models.Task) (TaskPayload, error) {
	var payload TaskPayload
	if task == nil {
		return payload, pkgerrors.New(pkgerrors.CodeValidation, "task required")
	}
	if err := task.Data.Decode(&payload); err != nil {
		return payload, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode task payload")
	}
	if payload.PaymentIntentID == uuid.Nil {
		return payload, pkgerrors.New(pkgerrors.CodeValidation, "task payload missing payment_intent_id")
	}
	return payload, nil
}

// Scheduler enqueues settlement work for payment intents.
type Scheduler struct {
	tasks tasks.Service
}

func NewScheduler(taskSvc tasks.Service) (*Scheduler, error) {
	if taskSvc == nil {
		return nil, fmt.Errorf("task service required")
	}
	return &Scheduler{tasks: taskSvc}, nil
}

// EnqueueSettlement queues a settlement task unless one is already pending or
// processing for the intent.
func (s *Scheduler) EnqueueSettlement(ctx context.Context, paymentIntentID uuid.UUID) (*models.Task, error) {
	return s.enqueueOnce(ctx, enums.TaskTypePaymentSettlement, TaskPayload{PaymentIntentID: paymentIntentID})
}

// EnqueueConfirmation queues a task that waits for the on-chain confirmation.
func (s *Scheduler) EnqueueConfirmation(ctx context.Context, payload TaskPayload) (*models.Task, error) {
	return s.enqueueOnce(ctx, enums.TaskTypePaymentConfirmation, payload)
}

func (s *Scheduler) enqueueOnce(ctx context.Context, taskType enums.TaskType, payload TaskPayload) (*models.Task, error) {
	if payload.PaymentIntentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	reference := payload.PaymentIntentID.String()
	active, err := s.tasks.HasActive(ctx, taskType, reference)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "task already queued for payment intent").
			WithDetails(map[string]any{"type": taskType, "payment_intent_id": reference})
	}
	return s.tasks.Enqueue(ctx, tasks.EnqueueInput{
		Type:      taskType,
		Reference: reference,
		Data:      payload,
	})
}

type taskHandler struct {
	bridge    *Bridge
	scheduler *Scheduler
}

// NewTaskHandler settles the intent named by a payment_settlement task and,
// once fulfilled, queues the matching confirmation task. When the task is
// abandoned the intent is failed so no sweep settles it again.
func NewTaskHandler(bridge *Bridge, scheduler *Scheduler) tasks.Handler {
	return &taskHandler{bridge: bridge, scheduler: scheduler}
}

func (h *taskHandler) Handle(ctx context.Context, task *models.Task) (any, error) {
	payload, err := DecodeTaskPayload(task)
	if err != nil {
		return nil, err
	}
	outcome, err := h.bridge.Settle(ctx, payload.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	if outcome.Status == enums.PaymentIntentStatusProcessing {
		_, err := h.scheduler.EnqueueConfirmation(ctx, TaskPayload{
			PaymentIntentID:     outcome.PaymentIntentID,
			BlockchainPaymentID: outcome.BlockchainPaymentID.Hex(),
			FromBlock:           outcome.FromBlock,
		})
		if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			return nil, err
		}
	}
	return outcome, nil
}

func (h *taskHandler) OnFailed(ctx context.Context, task *models.Task) {
	payload, err := DecodeTaskPayload(task)
	if err != nil {
		return
	}
	reason := SettlementFailedReason
	if task.Error != nil && *task.Error != "" {
		reason = fmt.Sprintf("%s: %s", SettlementFailedReason, *task.Error)
	}
	if err := h.bridge.Abandon(ctx, payload.PaymentIntentID, reason); err != nil {
		h.bridge.logg.Error(ctx, "failed to abandon payment intent", err)
	}
}
