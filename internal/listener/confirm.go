package listener

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/unitpay/unitpay-gateway/internal/paymentintents"
	"github.com/unitpay/unitpay-gateway/internal/settlement"
	"github.com/unitpay/unitpay-gateway/internal/tasks"
	"github.com/unitpay/unitpay-gateway/pkg/db/models"
	"github.com/unitpay/unitpay-gateway/pkg/enums"
	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
	"github.com/unitpay/unitpay-gateway/pkg/types"
)

// Awaiter blocks until a payment is confirmed on-chain.
type Awaiter interface {
	AwaitConfirmation(ctx context.Context, paymentID types.Bytes32, fromBlock uint64) (*Confirmation, error)
}

// Notifier surfaces confirmations to the payment UI.
type Notifier interface {
	PaymentConfirmed(ctx context.Context, intent *models.PaymentIntent, confirmation Confirmation)
	RefreshTaskPool(ctx context.Context)
}

type ConfirmerParams struct {
	Awaiter  Awaiter
	Intents  paymentintents.Service
	Notifier Notifier
	Logger   *logger.Logger
}

// Confirmer completes processing intents once their confirmation event arrives.
type Confirmer struct {
	awaiter  Awaiter
	intents  paymentintents.Service
	notifier Notifier
	logg     *logger.Logger
}

func NewConfirmer(params ConfirmerParams) (*Confirmer, error) {
	if params.Awaiter == nil {
		return nil, fmt.Errorf("confirmation awaiter required")
	}
	if params.Intents == nil {
		return nil, fmt.Errorf("payment intent service required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Confirmer{
		awaiter:  params.Awaiter,
		intents:  params.Intents,
		notifier: params.Notifier,
		logg:     params.Logger,
	}, nil
}

// Confirm waits for the intent's PaymentConfirmed event, looking back to
// fromBlock, marks the intent completed and notifies the UI. Already
// completed intents return immediately.
func (c *Confirmer) Confirm(ctx context.Context, paymentIntentID uuid.UUID, fromBlock uint64) (*models.PaymentIntent, error) {
	intent, err := c.intents.Get(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	ctx = c.logg.WithPaymentIntentID(ctx, intent.ID.String())

	switch {
	case intent.Status == enums.PaymentIntentStatusCompleted:
		return intent, nil
	case intent.Status != enums.PaymentIntentStatusProcessing:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment intent is not awaiting confirmation").
			WithDetails(map[string]any{"status": intent.Status})
	case intent.BlockchainPaymentID == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent has no blockchain payment id")
	}

	paymentID, err := types.ParseBytes32(*intent.BlockchainPaymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored blockchain payment id is malformed")
	}

	confirmation, err := c.awaiter.AwaitConfirmation(ctx, paymentID, fromBlock)
	if err != nil {
		return nil, err
	}

	updated, err := c.intents.Transition(ctx, intent.ID, enums.PaymentIntentStatusCompleted, "")
	if err != nil {
		return nil, err
	}

	ctx = c.logg.WithFields(ctx, map[string]any{"tx_hash": confirmation.TxHash, "is_auto": confirmation.IsAuto})
	c.logg.Info(ctx, "payment intent confirmed")

	c.notifier.PaymentConfirmed(ctx, updated, *confirmation)
	c.notifier.RefreshTaskPool(ctx)
	return updated, nil
}

// TaskHandler runs Confirm for payment_confirmation tasks.
func (c *Confirmer) TaskHandler() tasks.Handler {
	return tasks.HandlerFunc(func(ctx context.Context, task *models.Task) (any, error) {
		payload, err := settlement.DecodeTaskPayload(task)
		if err != nil {
			return nil, err
		}
		intent, err := c.Confirm(ctx, payload.PaymentIntentID, payload.FromBlock)
		if err != nil {
			return nil, err
		}
		return map[string]any{"payment_intent_id": intent.ID, "status": intent.Status}, nil
	})
}
