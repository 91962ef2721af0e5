package paymentintents

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/unitpay/unitpay-gateway/pkg/db"
	"github.com/unitpay/unitpay-gateway/pkg/db/models"
	"github.com/unitpay/unitpay-gateway/pkg/enums"
	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
	"github.com/unitpay/unitpay-gateway/pkg/validation"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Service defines operations on payment intents.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.PaymentIntent, error)
	Get(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	List(ctx context.Context, filter ListFilter) ([]models.PaymentIntent, error)
	ListStale(ctx context.Context, status enums.PaymentIntentStatus, olderThan time.Duration, limit int) ([]models.PaymentIntent, error)
	Transition(ctx context.Context, id uuid.UUID, to enums.PaymentIntentStatus, reason string) (*models.PaymentIntent, error)
	AttachBlockchainPaymentID(ctx context.Context, id uuid.UUID, paymentID string) (*models.PaymentIntent, error)
	FindByBlockchainPaymentID(ctx context.Context, paymentID string) (*models.PaymentIntent, error)
}

// CreateInput captures the data a new payment intent requires.
type CreateInput struct {
	OrderID           string `json:"order_id" validate:"required,max=64"`
	Amount            string `json:"amount" validate:"required,positive_decimal"`
	Currency          string `json:"currency" validate:"omitempty,len=3"`
	MerchantEmail     string `json:"merchant_email" validate:"required,email,max=255"`
	CounterpartyEmail string `json:"counterparty_email" validate:"required,email,max=255"`
}

type ServiceParams struct {
	Repo   Repository
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

// NewService wires a payment intent service with the provided repository.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payment intent repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{repo: params.Repo, logg: params.Logger, now: now}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.PaymentIntent, error) {
	input.OrderID = strings.TrimSpace(input.OrderID)
	input.MerchantEmail = strings.TrimSpace(input.MerchantEmail)
	input.CounterpartyEmail = strings.TrimSpace(input.CounterpartyEmail)
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(input.Amount))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "USD"
	}

	intent := &models.PaymentIntent{
		Status:            enums.PaymentIntentStatusCreated,
		Amount:            amount,
		Currency:          currency,
		OrderID:           input.OrderID,
		MerchantEmail:     input.MerchantEmail,
		CounterpartyEmail: input.CounterpartyEmail,
	}
	if err := s.repo.Create(ctx, intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	ctx = s.logg.WithPaymentIntentID(ctx, intent.ID.String())
	s.logg.Info(ctx, "payment intent created")
	return intent, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	intent, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err, "load payment intent")
	}
	return intent, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.PaymentIntent, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter").
			WithDetails(map[string]any{"status": *filter.Status})
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}
	intents, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment intents")
	}
	return intents, nil
}

func (s *service) ListStale(ctx context.Context, status enums.PaymentIntentStatus, olderThan time.Duration, limit int) ([]models.PaymentIntent, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
	}
	intents, err := s.repo.ListStale(ctx, status, s.now().Add(-olderThan), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale payment intents")
	}
	return intents, nil
}

// Transition moves the intent forward. Re-applying the current status is a no-op.
func (s *service) Transition(ctx context.Context, id uuid.UUID, to enums.PaymentIntentStatus, reason string) (*models.PaymentIntent, error) {
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment intent status").
			WithDetails(map[string]any{"status": to})
	}
	intent, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if intent.Status == to {
		return intent, nil
	}
	if !intent.Status.CanTransitionTo(to) {
		return nil, stateConflict(intent.Status, to)
	}

	var failureReason *string
	if to == enums.PaymentIntentStatusFailed {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			reason = "unspecified"
		}
		failureReason = &reason
	}

	applied, err := s.repo.UpdateStatus(ctx, id, intent.Status, to, failureReason)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment intent status")
	}
	if !applied {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status == to {
			return current, nil
		}
		return nil, stateConflict(current.Status, to)
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"payment_intent_id": id.String(),
		"from_status":       intent.Status,
		"to_status":         to,
	})
	s.logg.Info(ctx, "payment intent transitioned")

	intent.Status = to
	intent.FailureReason = failureReason
	return intent, nil
}

func (s *service) AttachBlockchainPaymentID(ctx context.Context, id uuid.UUID, paymentID string) (*models.PaymentIntent, error) {
	paymentID = strings.ToLower(strings.TrimSpace(paymentID))
	if err := validation.Var("blockchain_payment_id", paymentID, "required,bytes32hex"); err != nil {
		return nil, err
	}

	intent, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if intent.BlockchainPaymentID != nil {
		if *intent.BlockchainPaymentID == paymentID {
			return intent, nil
		}
		return nil, immutableIDConflict(*intent.BlockchainPaymentID)
	}

	applied, err := s.repo.SetBlockchainPaymentID(ctx, id, paymentID)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "blockchain payment id already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach blockchain payment id")
	}
	if !applied {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.BlockchainPaymentID != nil && *current.BlockchainPaymentID == paymentID {
			return current, nil
		}
		existing := ""
		if current.BlockchainPaymentID != nil {
			existing = *current.BlockchainPaymentID
		}
		return nil, immutableIDConflict(existing)
	}

	ctx = s.logg.WithPaymentIntentID(ctx, id.String())
	ctx = s.logg.WithField(ctx, "blockchain_payment_id", paymentID)
	s.logg.Info(ctx, "blockchain payment id attached")

	intent.BlockchainPaymentID = &paymentID
	return intent, nil
}

func (s *service) FindByBlockchainPaymentID(ctx context.Context, paymentID string) (*models.PaymentIntent, error) {
	paymentID = strings.ToLower(strings.TrimSpace(paymentID))
	if err := validation.Var("blockchain_payment_id", paymentID, "required,bytes32hex"); err != nil {
		return nil, err
	}
	intent, err := s.repo.FindByBlockchainPaymentID(ctx, paymentID)
	if err != nil {
		return nil, mapLookupError(err, "load payment intent by blockchain payment id")
	}
	return intent, nil
}

func mapLookupError(err error, message string) error {
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "payment intent not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

func stateConflict(from, to enums.PaymentIntentStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "payment intent status transition not allowed").
		WithDetails(map[string]any{"from": from, "to": to})
}

func immutableIDConflict(existing string) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "blockchain payment id already set").
		WithDetails(map[string]any{"blockchain_payment_id": existing})
}
