package controllers

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/unitpay/unitpay-gateway/pkg/db/models"
	"github.com/unitpay/unitpay-gateway/pkg/enums"
)

type paymentIntentDTO struct {
	ID                  uuid.UUID                 `json:"id"`
	Status              enums.PaymentIntentStatus `json:"status"`
	Amount              string                    `json:"amount"`
	Currency            string                    `json:"currency"`
	OrderID             string                    `json:"order_id"`
	MerchantEmail       string                    `json:"merchant_email"`
	CounterpartyEmail   string                    `json:"counterparty_email"`
	BlockchainPaymentID *string                   `json:"blockchain_payment_id"`
	FailureReason       *string                   `json:"failure_reason,omitempty"`
	CreatedAt           time.Time                 `json:"created_at"`
	UpdatedAt           time.Time                 `json:"updated_at"`
}

func newPaymentIntentDTO(intent *models.PaymentIntent) paymentIntentDTO {
	return paymentIntentDTO{
		ID:                  intent.ID,
		Status:              intent.Status,
		Amount:              intent.Amount.String(),
		Currency:            intent.Currency,
		OrderID:             intent.OrderID,
		MerchantEmail:       intent.MerchantEmail,
		CounterpartyEmail:   intent.CounterpartyEmail,
		BlockchainPaymentID: intent.BlockchainPaymentID,
		FailureReason:       intent.FailureReason,
		CreatedAt:           intent.CreatedAt,
		UpdatedAt:           intent.UpdatedAt,
	}
}

type taskDTO struct {
	ID                  uuid.UUID        `json:"id"`
	Status              enums.TaskStatus `json:"status"`
	Type                enums.TaskType   `json:"type"`
	Reference           *string          `json:"reference,omitempty"`
	Data                json.RawMessage  `json:"data,omitempty"`
	Result              json.RawMessage  `json:"result,omitempty"`
	Error               *string          `json:"error,omitempty"`
	StartedAt           *time.Time       `json:"started_at,omitempty"`
	EndedAt             *time.Time       `json:"ended_at,omitempty"`
	RetryCount          int              `json:"retry_count"`
	MaxRetries          int              `json:"max_retries"`
	ProcessingTimeoutMS int              `json:"processing_timeout_ms"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

func newTaskDTO(task *models.Task) taskDTO {
	dto := taskDTO{
		ID:                  task.ID,
		Status:              task.Status,
		Type:                task.Type,
		Reference:           task.Reference,
		Error:               task.Error,
		StartedAt:           task.StartedAt,
		EndedAt:             task.EndedAt,
		RetryCount:          task.RetryCount,
		MaxRetries:          task.MaxRetries,
		ProcessingTimeoutMS: task.ProcessingTimeoutMS,
		CreatedAt:           task.CreatedAt,
		UpdatedAt:           task.UpdatedAt,
	}
	if !task.Data.IsEmpty() {
		dto.Data = json.RawMessage(task.Data)
	}
	if !task.Result.IsEmpty() {
		dto.Result = json.RawMessage(task.Result)
	}
	return dto
}
