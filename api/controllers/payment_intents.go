package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/unitpay/unitpay-gateway/api/responses"
	"github.com/unitpay/unitpay-gateway/api/validators"
	"github.com/unitpay/unitpay-gateway/internal/paymentintents"
	"github.com/unitpay/unitpay-gateway/pkg/db/models"
	"github.com/unitpay/unitpay-gateway/pkg/enums"
	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
	maxReasonLength  = 500
)

// SettlementScheduler queues settlement work for an intent.
type SettlementScheduler interface {
	EnqueueSettlement(ctx context.Context, paymentIntentID uuid.UUID) (*models.Task, error)
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type attachPaymentIDRequest struct {
	BlockchainPaymentID string `json:"blockchain_payment_id" validate:"required,bytes32hex"`
}

func CreatePaymentIntent(svc paymentintents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment intent service unavailable"))
			return
		}

		var input paymentintents.CreateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPaymentIntentDTO(intent))
	}
}

func GetPaymentIntent(svc paymentintents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment intent service unavailable"))
			return
		}

		id, err := validators.ParseUUID("id", chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentIntentDTO(intent))
	}
}

// GetPaymentIntentByBlockchainID resolves an intent from its on-chain payment id.
func GetPaymentIntentByBlockchainID(svc paymentintents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment intent service unavailable"))
			return
		}

		intent, err := svc.FindByBlockchainPaymentID(r.Context(), chi.URLParam(r, "paymentId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentIntentDTO(intent))
	}
}

func ListPaymentIntents(svc paymentintents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment intent service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", defaultPageLimit, 1, maxPageLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := paymentintents.ListFilter{Limit: limit}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParsePaymentIntentStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Status = &status
		}

		intents, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]paymentIntentDTO, 0, len(intents))
		for i := range intents {
			out = append(out, newPaymentIntentDTO(&intents[i]))
		}
		responses.WriteList(w, out, len(out), limit)
	}
}

func TransitionPaymentIntent(svc paymentintents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment intent service unavailable"))
			return
		}

		id, err := validators.ParseUUID("id", chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req transitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := enums.ParsePaymentIntentStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
				WithDetails(map[string]any{"status": req.Status}))
			return
		}

		intent, err := svc.Transition(r.Context(), id, to, validators.SanitizeString(req.Reason, maxReasonLength))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentIntentDTO(intent))
	}
}

func AttachBlockchainPaymentID(svc paymentintents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment intent service unavailable"))
			return
		}

		id, err := validators.ParseUUID("id", chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req attachPaymentIDRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := svc.AttachBlockchainPaymentID(r.Context(), id, req.BlockchainPaymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentIntentDTO(intent))
	}
}

// SettlePaymentIntent queues a settlement task for the intent and returns 202.
func SettlePaymentIntent(svc paymentintents.Service, scheduler SettlementScheduler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || scheduler == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement unavailable"))
			return
		}

		id, err := validators.ParseUUID("id", chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if intent.Status.IsTerminal() || intent.Status == enums.PaymentIntentStatusCompleted {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeStateConflict, "payment intent already settled").
				WithDetails(map[string]any{"status": intent.Status}))
			return
		}

		task, err := scheduler.EnqueueSettlement(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, newTaskDTO(task))
	}
}
