package merchant

import (
	"context"
	"fmt"

	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
)

// UISignaler receives progress and error signals for the payment UI.
type UISignaler interface {
	ShowSpinner(ctx context.Context)
	HideSpinner(ctx context.Context)
	ShowError(ctx context.Context, message string)
}

// Resolver adapts a Lookuper for UI callers: it never returns an error and
// reports every failure through exactly one ShowError call.
type Resolver struct {
	lookup Lookuper
	ui     UISignaler
	logg   *logger.Logger
}

func NewResolver(lookup Lookuper, ui UISignaler, logg *logger.Logger) (*Resolver, error) {
	if lookup == nil {
		return nil, fmt.Errorf("merchant lookup required")
	}
	if ui == nil {
		return nil, fmt.Errorf("ui signaler required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Resolver{lookup: lookup, ui: ui, logg: logg}, nil
}

// FetchMerchantInfo returns the merchant email and true, or "" and false on any failure.
func (r *Resolver) FetchMerchantInfo(ctx context.Context, paymentIntentID string) (string, bool) {
	email, err := r.Lookup(ctx, paymentIntentID)
	if err != nil {
		return "", false
	}
	return email, true
}

// Lookup satisfies Lookuper so the resolver can stand in for a bare client.
// Failures are signaled to the UI and still returned to the caller.
func (r *Resolver) Lookup(ctx context.Context, paymentIntentID string) (string, error) {
	r.ui.ShowSpinner(ctx)
	defer r.ui.HideSpinner(ctx)

	email, err := r.lookup.Lookup(ctx, paymentIntentID)
	if err != nil {
		ctx = r.logg.WithPaymentIntentID(ctx, paymentIntentID)
		r.logg.Error(ctx, "fetch merchant info failed", err)
		r.ui.ShowError(ctx, userMessage(err))
		return "", err
	}
	return email, nil
}

func userMessage(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return "Unable to load merchant information."
	}
	if details, ok := typed.Details().(map[string]any); ok {
		if msg, ok := details["message"].(string); ok && msg != "" {
			return fmt.Sprintf("%s: %s", typed.Message(), msg)
		}
	}
	return typed.Message()
}

// LogSignaler writes UI signals to the structured log. Used by headless workers.
type LogSignaler struct {
	Logger *logger.Logger
}

func (s LogSignaler) ShowSpinner(ctx context.Context) {
	s.Logger.Debug(s.Logger.WithField(ctx, "ui", "spinner.show"), "ui signal")
}

func (s LogSignaler) HideSpinner(ctx context.Context) {
	s.Logger.Debug(s.Logger.WithField(ctx, "ui", "spinner.hide"), "ui signal")
}

func (s LogSignaler) ShowError(ctx context.Context, message string) {
	ctx = s.Logger.WithFields(ctx, map[string]any{"ui": "error", "ui_message": message})
	s.Logger.Warn(ctx, "ui signal")
}
