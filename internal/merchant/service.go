package merchant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/unitpay/unitpay-gateway/internal/paymentintents"
	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
)

// Info is the payload served by the merchant-info endpoint.
type Info struct {
	Email string `json:"email"`
}

// Service answers merchant-info lookups from the payment intent store.
type Service interface {
	MerchantInfo(ctx context.Context, paymentIntentID string) (*Info, error)
}

type service struct {
	intents paymentintents.Service
}

func NewService(intents paymentintents.Service) (Service, error) {
	if intents == nil {
		return nil, fmt.Errorf("payment intent service required")
	}
	return &service{intents: intents}, nil
}

func (s *service) MerchantInfo(ctx context.Context, paymentIntentID string) (*Info, error) {
	id, err := uuid.Parse(paymentIntentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment intent id")
	}
	intent, err := s.intents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if intent.MerchantEmail == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "merchant email not set")
	}
	return &Info{Email: intent.MerchantEmail}, nil
}
