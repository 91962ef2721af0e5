package verification

import (
	"strings"

	"github.com/shopspring/decimal"
	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
	"github.com/unitpay/unitpay-gateway/pkg/validation"
)

// ArgCount is the number of positional arguments an oracle request carries.
const ArgCount = 4

// Request is one verification call, built from the oracle's positional
// arguments [orderId, merchantEmail, amount, counterpartyEmail].
type Request struct {
	OrderID           string `json:"order_id" validate:"required,max=64"`
	MerchantEmail     string `json:"merchant_email" validate:"required,email"`
	Amount            string `json:"amount" validate:"required,positive_decimal"`
	CounterpartyEmail string `json:"counterparty_email" validate:"required,email"`
}

// ParseArgs maps positional oracle arguments onto a validated Request.
func ParseArgs(args []string) (*Request, error) {
	if len(args) != ArgCount {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unexpected argument count").
			WithDetails(map[string]any{"expected": ArgCount, "got": len(args)})
	}
	req := &Request{
		OrderID:           strings.TrimSpace(args[0]),
		MerchantEmail:     strings.TrimSpace(args[1]),
		Amount:            strings.TrimSpace(args[2]),
		CounterpartyEmail: strings.TrimSpace(args[3]),
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	return req, nil
}

// AmountDecimal returns the parsed amount. Requests from ParseArgs always parse.
func (r Request) AmountDecimal() decimal.Decimal {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return decimal.Zero
	}
	return amount
}
