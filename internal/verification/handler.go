package verification

import (
	"context"
	"fmt"

	"github.com/unitpay/unitpay-gateway/pkg/logger"
	"github.com/unitpay/unitpay-gateway/pkg/oracle"
	"github.com/unitpay/unitpay-gateway/pkg/types"
)

// Verifier decides whether a payment described by req actually happened.
type Verifier interface {
	Verify(ctx context.Context, req Request) (bool, error)
}

// AlwaysVerified accepts every well-formed request. It is the only verifier
// until a payment provider check is wired in.
type AlwaysVerified struct{}

func (AlwaysVerified) Verify(context.Context, Request) (bool, error) {
	return true, nil
}

// Handler turns verification requests into the 32-byte word returned to the oracle.
type Handler struct {
	verifier Verifier
	logg     *logger.Logger
}

func NewHandler(verifier Verifier, logg *logger.Logger) (*Handler, error) {
	if verifier == nil {
		return nil, fmt.Errorf("verifier required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Handler{verifier: verifier, logg: logg}, nil
}

// HandleArgs parses positional arguments and verifies them.
func (h *Handler) HandleArgs(ctx context.Context, args []string) (types.Bytes32, error) {
	req, err := ParseArgs(args)
	if err != nil {
		return types.Bytes32{}, err
	}
	return h.Handle(ctx, *req)
}

// Handle runs the verifier and encodes its verdict.
func (h *Handler) Handle(ctx context.Context, req Request) (types.Bytes32, error) {
	verified, err := h.verifier.Verify(ctx, req)
	if err != nil {
		return types.Bytes32{}, err
	}

	ctx = h.logg.WithFields(ctx, map[string]any{
		"order_id": req.OrderID,
		"amount":   req.Amount,
		"verified": verified,
	})
	h.logg.Info(ctx, "payment verification evaluated")
	return oracle.EncodeResult(verified), nil
}
