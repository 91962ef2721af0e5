package controllers

import (
	"context"
	"net/http"

	"github.com/unitpay/unitpay-gateway/api/responses"
	"github.com/unitpay/unitpay-gateway/api/validators"
	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
	"github.com/unitpay/unitpay-gateway/pkg/oracle"
	"github.com/unitpay/unitpay-gateway/pkg/types"
)

// ArgsVerifier turns positional oracle arguments into the 32-byte result word.
type ArgsVerifier interface {
	HandleArgs(ctx context.Context, args []string) (types.Bytes32, error)
}

type verifyRequest struct {
	Args []string `json:"args" validate:"required"`
}

type verifyResponse struct {
	Result   types.Bytes32 `json:"result"`
	Verified bool          `json:"verified"`
}

// OracleVerify is the oracle source endpoint.
func OracleVerify(handler ArgsVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if handler == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "verification handler unavailable"))
			return
		}

		var req verifyRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		word, err := handler.HandleArgs(r.Context(), req.Args)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		verified, err := oracle.DecodeResult(word[:])
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode verification result"))
			return
		}
		responses.WriteSuccess(w, verifyResponse{Result: word, Verified: verified})
	}
}
