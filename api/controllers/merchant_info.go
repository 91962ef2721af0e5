package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unitpay/unitpay-gateway/api/responses"
	"github.com/unitpay/unitpay-gateway/internal/merchant"
	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
)

// MerchantInfo serves {data:{email}} for a payment intent. Failures use the
// bare {message} body the resolver reads back.
func MerchantInfo(svc merchant.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteMessage(w, http.StatusInternalServerError, "merchant service unavailable")
			return
		}

		id := chi.URLParam(r, "paymentIntentId")
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithPaymentIntentID(ctx, id)
		}

		info, err := svc.MerchantInfo(ctx, id)
		if err != nil {
			typed := pkgerrors.As(err)
			if typed == nil {
				typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "merchant info lookup failed")
			}
			meta := pkgerrors.MetadataFor(typed.Code())
			message := meta.PublicMessage
			if typed.Code() == pkgerrors.CodeNotFound {
				message = "not found"
			}
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "merchant_info.failed")
			}
			responses.WriteMessage(w, meta.HTTPStatus, message)
			return
		}
		responses.WriteSuccess(w, info)
	}
}
