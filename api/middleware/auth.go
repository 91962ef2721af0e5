package middleware

import (
	"net/http"
	"strings"

	"github.com/unitpay/unitpay-gateway/api/responses"
	pkgAuth "github.com/unitpay/unitpay-gateway/pkg/auth"
	"github.com/unitpay/unitpay-gateway/pkg/config"
	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
)

// TokenAuth validates an HS256 bearer token minted with the oracle secret,
// requires scope and seeds the request context with the node id.
func TokenAuth(cfg config.OracleConfig, scope string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseOracleToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.NodeID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing node id"))
				return
			}
			if scope != "" && !claims.HasScope(scope) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "token lacks scope "+scope))
				return
			}

			ctx := WithNodeID(r.Context(), claims.NodeID)
			if logg != nil {
				ctx = logg.WithField(ctx, "node_id", claims.NodeID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
