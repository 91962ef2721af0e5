package auth

import "github.com/golang-jwt/jwt/v5"

const (
	// ScopeOracleVerify grants access to the off-chain verification endpoint.
	ScopeOracleVerify = "oracle:verify"
	// ScopePaymentsManage grants access to payment intent and task routes.
	ScopePaymentsManage = "payments:manage"
)

// OracleTokenPayload captures the data available when minting an oracle token.
type OracleTokenPayload struct {
	NodeID string
	Scopes []string
	JTI    string
}

// OracleClaims is the typed JWT presented by oracle nodes.
type OracleClaims struct {
	NodeID string   `json:"node_id"`
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token grants scope.
func (c *OracleClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
