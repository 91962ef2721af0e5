package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/unitpay/unitpay-gateway/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// MintOracleToken issues a signed JWT for an oracle node using the configured TTL.
func MintOracleToken(cfg config.OracleConfig, now time.Time, payload OracleTokenPayload) (string, error) {
	if cfg.JWTSecret == "" {
		return "", fmt.Errorf("oracle jwt secret is required")
	}
	if cfg.JWTIssuer == "" {
		return "", fmt.Errorf("oracle jwt issuer is required")
	}
	if cfg.TokenTTL() <= 0 {
		return "", fmt.Errorf("oracle token ttl must be positive")
	}
	nodeID := strings.TrimSpace(payload.NodeID)
	if nodeID == "" {
		return "", fmt.Errorf("node id is required")
	}
	scopes := payload.Scopes
	if len(scopes) == 0 {
		scopes = []string{ScopeOracleVerify}
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	claims := OracleClaims{
		NodeID: nodeID,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.JWTIssuer,
			Subject:   nodeID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL())),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseOracleToken validates the JWT string and returns typed claims.
func ParseOracleToken(cfg config.OracleConfig, tokenString string) (*OracleClaims, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("oracle jwt secret is required")
	}

	claims := &OracleClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.JWTIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
