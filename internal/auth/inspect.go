package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenInfo is what the health report may reveal about a delegated token.
// The token itself is never included.
type TokenInfo struct {
	Format    string     `json:"format"`
	Subject   string     `json:"subject,omitempty"`
	Issuer    string     `json:"issuer,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Expired   bool       `json:"expired,omitempty"`
}

// Inspect decodes the claims of a JWT without verifying its signature. The
// token is only read for diagnostics; Databricks validates it on every call.
// Tokens that are not JWTs are reported as opaque.
func Inspect(token string, now time.Time) TokenInfo {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return TokenInfo{Format: "opaque"}
	}

	info := TokenInfo{
		Format:  "jwt",
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		expiresAt := claims.ExpiresAt.Time.UTC()
		info.ExpiresAt = &expiresAt
		info.Expired = now.After(expiresAt)
	}

	return info
}
