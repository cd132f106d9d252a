// Package auth - principal.go parses already-issued JWTs into the Principal
// consumed by the tenant-resolution middleware. Token issuance lives in the
// identity service; this backend only validates signatures and reads claims.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT claims structure issued by the identity service.
// OrganizationID is the principal's home tenant; it is the only source of
// tenant identity on authenticated routes. Client-supplied organization
// overrides are deliberately not honoured anywhere.
type Claims struct {
	UserID         int64    `json:"user_id"`
	OrganizationID int64    `json:"organization_id"`
	Scopes         []string `json:"scopes"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller attached to the request context.
type Principal struct {
	UserID         int64
	OrganizationID int64
	Scopes         []string
}

// IsPlatformAdmin reports whether this principal carries the platform
// operator capability.
func (p *Principal) IsPlatformAdmin() bool {
	return IsPlatformAdmin(p.Scopes)
}

var errInvalidToken = errors.New("invalid token")

// ParseToken validates the token signature against secret and returns the
// embedded principal. A valid token with a non-positive organization id is
// still returned; the tenant resolver treats that as a server defect, not a
// client error, so the distinction must survive parsing.
func ParseToken(tokenString, secret string) (*Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errInvalidToken
	}

	return &Principal{
		UserID:         claims.UserID,
		OrganizationID: claims.OrganizationID,
		Scopes:         claims.Scopes,
	}, nil
}
