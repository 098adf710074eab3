package auth

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the fields of an access token the client cares about.
type Claims struct {
	UserID    string
	TokenType string
	ExpiresAt time.Time // zero when the token carries no exp
}

// Expired reports whether the token is past its exp at now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// ParseClaims decodes the payload of a JWT without checking its signature.
// The client never holds the signing key; the backend stays the authority
// and the result is only used to skip a request that is bound to fail.
func ParseClaims(token string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("auth: parse token: %w", err)
	}

	var c Claims
	exp, err := mc.GetExpirationTime()
	if err != nil {
		return Claims{}, fmt.Errorf("auth: parse token: %w", err)
	}
	if exp != nil {
		c.ExpiresAt = exp.Time
	}

	switch v := mc["user_id"].(type) {
	case string:
		c.UserID = v
	case float64:
		c.UserID = strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		c.UserID = v.String()
	}
	if tt, ok := mc["token_type"].(string); ok {
		c.TokenType = tt
	}
	return c, nil
}
