package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoCredential = errors.New("no valid credential available")

// TokenProvider yields a currently-valid bearer credential. Token refresh and
// expiry handling live entirely behind this interface.
type TokenProvider interface {
	ValidToken() (string, error)
}

type staticProvider struct {
	token string
}

// NewStaticProvider wraps a fixed token, e.g. one passed on the command line.
func NewStaticProvider(token string) TokenProvider {
	return &staticProvider{token: token}
}

func (p *staticProvider) ValidToken() (string, error) {
	if p.token == "" {
		return "", ErrNoCredential
	}

	return p.token, nil
}

// UserIdFromToken extracts the user_id claim from a bearer token without
// verifying the signature. Verification is the server's job; the client only
// needs to know who it is.
func UserIdFromToken(tokenString string) (string, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}

	userId, ok := claims["user_id"].(string)
	if !ok || userId == "" {
		return "", errors.New("token has no user_id claim")
	}

	return userId, nil
}
