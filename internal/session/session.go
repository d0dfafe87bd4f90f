// Package session resolves the identity behind a request. The notes core
// never reads request state itself; it receives the *Identity produced here
// as an explicit argument.
package session

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Vr3n/crown-vitality-research/internal/utils"
)

// ErrInvalidToken is returned for a bearer token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the signed-in user.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Gate looks up the current identity. It returns (nil, nil) when the
// request carries no session at all.
type Gate interface {
	Identify(r *http.Request) (*Identity, error)
}

// JWTGate reads an HS256 bearer access token from the Authorization header.
type JWTGate struct {
	secret string
}

func NewJWTGate(secret string) *JWTGate { return &JWTGate{secret: secret} }

func (g *JWTGate) Identify(r *http.Request) (*Identity, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return nil, nil
	}
	raw, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || raw == "" {
		return nil, ErrInvalidToken
	}
	claims, err := utils.ParseAccessToken(g.secret, raw)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Identity{ID: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}
