package devbackend

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token scopes. A primary token unlocks /users/me and the exchange; an
// application token is what a launched application receives.
const (
	scopePrimary     = "primary"
	scopeApplication = "application"
)

var errInvalidToken = errors.New("invalid token")

// claims are the HS256 claims of every token this backend issues.
type claims struct {
	jwt.RegisteredClaims
	Scope       string `json:"scope"`
	Application string `json:"app,omitempty"`
}

type signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (s signer) sign(subject, scope, application string) (string, error) {
	now := s.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Scope:       scope,
		Application: application,
	})
	out, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return out, nil
}

// parse verifies raw and returns its claims. wantScope may be empty to accept any.
func (s signer) parse(raw, wantScope string) (*claims, error) {
	c := &claims{}
	tok, err := jwt.ParseWithClaims(raw, c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidToken, err)
	}
	if !tok.Valid {
		return nil, errInvalidToken
	}
	if wantScope != "" && c.Scope != wantScope {
		return nil, fmt.Errorf("%w: scope %q", errInvalidToken, c.Scope)
	}
	return c, nil
}
