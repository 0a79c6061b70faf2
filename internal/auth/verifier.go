package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/dojo/internal/errs"
)

const defaultLeeway = 30 * time.Second

var ErrMissingSecret = errors.New("auth: jwt secret is not configured")

// accessClaims mirrors the access tokens minted by the identity provider.
// The admin role lives in app_metadata, which users cannot edit themselves.
type accessClaims struct {
	Email       string `json:"email"`
	Role        string `json:"role"`
	AppMetadata struct {
		Role string `json:"role"`
	} `json:"app_metadata"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(strings.TrimSpace(secret)),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(defaultLeeway),
		),
	}
}

// Verify returns the principal carried by token. Every failure wraps
// errs.ErrUnauthenticated.
func (v *Verifier) Verify(token string) (Principal, error) {
	if len(v.secret) == 0 {
		return Principal{}, fmt.Errorf("%w: %w", errs.ErrUnauthenticated, ErrMissingSecret)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, errs.ErrUnauthenticated
	}

	var claims accessClaims
	_, err := v.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", errs.ErrUnauthenticated, err)
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Principal{}, fmt.Errorf("%w: token has no subject", errs.ErrUnauthenticated)
	}

	role := RoleUser
	if strings.EqualFold(strings.TrimSpace(claims.AppMetadata.Role), RoleAdmin) {
		role = RoleAdmin
	}
	return Principal{
		ID:    subject,
		Email: strings.TrimSpace(claims.Email),
		Role:  role,
	}, nil
}
