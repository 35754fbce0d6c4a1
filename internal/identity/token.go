package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sandeepkv93/remindd/internal/apperr"
)

var ErrMissingEmail = errors.New("identity: token has no email claim")

type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 session tokens and yields the identity they carry.
type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *TokenVerifier) Verify(token string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", apperr.Wrap(apperr.KindPermission, "verify token", err)
	}
	email := Normalize(claims.Email)
	if email == "" {
		return "", apperr.Wrap(apperr.KindValidation, "verify token", ErrMissingEmail)
	}
	return email, nil
}

func (v *TokenVerifier) Issue(email string, claims jwt.RegisteredClaims) (string, error) {
	if v.issuer != "" && claims.Issuer == "" {
		claims.Issuer = v.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Email: Normalize(email), RegisteredClaims: claims})
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// SignInWithToken verifies token and switches the session to its identity.
func (s *Session) SignInWithToken(v *TokenVerifier, token string) (string, error) {
	id, err := v.Verify(token)
	if err != nil {
		return "", err
	}
	s.SignIn(id)
	return id, nil
}
