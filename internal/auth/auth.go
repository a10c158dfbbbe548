package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var signingMethod = jwt.SigningMethodHS256

// Actor is the authenticated caller of an operation
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Claims are the identity claims issued by the session provider
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Actor converts verified claims into a caller identity
func (c *Claims) Actor() Actor {
	role := c.Role
	if role == "" {
		role = RoleUser
	}
	return Actor{UserID: c.UserID, Role: role}
}

// Verifier validates access tokens signed with the shared HMAC secret
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer}, nil
}

// Parse validates the token string and returns its claims
func (v *Verifier) Parse(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{signingMethod.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims.UserID == "" {
		return nil, errors.New("invalid token: missing user_id claim")
	}
	if claims.Role != "" && claims.Role != RoleUser && claims.Role != RoleAdmin {
		return nil, fmt.Errorf("invalid token: unknown role %q", claims.Role)
	}

	return claims, nil
}

// Mint signs a token for the actor. The identity provider mints production
// tokens; this is used by tests and local tooling.
func (v *Verifier) Mint(actor Actor, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: actor.UserID,
		Role:   actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
