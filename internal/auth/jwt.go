// Package auth verifies the bearer tokens that scope every call to one
// association. Tokens are issued by the member portal with a shared HS256
// secret; Generate exists for tooling and tests.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("authorization token required")
)

// JWTManager handles JWT token generation and validation.
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
}

// Claims are the custom JWT claims of an association session. Subject holds
// the portal user.
type Claims struct {
	AssociationID int64  `json:"association_id"`
	Name          string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// NewJWTManager creates a JWT manager with the shared secret and the
// lifetime of generated tokens.
func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
	}
}

// Generate creates a token for a portal user acting for an association.
func (m *JWTManager) Generate(subject string, associationID int64, name string) (string, error) {
	if associationID <= 0 {
		return "", fmt.Errorf("invalid association id %d", associationID)
	}
	now := time.Now()
	claims := &Claims{
		AssociationID: associationID,
		Name:          name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// Validate parses and validates a token. A valid token must name an
// association.
func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secretKey, nil
		},
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.AssociationID <= 0 {
		return nil, fmt.Errorf("%w: no association in token", ErrInvalidToken)
	}

	return claims, nil
}

// String identifies the session in logs.
func (c *Claims) String() string {
	return c.Subject + "@" + strconv.FormatInt(c.AssociationID, 10)
}
