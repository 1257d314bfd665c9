package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token roles
const (
	RoleOutput   = "output"
	RoleOperator = "operator"
)

const (
	outputTokenTTL   = 30 * 24 * time.Hour
	operatorTokenTTL = 7 * 24 * time.Hour
)

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	OutputID   string `json:"output_id,omitempty"`
	OperatorID string `json:"operator_id,omitempty"`
	Role       string `json:"role"` // "output" or "operator"
	jwt.RegisteredClaims
}

// Issuer signs and validates HS256 tokens with a shared secret
type Issuer struct {
	secret []byte
}

// NewIssuer creates an issuer for secret
func NewIssuer(secret string) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret cannot be empty")
	}
	return &Issuer{secret: []byte(secret)}, nil
}

// GenerateOutputToken generates a JWT token for an audio output
func (i *Issuer) GenerateOutputToken(outputID string) (string, time.Time, error) {
	if outputID == "" {
		return "", time.Time{}, errors.New("output ID cannot be empty")
	}

	expiresAt := time.Now().Add(outputTokenTTL)
	token, err := i.sign(&JWTClaims{
		OutputID: outputID,
		Role:     RoleOutput,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	return token, expiresAt, err
}

// GenerateOperatorToken generates a JWT token for the control API
func (i *Issuer) GenerateOperatorToken(operatorID string) (string, time.Time, error) {
	if operatorID == "" {
		return "", time.Time{}, errors.New("operator ID cannot be empty")
	}

	expiresAt := time.Now().Add(operatorTokenTTL)
	token, err := i.sign(&JWTClaims{
		OperatorID: operatorID,
		Role:       RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	return token, expiresAt, err
}

func (i *Issuer) sign(claims *JWTClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates a JWT token and returns the claims
func (i *Issuer) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrInvalidKey
}
