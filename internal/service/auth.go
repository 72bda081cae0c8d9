package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jack/golang-shortlink-service/internal/config"
)

var (
	ErrInvalidAPIKey = errors.New("invalid api key")
	ErrInvalidToken  = errors.New("invalid or expired token")
)

// Claims are the claims carried by issued bearer tokens.
type Claims struct {
	jwt.RegisteredClaims
	ClientID string `json:"client_id"`
}

// AuthService exchanges configured API keys for short-lived HS256 bearer
// tokens and validates them on incoming requests.
type AuthService struct {
	secret   []byte
	tokenTTL time.Duration
	apiKeys  map[string]string
}

func NewAuthService(cfg *config.AuthConfig) *AuthService {
	return &AuthService{
		secret:   []byte(cfg.JWTSecret),
		tokenTTL: cfg.TokenTTL,
		apiKeys:  cfg.APIKeys,
	}
}

// IssueToken validates the API key and returns a signed token for its client.
func (a *AuthService) IssueToken(apiKey string) (string, time.Time, error) {
	clientID, ok := a.apiKeys[apiKey]
	if !ok {
		return "", time.Time{}, ErrInvalidAPIKey
	}

	now := time.Now()
	expiresAt := now.Add(a.tokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		ClientID: clientID,
	})

	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// ValidateToken parses and verifies a bearer token, returning its claims.
func (a *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
