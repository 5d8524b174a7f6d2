// Package authstub is a development stand-in for the SAIL auth API. It
// issues and checks JWTs the way the real backend does so the gateway can
// run without it.
package authstub

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenManager handles issuing and validating JWT tokens.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	if accessTTL <= 0 {
		accessTTL = 5 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

// Claims describes JWT payload.
type Claims struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role,omitempty"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair is what login and registration hand out.
type TokenPair struct {
	Access  string
	Refresh string
}

// IssuePair signs an access and a refresh token for the account.
func (tm *TokenManager) IssuePair(userID, role string) (TokenPair, error) {
	access, err := tm.issue(TokenTypeAccess, userID, role, tm.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := tm.issue(TokenTypeRefresh, userID, "", tm.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// IssueAccess signs a fresh access token.
func (tm *TokenManager) IssueAccess(userID, role string) (string, error) {
	return tm.issue(TokenTypeAccess, userID, role, tm.accessTTL)
}

func (tm *TokenManager) issue(tokenType TokenType, userID, role string, ttl time.Duration) (string, error) {
	now := tm.now()
	claims := &Claims{
		UserID:    userID,
		Role:      role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// ParseToken validates the token and its type and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string, expected TokenType) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return tm.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.TokenType != expected {
		return nil, errors.New("token_type mismatch")
	}
	if claims.UserID == "" {
		return nil, errors.New("user_id missing")
	}
	return claims, nil
}
