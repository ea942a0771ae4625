package services

import (
	"errors"
	"fmt"
	"time"

	apperrors "examcast/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims carried by exam-API access tokens.
type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService issues and validates exam-API access tokens. Participant
// signaling is deliberately unauthenticated; only exam management uses this.
type AuthService interface {
	GenerateToken(name, role string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

type authService struct {
	secret   []byte
	tokenTTL time.Duration
}

func NewAuthService(secret string, tokenTTL time.Duration) AuthService {
	return &authService{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

func (s *authService) GenerateToken(name, role string) (string, error) {
	claims := &Claims{
		Name: name,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.NewUnauthorizedError("token expired")
		}
		return nil, apperrors.NewUnauthorizedError("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperrors.NewUnauthorizedError("invalid token claims")
	}
	return claims, nil
}
