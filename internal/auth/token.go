package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/conductor-oer/support-service/internal/domain"
)

// TokenManager validates platform-issued JWT tokens. Issuing lives in the
// central identity service; GenerateToken exists for local development and
// tests.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: time.Hour}
}

// Claims describes the JWT payload.
type Claims struct {
	SubjectUUID string             `json:"sub_uuid"`
	Subject     domain.SubjectType `json:"subject"`
	Role        *domain.StaffRole  `json:"role,omitempty"`
	FirstName   string             `json:"first_name,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken builds and signs a JWT for the subject.
func (tm *TokenManager) GenerateToken(subjectUUID string, subject domain.SubjectType, role *domain.StaffRole, firstName string) (string, error) {
	claims := &Claims{
		SubjectUUID: subjectUUID,
		Subject:     subject,
		Role:        role,
		FirstName:   firstName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectUUID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// ParseToken validates and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
