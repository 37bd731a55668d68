package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Token kinds. A user token identifies a display or lobby client; a
// controller token binds a phone to one room.
const (
	KindUser       = "user"
	KindController = "controller"
)

// Claims is the signed payload carried by every client.
type Claims struct {
	UserID string `json:"userId"`
	Kind   string `json:"type"`
	RoomID string `json:"roomId,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and verifies the HS256 tokens used by the HTTP and socket
// surfaces.
type Service struct {
	secret []byte
	ttl    time.Duration
}

// NewService creates a token service. ttl bounds how long issued tokens
// stay valid.
func NewService(secret string, ttl time.Duration) *Service {
	return &Service{secret: []byte(secret), ttl: ttl}
}

// GenerateUserToken issues a token for a lobby or display client.
func (s *Service) GenerateUserToken(userID string) (string, error) {
	return s.sign(Claims{
		UserID: userID,
		Kind:   KindUser,
	})
}

// GenerateControllerToken issues a token binding a phone controller to a
// room.
func (s *Service) GenerateControllerToken(userID, roomID string) (string, error) {
	return s.sign(Claims{
		UserID: userID,
		Kind:   KindController,
		RoomID: roomID,
	})
}

func (s *Service) sign(claims Claims) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token string.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	if claims.Kind != KindUser && claims.Kind != KindController {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidToken, claims.Kind)
	}
	return claims, nil
}
