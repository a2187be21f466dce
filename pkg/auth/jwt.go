package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carry the participant a token was issued to.
type Claims struct {
	jwt.RegisteredClaims
	ParticipantID   uuid.UUID `json:"pid"`
	ParticipantType string    `json:"ptype"`
}

type JWTService interface {
	GenerateAccessToken(participantID uuid.UUID, participantType string) (string, error)
	ValidateToken(token string) (*Claims, error)
}

type jwtService struct {
	secret []byte
	issuer string
	expiry time.Duration
}

// NewJWTService signs and verifies HS256 tokens. Issuing exists for tooling
// and tests; the login flow lives elsewhere.
func NewJWTService(secret, issuer string, expiry time.Duration) JWTService {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &jwtService{secret: []byte(secret), issuer: issuer, expiry: expiry}
}

func (s *jwtService) GenerateAccessToken(participantID uuid.UUID, participantType string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   participantID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		ParticipantID:   participantID,
		ParticipantType: participantType,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *jwtService) ValidateToken(token string) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.ParticipantID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
