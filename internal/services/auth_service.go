package services

import (
	"context"
	"time"

	dealroom_errors "dealroom/pkg/errors"
	"dealroom/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthService verifies bearer tokens issued by the marketplace. The subject
// claim carries the participant id.
type AuthService struct {
	jwtSecret []byte
}

func NewAuthService(secret string) *AuthService {
	return &AuthService{jwtSecret: []byte(secret)}
}

type AccessClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (s *AuthService) ParseAccessToken(tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, dealroom_errors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, dealroom_errors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return AccessClaims{}, dealroom_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return AccessClaims{}, dealroom_errors.ErrUnauthorized
	}
	return *claims, nil
}

// Authenticate returns the participant id carried by a valid token.
func (s *AuthService) Authenticate(tokenString string) (uuid.UUID, error) {
	claims, err := s.ParseAccessToken(tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, dealroom_errors.ErrUnauthorized
	}
	return id, nil
}

// IssueToken signs a token for participantID. Production tokens come from
// the marketplace; this is used by the dev seed and tests.
func (s *AuthService) IssueToken(participantID uuid.UUID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   participantID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

type ctxKey string

const participantIDKey ctxKey = "participant_id"

// WithParticipantContext stores the authenticated participant and tags the
// request logger with it.
func WithParticipantContext(ctx context.Context, participantID uuid.UUID) context.Context {
	ctx = context.WithValue(ctx, participantIDKey, participantID)
	return context.WithValue(ctx, logger.ParticipantIdKey, participantID.String())
}

func ParticipantIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(participantIDKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}
