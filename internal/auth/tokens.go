package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"convtrainer/internal/store"
)

// parseHS256 verifies an HS256 token against the signing key and
// returns its claims.
func (s *Service) parseHS256(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return claims, nil
}

func stringClaim(claims jwt.MapClaims, key string) (string, bool) {
	v, ok := claims[key].(string)
	return v, ok
}

// IssueParticipantToken mints the reconnect credential returned by room
// and tournament joins. The WS attach endpoint requires it, so a seat
// cannot be hijacked by guessing participant ids.
func (s *Service) IssueParticipantToken(roomID, participantID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"room": roomID,
		"pid":  participantID,
		"iat":  now.Unix(),
		"exp":  now.Add(s.ParticipantTokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign participant token: %w", err)
	}
	return token, nil
}

// VerifyParticipantToken checks a reconnect token against the room and
// participant the caller wants to attach as.
func (s *Service) VerifyParticipantToken(token, roomID, participantID string) error {
	claims, err := s.parseHS256(token)
	if err != nil {
		return err
	}
	room, _ := stringClaim(claims, "room")
	pid, _ := stringClaim(claims, "pid")
	if room != roomID || pid != participantID {
		return ErrTokenMismatch
	}
	return nil
}

// IssueGameSession mints a single-use score submission token for an
// authenticated user and persists it. Guests are refused; their scores
// are never recorded.
func (s *Service) IssueGameSession(ctx context.Context, p Principal, roomID, mode, conv string) (string, error) {
	if !p.IsUser() {
		return "", ErrGuestsCannotScore
	}
	sessionID := newSessionID()
	now := time.Now().UTC()
	err := s.sessions.InsertGameSession(ctx, store.GameSession{
		SessionID: sessionID,
		UserID:    p.UserID,
		RoomID:    roomID,
		Mode:      mode,
		Conv:      conv,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.GameSessionTTL),
	})
	if err != nil {
		return "", fmt.Errorf("persist game session: %w", err)
	}
	return sessionID, nil
}

// newSessionID returns 128 bits of hex.
func newSessionID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
