package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coinrush/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrExpiredToken = errors.New("session token expired")
)

const sessionMaxAge = 24 * time.Hour

type sessionClaims struct {
	DisplayName string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// SessionService issues and verifies the gateway's session tokens. A token's
// subject is the participant id.
type SessionService struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

func NewSessionService(secret string) *SessionService {
	return &SessionService{
		secret: []byte(secret),
		maxAge: sessionMaxAge,
		now:    time.Now,
	}
}

// Issue creates a new participant id and a token for it.
func (s *SessionService) Issue(displayName string) (token, uid string, err error) {
	uid = uuid.NewString()
	now := s.now()
	claims := sessionClaims{
		DisplayName: strings.TrimSpace(displayName),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.maxAge)),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign session token: %w", err)
	}
	return token, uid, nil
}

func (s *SessionService) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Identity is who this participant is for the lifetime of the process.
type Identity struct {
	UID   string
	Token string
	Guest bool
}

// SessionOpener is the part of the gateway client identity needs.
type SessionOpener interface {
	OpenSession(ctx context.Context, displayName string) (store.SessionGrant, error)
}

// GuestIdentity returns a locally generated id. Guests can play offline only.
func GuestIdentity() Identity {
	return Identity{UID: "guest-" + uuid.NewString()[:8], Guest: true}
}

// AuthenticateOrGuest asks the gateway for a session and falls back to a guest
// identity when it cannot be reached, so local play is never blocked.
func AuthenticateOrGuest(ctx context.Context, opener SessionOpener, displayName string) Identity {
	if opener == nil {
		return GuestIdentity()
	}
	grant, err := opener.OpenSession(ctx, displayName)
	if err != nil {
		id := GuestIdentity()
		log.Warn().Err(err).Str("uid", id.UID).Msg("gateway unreachable, continuing as guest")
		return id
	}
	uid := grant.UID
	if uid == "" {
		uid = subjectOf(grant.Token)
	}
	if uid == "" {
		id := GuestIdentity()
		log.Warn().Str("uid", id.UID).Msg("session token carries no subject, continuing as guest")
		return id
	}
	return Identity{UID: uid, Token: grant.Token}
}

// subjectOf reads the subject of a token without verifying it. Only the gateway
// can verify; the client just needs its own id.
func subjectOf(token string) string {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return ""
	}
	return claims.Subject
}
