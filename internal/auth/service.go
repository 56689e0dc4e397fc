package auth

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"convtrainer/internal/store"
)

// guestCookieName holds the opaque tag that keeps a guest recognizable
// across rooms. It is identity for roster display only; guests never
// persist scores.
const guestCookieName = "ct_guest"

const guestCookieMaxAge = 86400 * 7

// Service resolves Principals and owns token issuance. The session
// cookie itself is minted by the account system; this service only
// verifies its signature and looks the user up.
type Service struct {
	users      store.Users
	sessions   store.GameSessions
	cookieName string
	signingKey []byte
	log        *logrus.Entry

	// Token lifetimes; New sets the production defaults, config may
	// override them after construction.
	GameSessionTTL      time.Duration
	ParticipantTokenTTL time.Duration
}

func New(users store.Users, sessions store.GameSessions, cookieName string, signingKey []byte) *Service {
	return &Service{
		users:               users,
		sessions:            sessions,
		cookieName:          cookieName,
		signingKey:          signingKey,
		log:                 logrus.WithField("component", "auth"),
		GameSessionTTL:      2 * time.Hour,
		ParticipantTokenTTL: 4 * time.Hour,
	}
}

// Resolve reads the session cookie and returns the request identity.
// Anything short of a valid signed cookie naming a known user resolves
// to a guest; resolution never fails a request on its own.
func (s *Service) Resolve(r *http.Request) Principal {
	guest := Principal{Role: RoleGuest, GuestTag: guestTagFrom(r)}

	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return guest
	}
	claims, err := s.parseHS256(cookie.Value)
	if err != nil {
		s.log.WithError(err).Debug("Rejected session cookie")
		return guest
	}

	u, err := s.lookupUser(r, claims)
	if err != nil {
		s.log.WithError(err).Debug("Session cookie names no known user")
		return guest
	}
	role := RoleUser
	if u.Role == store.RoleAdmin {
		role = RoleAdmin
	}
	return Principal{UserID: u.ID, Name: u.Name, Role: role}
}

// lookupUser resolves the user row behind a set of session claims. The
// subject claim carries the user id; older cookies carry only an email.
func (s *Service) lookupUser(r *http.Request, claims jwt.MapClaims) (*store.User, error) {
	if id, ok := stringClaim(claims, "sub"); ok && id != "" {
		return s.users.GetUser(r.Context(), id)
	}
	if email, ok := stringClaim(claims, "email"); ok && email != "" {
		return s.users.FindUserByEmail(r.Context(), email)
	}
	return nil, ErrTokenInvalid
}

// Middleware resolves the principal once per request and stores it on
// the context for every handler below.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), s.Resolve(r))))
	})
}

// EnsureGuestTag returns the request's guest tag, minting and setting
// the cookie on first contact.
func EnsureGuestTag(w http.ResponseWriter, r *http.Request) string {
	if tag := guestTagFrom(r); tag != "" {
		return tag
	}

	b := make([]byte, 16)
	rand.Read(b)
	tag := hex.EncodeToString(b)

	http.SetCookie(w, &http.Cookie{
		Name:     guestCookieName,
		Value:    tag,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   guestCookieMaxAge,
	})
	return tag
}

func guestTagFrom(r *http.Request) string {
	if c, err := r.Cookie(guestCookieName); err == nil {
		return c.Value
	}
	return ""
}
