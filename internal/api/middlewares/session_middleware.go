package middleware

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/markdave123-py/kbchat/internal/core"
	"github.com/markdave123-py/kbchat/internal/models"
)

const CookieName = "kbchat_session"

type ctxKey int

const sessionKey ctxKey = iota

// SessionFromContext returns the session loaded for this request.
func SessionFromContext(ctx context.Context) (*models.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*models.Session)
	return s, ok
}

// WithSession attaches s to ctx. Handlers normally get it from Sessions.
func WithSession(ctx context.Context, s *models.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Sessions resolves the browser's session from a signed cookie, creating a
// fresh one when the cookie is missing, invalid, or points at a session the
// store no longer has. The cookie has no Max-Age, so it dies with the
// browser session. The token inside expires after maxAge without activity:
// a cookie older than a quarter of maxAge is re-signed on use.
type Sessions struct {
	store   core.SessionStore
	secret  []byte
	modelID string
	maxAge  time.Duration
	secure  bool
	now     func() time.Time
}

// NewSessions builds the session middleware. maxAge <= 0 issues tokens that
// never expire.
func NewSessions(store core.SessionStore, secret []byte, modelID string, maxAge time.Duration, secure bool) *Sessions {
	return &Sessions{store: store, secret: secret, modelID: modelID, maxAge: maxAge, secure: secure, now: time.Now}
}

func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if claims, fromCookie, ok := s.claimsFromRequest(r); ok {
			sess, err := s.store.Get(ctx, claims.SessionID)
			if err == nil {
				if fromCookie && s.stale(claims) {
					if _, err := s.Issue(w, sess.ID); err != nil {
						log.Printf("refresh session cookie: %v", err)
					}
				}
				next.ServeHTTP(w, r.WithContext(WithSession(ctx, sess)))
				return
			}
			if !errors.Is(err, core.ErrSessionNotFound) {
				log.Printf("load session %s: %v", claims.SessionID, err)
				http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
				return
			}
		}

		sess, err := s.store.Create(ctx, s.modelID)
		if err != nil {
			log.Printf("create session: %v", err)
			http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
			return
		}
		if _, err := s.Issue(w, sess.ID); err != nil {
			log.Printf("sign session cookie: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(ctx, sess)))
	})
}

// Issue sets the session cookie for sessionID and returns the signed token,
// which API clients may send as a Bearer header instead.
func (s *Sessions) Issue(w http.ResponseWriter, sessionID string) (string, error) {
	token, err := s.sign(sessionID)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// Token signs sessionID without setting a cookie.
func (s *Sessions) Token(sessionID string) (string, error) {
	return s.sign(sessionID)
}

// SessionID validates token and returns the session id it carries.
func (s *Sessions) SessionID(token string) (string, bool) {
	claims, ok := s.parse(token)
	if !ok {
		return "", false
	}
	return claims.SessionID, true
}

// claimsFromRequest accepts the cookie, or a Bearer token carrying the same
// JWT for API clients.
func (s *Sessions) claimsFromRequest(r *http.Request) (*sessionClaims, bool, bool) {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		claims, ok := s.parse(c.Value)
		return claims, true, ok
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		claims, ok := s.parse(strings.TrimPrefix(auth, "Bearer "))
		return claims, false, ok
	}
	return nil, false, false
}

func (s *Sessions) parse(tokenStr string) (*sessionClaims, bool) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid || claims.SessionID == "" {
		return nil, false
	}
	return claims, true
}

func (s *Sessions) stale(claims *sessionClaims) bool {
	if s.maxAge <= 0 || claims.IssuedAt == nil {
		return false
	}
	return s.now().Sub(claims.IssuedAt.Time) > s.maxAge/4
}

func (s *Sessions) sign(sessionID string) (string, error) {
	now := s.now()
	claims := sessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.maxAge > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.maxAge))
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// RequireAuth lets authenticated sessions through. Others are redirected to
// the login page, or get 401 on API routes.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if ok && sess.Authenticated {
			next.ServeHTTP(w, r)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"not authenticated"}`))
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
}
