// Package identity provides anonymous per-visitor identity primitives.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	VisitorCookieName     = "ww_visitor_id"
	SessionHeaderName     = "X-Widget-Session-ID"
	DefaultSessionIDValue = "default"
	visitorCookieMaxAge   = 30 * 24 * time.Hour
)

type contextKey int

const (
	visitorIDKey contextKey = iota
	sessionIDKey
)

var (
	visitorIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// VisitorIDFromContext extracts the visitor ID from the request context.
func VisitorIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(visitorIDKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext extracts the tab session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

// WithIdentity returns a context carrying the given visitor and tab session.
func WithIdentity(ctx context.Context, visitorID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, visitorIDKey, visitorID)
	return context.WithValue(ctx, sessionIDKey, sanitizeSessionID(sessionID))
}

func generateVisitorID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate visitor id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidVisitorID(id string) bool {
	return visitorIDPattern.MatchString(id)
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

func setVisitorCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     VisitorCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(visitorCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(visitorCookieMaxAge),
		HttpOnly: true,
		// The widget is embedded on third-party pages, so production cookies
		// must be sent cross-site.
		SameSite: sameSite(isDev),
		Secure:   !isDev,
	})
}

func sameSite(isDev bool) http.SameSite {
	if isDev {
		return http.SameSiteLaxMode
	}
	return http.SameSiteNoneMode
}

func getOrCreateVisitorID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(VisitorCookieName); err == nil && isValidVisitorID(c.Value) {
		setVisitorCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateVisitorID()
	if err != nil {
		return "", err
	}
	setVisitorCookie(w, id, isDev)
	return id, nil
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return sanitizeSessionID(sid)
}

// Middleware injects anonymous per-visitor identity and per-request tab session ID.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			visitorID, err := getOrCreateVisitorID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}

			ctx := WithIdentity(r.Context(), visitorID, sessionIDFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for rate limiting and tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
