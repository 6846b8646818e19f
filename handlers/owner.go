package handlers

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"trusight/apperr"
	"trusight/models"
	"trusight/services"
)

const (
	SessionCookie = "trusight_session"
	userIDHeader  = "X-User-ID"
	sessionHeader = "X-Session-ID"
	sessionMaxAge = 365 * 24 * 60 * 60
)

type ownerCtxKey struct{}

// mintedCtxKey marks a session id created by this request.
type mintedCtxKey struct{}

// OwnerMiddleware resolves the request owner once. The identity gateway
// sets X-User-ID for signed-in users; everyone else gets a session id,
// created on first visit.
func OwnerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(userIDHeader))
		sessionID := strings.TrimSpace(r.Header.Get(sessionHeader))
		if sessionID == "" {
			if c, err := r.Cookie(SessionCookie); err == nil {
				sessionID = strings.TrimSpace(c.Value)
			}
		}
		ctx := r.Context()
		if userID == "" && sessionID == "" {
			sessionID = uuid.NewString()
			ctx = context.WithValue(ctx, mintedCtxKey{}, true)
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    sessionID,
				Path:     "/",
				MaxAge:   sessionMaxAge,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		owner, _ := models.ResolveOwner(userID, sessionID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, ownerCtxKey{}, owner)))
	})
}

// OwnerFrom returns the owner resolved by OwnerMiddleware.
func OwnerFrom(ctx context.Context) models.OwnerKey {
	owner, _ := ctx.Value(ownerCtxKey{}).(models.OwnerKey)
	return owner
}

// limitKey is the owner, or the client address when the session was
// minted by this request and the client never sent the cookie back.
func limitKey(r *http.Request) string {
	if minted, _ := r.Context().Value(mintedCtxKey{}).(bool); !minted {
		return OwnerFrom(r.Context()).String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// RateLimit rejects requests once the client's bucket is empty.
func RateLimit(l *services.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l != nil && !l.Allow(limitKey(r)) {
				respondError(w, r, apperr.RateLimited("too many requests, slow down"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
