package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/superheroes-club/luz-engine/internal/infrastructure/external/auth"
)

// ══════════════════════════════════════════════════════════════════════════════
// BEARER AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

// TokenVerifier turns an Authorization header into a principal.
type TokenVerifier interface {
	VerifyHeader(header string) (auth.Principal, error)
}

// RejectFunc writes the response for a request the middleware refuses.
type RejectFunc func(w http.ResponseWriter, r *http.Request, status int, code, message string)

type principalKey struct{}

// WithPrincipal stores the authenticated principal in ctx.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by BearerAuth.
func PrincipalFrom(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

// BearerAuth verifies the bearer token and stores the principal in the
// request context. Requests without a valid token never reach next.
func BearerAuth(verifier TokenVerifier, reject RejectFunc) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := verifier.VerifyHeader(r.Header.Get("Authorization"))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="luz"`)
				reject(w, r, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST SIZE LIMIT
// ══════════════════════════════════════════════════════════════════════════════

// RequestSizeLimit rejects declared oversize bodies up front and caps the
// bytes actually read from the rest.
func RequestSizeLimit(maxBytes int64, reject RejectFunc) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				reject(w, r, http.StatusRequestEntityTooLarge, "payload_too_large",
					"request body exceeds "+strconv.FormatInt(maxBytes, 10)+" bytes")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HEADERS
// ══════════════════════════════════════════════════════════════════════════════

// SecurityHeaders sets the headers every JSON API response carries.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// NoCache marks responses as private and uncacheable. Balances and
// submissions change on every review.
func NoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, max-age=0")
		next.ServeHTTP(w, r)
	})
}

// CacheControl lets shared caches keep GET responses for maxAge.
// Used for the reward catalog and published missions.
func CacheControl(maxAge time.Duration) MiddlewareFunc {
	secs := int64(maxAge / time.Second)
	if secs < 0 {
		secs = 0
	}
	value := "public, max-age=" + strconv.FormatInt(secs, 10)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				w.Header().Set("Cache-Control", value)
			} else {
				w.Header().Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// MiddlewareFunc wraps an http.Handler.
type MiddlewareFunc func(http.Handler) http.Handler

// Chain composes middlewares; the first one is outermost.
func Chain(middlewares ...MiddlewareFunc) MiddlewareFunc {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
