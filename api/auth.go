package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/warp/swim-engine/identity"
)

// AccessTokenCookie carries the token for browser clients.
const AccessTokenCookie = "access_token"

type principalKey struct{}

// Authenticate resolves the caller from an Authorization bearer token or the
// access_token cookie. Requests without a valid token pass through
// anonymously; RequireStudent and RequireAdmin decide what that means. An
// expired cookie must not break the public gateway callbacks.
func Authenticate(tokens *identity.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, err := tokens.Verify(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
		})
	}
}

// RequireStudent rejects anonymous callers and admins. Registrations and
// payments always belong to a student account.
func RequireStudent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		switch {
		case !ok:
			writeError(w, http.StatusUnauthorized, "Authentication required", nil)
		case p.Role != identity.RoleStudent:
			writeError(w, http.StatusForbidden, "Student account required", nil)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		switch {
		case !ok:
			writeError(w, http.StatusUnauthorized, "Authentication required", nil)
		case !p.IsAdmin():
			writeError(w, http.StatusForbidden, "Admin access required", nil)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// PrincipalFrom returns the authenticated caller stored by Authenticate.
func PrincipalFrom(ctx context.Context) (identity.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(identity.Principal)
	return p, ok
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		return c.Value
	}
	return ""
}

func (h *Handler) clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) setTokenCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
