package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/RichardoC/compi/internal/models"
)

// ProtectedPrefixes need a session user. Matched with a plain prefix check.
var ProtectedPrefixes = []string{
	"/profile/edit",
	"/chat",
	"/reviews/new",
}

const (
	LoginPath          = "/login"
	ReasonAuthRequired = "auth_required"
)

var skippedPrefixes = []string{"/_next/static/", "/_next/image", "/favicon.ico", "/assets/"}

var imageExtensions = []string{".svg", ".png", ".jpg", ".jpeg", ".gif", ".webp"}

type userKey struct{}

// Matches reports whether the guard runs for path at all.
func Matches(path string) bool {
	for _, prefix := range skippedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	lower := strings.ToLower(path)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}

func IsProtected(path string) bool {
	for _, prefix := range ProtectedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Guard resolves the session user for every matched request, redirects
// anonymous requests for protected paths to the login page and passes the
// rest through with the user in the context.
func Guard(resolver Resolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Matches(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			user, err := resolver.Resolve(w, r)
			if err != nil {
				logger.Error("failed to resolve session",
					zap.Error(err),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path))
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			if user == nil && IsProtected(r.URL.Path) {
				http.Redirect(w, r, LoginURL(r.URL.Path), http.StatusTemporaryRedirect)
				return
			}

			if user != nil {
				r = r.WithContext(WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoginURL is the login page carrying the original path and the reason.
func LoginURL(original string) string {
	q := url.Values{}
	q.Set("redirect", original)
	q.Set("reason", ReasonAuthRequired)
	return LoginPath + "?" + q.Encode()
}

func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the session user, or nil.
func UserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userKey{}).(*models.User)
	return user
}
