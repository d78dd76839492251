package middleware

import (
	"context"
	"net/http"
	apperrors "roombook/pkg/errors"
	httputil "roombook/pkg/http"
	"roombook/pkg/logger"
	"roombook/pkg/model"
	"strings"

	"github.com/julienschmidt/httprouter"
)

const UserKey contextKey = "user"

// Authenticator resolves Basic credentials to a user. It returns an
// UNAUTHORIZED AppError for bad credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*model.User, error)
}

// BasicAuth authenticates every request except those whose path starts with
// one of the public prefixes.
func BasicAuth(auth Authenticator, log *logger.Logger, public ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path, public) {
				next.ServeHTTP(w, r)
				return
			}

			username, password, ok := r.BasicAuth()
			if !ok {
				rejectUnauthorized(w, apperrors.Unauthorized("Authentication required"))
				return
			}

			user, err := auth.Authenticate(r.Context(), username, password)
			if err != nil {
				log.Warn("Authentication failed",
					"request_id", requestIDFrom(r),
					"username", username,
					"path", r.URL.Path,
					"error", err,
				)
				rejectUnauthorized(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireAdmin guards a route that only administrators may call.
func RequireAdmin(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		user := CurrentUser(r.Context())
		if user == nil {
			rejectUnauthorized(w, apperrors.Unauthorized("Authentication required"))
			return
		}
		if !user.IsAdmin {
			_ = httputil.WriteError(w, apperrors.Forbidden("Administrator privileges required"))
			return
		}
		next(w, r, ps)
	}
}

func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// CurrentUser returns the authenticated user, or nil for public routes.
func CurrentUser(ctx context.Context) *model.User {
	user, _ := ctx.Value(UserKey).(*model.User)
	return user
}

func rejectUnauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("WWW-Authenticate", `Basic realm="roombook", charset="UTF-8"`)
	_ = httputil.WriteError(w, err)
}

func isPublic(path string, public []string) bool {
	for _, prefix := range public {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
