package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"

	"seminar_standings/internal/common"
	"seminar_standings/internal/common/security"
	"seminar_standings/internal/domain/model"
)

type contextKey string

const (
	UserIDCtxKey   contextKey = "userID"
	UserRoleCtxKey contextKey = "userRole"
)

// AttachUser puts the caller's identity into the context when a valid token was sent.
// Requests without a token pass through as anonymous; a bad token is rejected.
func AttachUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if errors.Is(err, jwtauth.ErrNoTokenFound) || (err == nil && token == nil) {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token: "+err.Error())
			return
		}

		userID, err := security.GetUserIDFromClaims(claims)
		if err != nil {
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token claims: "+err.Error())
			return
		}
		userRole, err := security.GetUserRoleFromClaims(claims)
		if err != nil {
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token claims: "+err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), UserIDCtxKey, userID)
		ctx = context.WithValue(ctx, UserRoleCtxKey, userRole)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUserIDFromContext(r.Context()); !ok {
			common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// OrganizerChecker answers whether a user organizes the contest a round belongs to.
type OrganizerChecker interface {
	IsRoundOrganizer(ctx context.Context, roundID, userID string) (bool, error)
}

// RequireOrganizer admits site admins and organizers of the round in the {roundID} URL parameter.
func RequireOrganizer(checker OrganizerChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := GetUserIDFromContext(r.Context())
			if !ok {
				common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
				return
			}
			if role, _ := GetUserRoleFromContext(r.Context()); role == model.RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}
			ok, err := checker.IsRoundOrganizer(r.Context(), chi.URLParam(r, "roundID"), userID)
			if err != nil {
				common.RespondWithAppError(w, err)
				return
			}
			if !ok {
				common.RespondWithError(w, http.StatusForbidden, "Organizer access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDCtxKey).(string)
	return userID, ok
}

func GetUserRoleFromContext(ctx context.Context) (string, bool) {
	userRole, ok := ctx.Value(UserRoleCtxKey).(string)
	return userRole, ok
}

// ViewerFromContext describes the caller for table visibility; admins see what organizers see.
func ViewerFromContext(ctx context.Context) model.Viewer {
	userID, _ := GetUserIDFromContext(ctx)
	role, _ := GetUserRoleFromContext(ctx)
	return model.Viewer{UserID: userID, Organizer: role == model.RoleAdmin}
}
