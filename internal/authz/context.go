package authz

import (
	"context"
	"net/http"

	"github.com/govindrajpootecosoul/project-tracker/internal/models"
)

type contextKey string

const userKey contextKey = "user"

// WithUser stores the directory record of the authenticated caller.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userKey).(models.User)
	if !ok || user.ID == "" {
		return models.User{}, false
	}
	return user, true
}

func UserFromRequest(r *http.Request) (models.User, bool) {
	return UserFromContext(r.Context())
}

func UserIDFromRequest(r *http.Request) (string, bool) {
	user, ok := UserFromRequest(r)
	return user.ID, ok
}
