package authz

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
)

// RequireRole rejects callers below the required role tier. It expects the
// authenticated user in the request context.
func RequireRole(required models.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromRequest(r)
			if !ok {
				deny(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !models.HasAtLeast(user.Role, required) {
				deny(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoleHandler applies the role middleware inline when registering routes.
func RequireRoleHandler(required models.UserRole, next http.Handler) http.Handler {
	return RequireRole(required)(next)
}

// RequireDepartmentAdmin admits super-admins and admins of the department
// named by the route variable.
func RequireDepartmentAdmin(routeVar string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromRequest(r)
		if !ok {
			deny(w, http.StatusUnauthorized, "authentication required")
			return
		}
		department := mux.Vars(r)[routeVar]
		if !user.IsAdminOf(&department) {
			deny(w, http.StatusForbidden, "only admins of this department can do that")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
