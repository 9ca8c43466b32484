// Package department serves the department roster from the user directory
// behind the TTL cache.
package department

import (
	"context"
	"strings"
	"time"

	"github.com/govindrajpootecosoul/project-tracker/internal/apperr"
	"github.com/govindrajpootecosoul/project-tracker/internal/cache"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/repository"
	"github.com/pkg/errors"
)

type Roster interface {
	Members(ctx context.Context, departmentID string) ([]models.User, error)
	// Admins lists the active ADMIN users of a department.
	Admins(ctx context.Context, departmentID string) ([]models.User, error)
	Invalidate(ctx context.Context, departmentID string) error
}

type roster struct {
	users repository.UserRepository
	cache *cache.Cache[[]models.User]
	ttl   time.Duration
}

func NewRoster(users repository.UserRepository, c *cache.Cache[[]models.User], ttl time.Duration) Roster {
	return &roster{users: users, cache: c, ttl: ttl}
}

func (r *roster) Members(ctx context.Context, departmentID string) ([]models.User, error) {
	departmentID = strings.TrimSpace(departmentID)
	if departmentID == "" {
		return nil, apperr.Validation("department id is required")
	}
	members, err := r.cache.Get(ctx, departmentID, r.ttl, func(ctx context.Context) ([]models.User, error) {
		users, err := r.users.ListUsersByDepartment(ctx, departmentID)
		if err != nil {
			return nil, errors.Wrap(err, "list department members")
		}
		if users == nil {
			users = []models.User{}
		}
		return users, nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *roster) Admins(ctx context.Context, departmentID string) ([]models.User, error) {
	members, err := r.Members(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	admins := make([]models.User, 0, len(members))
	for _, m := range members {
		if m.IsActive && m.Role == models.RoleAdmin {
			admins = append(admins, m)
		}
	}
	return admins, nil
}

func (r *roster) Invalidate(ctx context.Context, departmentID string) error {
	return r.cache.Invalidate(ctx, strings.TrimSpace(departmentID))
}
