package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/repository"
)

type UserRepository struct {
	mu   sync.Mutex
	byID map[string]models.User
}

// Put adds or replaces a directory entry.
func (r *UserRepository) Put(user models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[user.ID] = user
}

func (r *UserRepository) GetUserByID(_ context.Context, userID string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[strings.TrimSpace(userID)]
	if !ok {
		return models.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.byID {
		if user.MatchesEmail(email) {
			return user, nil
		}
	}
	return models.User{}, repository.ErrNotFound
}

func (r *UserRepository) ListUsersByDepartment(_ context.Context, departmentID string) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.User, 0)
	for _, user := range r.byID {
		if user.DepartmentID == departmentID {
			out = append(out, user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}
