package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/pkg/errors"
)

// UserRepository is the read-only user directory.
type UserRepository interface {
	GetUserByID(ctx context.Context, userID string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	ListUsersByDepartment(ctx context.Context, departmentID string) ([]models.User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, email, name, role, COALESCE(department_id, ''), is_active`

func (u *userRepository) GetUserByID(ctx context.Context, userID string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM tracker.users WHERE id = $1 AND deleted_at IS NULL`
	user, err := scanUser(u.db.QueryRowContext(ctx, query, strings.TrimSpace(userID)))
	if err != nil {
		return models.User{}, notFoundOr(err, "load user")
	}
	return user, nil
}

func (u *userRepository) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM tracker.users WHERE LOWER(email) = LOWER($1) AND deleted_at IS NULL`
	user, err := scanUser(u.db.QueryRowContext(ctx, query, strings.TrimSpace(email)))
	if err != nil {
		return models.User{}, notFoundOr(err, "load user by email")
	}
	return user, nil
}

func (u *userRepository) ListUsersByDepartment(ctx context.Context, departmentID string) ([]models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM tracker.users
		WHERE department_id = $1 AND deleted_at IS NULL
		ORDER BY email`

	rows, err := u.db.QueryContext(ctx, query, departmentID)
	if err != nil {
		return nil, errors.Wrap(err, "list department users")
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan user")
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate users")
	}
	return users, nil
}

func scanUser(scanner rowScanner) (models.User, error) {
	var user models.User
	if err := scanner.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.DepartmentID,
		&user.IsActive,
	); err != nil {
		return models.User{}, err
	}
	if !models.IsValidRole(user.Role) {
		return models.User{}, errors.Errorf("user %s has invalid role %q", user.ID, user.Role)
	}
	return user, nil
}
