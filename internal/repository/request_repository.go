package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

type RequestRepository interface {
	Create(ctx context.Context, req models.Request) (models.Request, error)
	GetByID(ctx context.Context, id string) (models.Request, error)
	List(ctx context.Context, filter RequestFilter) ([]models.Request, error)
	// Update writes every mutable field if the stored version still equals
	// req.Version, and bumps the version. ErrStale otherwise.
	Update(ctx context.Context, req models.Request) (models.Request, error)
	// AssignWithTask performs Update and inserts the spawned task in one
	// transaction.
	AssignWithTask(ctx context.Context, req models.Request, task models.Task) (models.Request, models.Task, error)
	Delete(ctx context.Context, id string) error
}

// RequestFilter selects a listing. Sent lists requests created by UserID.
// Received lists requests targeting DepartmentID or assigned to UserID; All
// widens received to every request.
type RequestFilter struct {
	Direction    models.RequestDirection
	UserID       string
	DepartmentID string
	All          bool
	Statuses     []models.RequestStatus
}

type requestRepository struct {
	db *sql.DB
}

func NewRequestRepository(db *sql.DB) RequestRepository {
	return &requestRepository{db: db}
}

const requestColumns = `id, title, description, request_type, priority, status, from_department, to_department,
	created_by, assigned_to, tentative_deadline, status_changed_at, version, created_at, updated_at`

func (r *requestRepository) Create(ctx context.Context, req models.Request) (models.Request, error) {
	query := `
		INSERT INTO tracker.requests (id, title, description, request_type, priority, status, from_department,
			to_department, created_by, assigned_to, tentative_deadline, status_changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + requestColumns

	row := r.db.QueryRowContext(ctx, query,
		req.ID,
		req.Title,
		req.Description,
		req.Type,
		req.Priority,
		req.Status,
		req.FromDepartment,
		nullString(req.ToDepartment),
		req.CreatedBy,
		nullString(req.AssignedTo),
		req.TentativeDeadline,
		req.StatusChangedAt,
	)
	created, err := scanRequest(row)
	if err != nil {
		return models.Request{}, errors.Wrap(err, "insert request")
	}
	return created, nil
}

func (r *requestRepository) GetByID(ctx context.Context, id string) (models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM tracker.requests WHERE id = $1`
	req, err := scanRequest(r.db.QueryRowContext(ctx, query, strings.TrimSpace(id)))
	if err != nil {
		return models.Request{}, notFoundOr(err, "load request")
	}
	return req, nil
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter) ([]models.Request, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + itoa(len(args))
	}

	switch filter.Direction {
	case models.DirectionSent:
		where = append(where, "created_by = "+arg(filter.UserID))
	case models.DirectionReceived:
		if !filter.All {
			clause := "assigned_to = " + arg(filter.UserID)
			if filter.DepartmentID != "" {
				clause = "(to_department = " + arg(filter.DepartmentID) + " OR " + clause + ")"
			}
			where = append(where, clause)
		}
	default:
		return nil, errors.Errorf("unknown direction %q", filter.Direction)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		where = append(where, "status = ANY("+arg(pq.Array(statuses))+")")
	}

	query := `SELECT ` + requestColumns + ` FROM tracker.requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list requests")
	}
	defer rows.Close()

	var requests []models.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan request")
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate requests")
	}
	return requests, nil
}

const updateRequestQuery = `
	UPDATE tracker.requests
	SET title = $2, description = $3, request_type = $4, priority = $5, status = $6, to_department = $7,
		assigned_to = $8, tentative_deadline = $9, status_changed_at = $10, version = version + 1, updated_at = NOW()
	WHERE id = $1 AND version = $11
	RETURNING ` + requestColumns

func updateRequestArgs(req models.Request) []interface{} {
	return []interface{}{
		req.ID,
		req.Title,
		req.Description,
		req.Type,
		req.Priority,
		req.Status,
		nullString(req.ToDepartment),
		nullString(req.AssignedTo),
		req.TentativeDeadline,
		req.StatusChangedAt,
		req.Version,
	}
}

func (r *requestRepository) Update(ctx context.Context, req models.Request) (models.Request, error) {
	updated, err := scanRequest(r.db.QueryRowContext(ctx, updateRequestQuery, updateRequestArgs(req)...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Request{}, ErrStale
		}
		return models.Request{}, errors.Wrap(err, "update request")
	}
	return updated, nil
}

func (r *requestRepository) AssignWithTask(ctx context.Context, req models.Request, task models.Task) (models.Request, models.Task, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return models.Request{}, models.Task{}, errors.Wrap(err, "begin assignment transaction")
	}
	defer tx.Rollback()

	updated, err := scanRequest(tx.QueryRowContext(ctx, updateRequestQuery, updateRequestArgs(req)...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Request{}, models.Task{}, ErrStale
		}
		return models.Request{}, models.Task{}, errors.Wrap(err, "assign request")
	}

	created, err := scanTask(tx.QueryRowContext(ctx, insertTaskQuery,
		task.ID,
		task.Title,
		task.Description,
		task.Status,
		nullString(task.AssigneeID),
		task.CreatedBy,
		nullString(task.OriginatingRequestID),
		task.StatusChangedAt,
	))
	if err != nil {
		return models.Request{}, models.Task{}, errors.Wrap(err, "insert task for assignment")
	}

	if err := tx.Commit(); err != nil {
		return models.Request{}, models.Task{}, errors.Wrap(err, "commit assignment")
	}
	return updated, created, nil
}

func (r *requestRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tracker.requests WHERE id = $1`, strings.TrimSpace(id))
	if err != nil {
		return errors.Wrap(err, "delete request")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete request")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRequest(scanner rowScanner) (models.Request, error) {
	var (
		req          models.Request
		toDepartment sql.NullString
		assignedTo   sql.NullString
		deadline     sql.NullTime
	)
	if err := scanner.Scan(
		&req.ID,
		&req.Title,
		&req.Description,
		&req.Type,
		&req.Priority,
		&req.Status,
		&req.FromDepartment,
		&toDepartment,
		&req.CreatedBy,
		&assignedTo,
		&deadline,
		&req.StatusChangedAt,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return models.Request{}, err
	}
	req.ToDepartment = stringPtr(toDepartment)
	req.AssignedTo = stringPtr(assignedTo)
	if deadline.Valid {
		t := deadline.Time
		req.TentativeDeadline = &t
	}
	return req, nil
}
