package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/pkg/errors"
)

type TaskRepository interface {
	GetByID(ctx context.Context, id string) (models.Task, error)
	ListByRequest(ctx context.Context, requestID string) ([]models.Task, error)
	// Update is a compare-and-swap on task.Version. ErrStale when it lost.
	Update(ctx context.Context, task models.Task) (models.Task, error)
}

type taskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) TaskRepository {
	return &taskRepository{db: db}
}

const taskColumns = `id, title, description, status, assignee_id, created_by, originating_request_id,
	status_changed_at, version, created_at, updated_at`

const insertTaskQuery = `
	INSERT INTO tracker.tasks (id, title, description, status, assignee_id, created_by, originating_request_id, status_changed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING ` + taskColumns

func (r *taskRepository) GetByID(ctx context.Context, id string) (models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tracker.tasks WHERE id = $1`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, strings.TrimSpace(id)))
	if err != nil {
		return models.Task{}, notFoundOr(err, "load task")
	}
	return task, nil
}

func (r *taskRepository) ListByRequest(ctx context.Context, requestID string) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tracker.tasks WHERE originating_request_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, strings.TrimSpace(requestID))
	if err != nil {
		return nil, errors.Wrap(err, "list tasks")
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan task")
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate tasks")
	}
	return tasks, nil
}

func (r *taskRepository) Update(ctx context.Context, task models.Task) (models.Task, error) {
	query := `
		UPDATE tracker.tasks
		SET title = $2, description = $3, status = $4, assignee_id = $5, status_changed_at = $6,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $7
		RETURNING ` + taskColumns

	updated, err := scanTask(r.db.QueryRowContext(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Status,
		nullString(task.AssigneeID),
		task.StatusChangedAt,
		task.Version,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Task{}, ErrStale
		}
		return models.Task{}, errors.Wrap(err, "update task")
	}
	return updated, nil
}

func scanTask(scanner rowScanner) (models.Task, error) {
	var (
		task       models.Task
		assigneeID sql.NullString
		requestID  sql.NullString
	)
	if err := scanner.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Status,
		&assigneeID,
		&task.CreatedBy,
		&requestID,
		&task.StatusChangedAt,
		&task.Version,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return models.Task{}, err
	}
	task.AssigneeID = stringPtr(assigneeID)
	task.OriginatingRequestID = stringPtr(requestID)
	return task, nil
}
