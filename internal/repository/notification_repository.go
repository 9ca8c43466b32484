package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/pkg/errors"
)

type NotificationRepository interface {
	Create(ctx context.Context, notif models.Notification) (models.Notification, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	// MarkRead sets read_at only if it is still unset, so a second call keeps
	// the original timestamp.
	MarkRead(ctx context.Context, userID, notificationID string) (models.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

const notificationColumns = `id, user_id, type, title, message, link, read_at, created_at`

func (r *notificationRepository) Create(ctx context.Context, notif models.Notification) (models.Notification, error) {
	query := `
		INSERT INTO tracker.notifications (id, user_id, type, title, message, link)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + notificationColumns

	row := r.db.QueryRowContext(ctx, query, notif.ID, notif.UserID, notif.Type, notif.Title, notif.Message, notif.Link)
	created, err := scanNotification(row)
	if err != nil {
		return models.Notification{}, errors.Wrap(err, "insert notification")
	}
	return created, nil
}

func (r *notificationRepository) ListRecent(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	query := `
		SELECT ` + notificationColumns + `
		FROM tracker.notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, strings.TrimSpace(userID), limit)
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		notifications = append(notifications, notif)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate notifications")
	}
	return notifications, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM tracker.notifications WHERE user_id = $1 AND read_at IS NULL`

	var count int
	if err := r.db.QueryRowContext(ctx, query, strings.TrimSpace(userID)).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count unread notifications")
	}
	return count, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, notificationID string) (models.Notification, error) {
	query := `
		UPDATE tracker.notifications
		SET read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND user_id = $2
		RETURNING ` + notificationColumns

	row := r.db.QueryRowContext(ctx, query, strings.TrimSpace(notificationID), strings.TrimSpace(userID))
	notif, err := scanNotification(row)
	if err != nil {
		return models.Notification{}, notFoundOr(err, "mark notification read")
	}
	return notif, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID string) (int, error) {
	const query = `UPDATE tracker.notifications SET read_at = NOW() WHERE user_id = $1 AND read_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, strings.TrimSpace(userID))
	if err != nil {
		return 0, errors.Wrap(err, "mark all notifications read")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "mark all notifications read")
	}
	return int(n), nil
}

func scanNotification(scanner rowScanner) (models.Notification, error) {
	var (
		notif  models.Notification
		readAt sql.NullTime
	)
	if err := scanner.Scan(
		&notif.ID,
		&notif.UserID,
		&notif.Type,
		&notif.Title,
		&notif.Message,
		&notif.Link,
		&readAt,
		&notif.CreatedAt,
	); err != nil {
		return models.Notification{}, err
	}
	if readAt.Valid {
		t := readAt.Time
		notif.ReadAt = &t
		notif.Read = true
	}
	return notif, nil
}
