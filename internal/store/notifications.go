package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
)

// CreateNotification stores a notification. A non-empty eventID makes the
// insert idempotent so redelivered events do not notify twice; created is
// false for such duplicates.
func CreateNotification(ctx context.Context, db *sql.DB, userID int64, title, body, eventID string) (created bool, err error) {
	result, err := db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, title, body, event_id, is_read, created_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
		ON CONFLICT (event_id) DO NOTHING`,
		userID, title, body, nullableString(eventID))
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return false, database.ErrUserNotFound
		}
		return false, fmt.Errorf("create notification: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n > 0, nil
}

func ListNotifications(ctx context.Context, db *sql.DB, userID int64, unreadOnly bool, cursor string, limit int) (*CursorPage, error) {
	limit = clampLimit(limit)
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, title, body, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		  AND (NOT $4::boolean OR NOT is_read)
		ORDER BY created_at DESC, id DESC
		LIMIT $5`, userID, cursorData.CreatedAt, cursorData.ID, unreadOnly, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(notifications) > limit
	if hasMore {
		notifications = notifications[:limit]
	}
	var next string
	if hasMore {
		last := notifications[len(notifications)-1]
		next = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return &CursorPage{Items: notifications, NextCursor: next, HasMore: hasMore}, nil
}

func MarkNotificationRead(ctx context.Context, db *sql.DB, userID, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return expectOneRow(result, database.ErrNotificationNotFound)
}

func MarkAllNotificationsRead(ctx context.Context, db *sql.DB, userID int64) (int64, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return result.RowsAffected()
}

func UnreadNotificationCount(ctx context.Context, db *sql.DB, userID int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}
