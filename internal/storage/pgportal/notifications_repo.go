package pgportal

import (
	"context"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/pkg/errors"
)

// InsertNotification отдаёт ErrNotFound для несуществующего получателя
// (FK), висячих ссылок не пишем.
func (s *Storage) InsertNotification(ctx context.Context, userID uint64, title, content string) (*models.Notification, error) {
	now := time.Now().UTC()

	var n models.Notification
	err := s.db.QueryRow(ctx, `
INSERT INTO notifications (user_id, title, content, created_at, updated_at)
VALUES ($1,$2,$3,$4,$4)
RETURNING id, user_id, title, content, is_read, created_at, updated_at
`, userID, title, content, now).
		Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.IsRead, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err, "insert notification")
	}
	return &n, nil
}

func (s *Storage) ListNotifications(ctx context.Context, userID uint64, limit, offset int) ([]*models.Notification, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, user_id, title, content, is_read, created_at, updated_at
FROM notifications
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`, userID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select notifications")
	}
	defer rows.Close()

	out := []*models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.IsRead, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		out = append(out, &n)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// MarkNotificationRead помечает уведомление прочитанным только для его
// владельца: чужой id отдаётся как ErrNotFound.
func (s *Storage) MarkNotificationRead(ctx context.Context, userID, notificationID uint64) error {
	tag, err := s.db.Exec(ctx, `
UPDATE notifications
SET is_read = TRUE, updated_at = now()
WHERE id = $1 AND user_id = $2
`, notificationID, userID)
	if err != nil {
		return errors.Wrap(err, "mark notification read")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "notification for mark read")
	}
	return nil
}
