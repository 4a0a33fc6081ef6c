package pgportal

import (
	"context"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/pkg/errors"
)

type EventOrder string

const (
	// История для клиента: свежие сверху.
	EventOrderDesc EventOrder = "desc"
	// Таймлайн: от создания к доставке.
	EventOrderAsc EventOrder = "asc"
)

// AppendTrackingEvent — ручная запись события админом, вне смены
// статуса. Неизвестный shipment_id отдаётся как ErrNotFound.
func (s *Storage) AppendTrackingEvent(ctx context.Context, shipmentID uint64, eventType string, location, description *string) (*models.TrackingEvent, error) {
	now := time.Now().UTC()

	var ev models.TrackingEvent
	err := s.db.QueryRow(ctx, `
INSERT INTO tracking_events (shipment_id, event_type, location, description, created_at)
VALUES ($1,$2,$3,$4,$5)
RETURNING id, shipment_id, event_type, location, description, created_at
`, shipmentID, eventType, location, description, now).
		Scan(&ev.ID, &ev.ShipmentID, &ev.EventType, &ev.Location, &ev.Description, &ev.CreatedAt)
	if err != nil {
		return nil, mapPgError(err, "insert tracking event")
	}
	return &ev, nil
}

// ListTrackingEvents возвращает события груза в заданном порядке.
// Пустой срез для груза без событий — не ошибка.
func (s *Storage) ListTrackingEvents(ctx context.Context, shipmentID uint64, order EventOrder, limit, offset int) ([]*models.TrackingEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	q := `
SELECT id, shipment_id, event_type, location, description, created_at
FROM tracking_events
WHERE shipment_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`
	if order == EventOrderAsc {
		q = `
SELECT id, shipment_id, event_type, location, description, created_at
FROM tracking_events
WHERE shipment_id = $1
ORDER BY created_at ASC, id ASC
LIMIT $2 OFFSET $3
`
	}

	rows, err := s.db.Query(ctx, q, shipmentID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	out := []*models.TrackingEvent{}
	for rows.Next() {
		var ev models.TrackingEvent
		if err := rows.Scan(&ev.ID, &ev.ShipmentID, &ev.EventType, &ev.Location, &ev.Description, &ev.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, &ev)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
