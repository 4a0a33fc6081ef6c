package pgportal

import (
	"context"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const shipmentColumns = `
  id, tracking_number, user_id,
  origin, destination, weight_kg, physical_weight_kg, volume, quantity, term,
  status, current_location,
  sender_name, sender_email, receiver_name, receiver_email,
  estimated_delivery, created_at, updated_at`

type shipmentScanner interface {
	Scan(dest ...any) error
}

func scanShipment(row shipmentScanner) (*models.Shipment, error) {
	var sh models.Shipment
	if err := row.Scan(
		&sh.ID, &sh.TrackingNumber, &sh.UserID,
		&sh.Origin, &sh.Destination, &sh.WeightKg, &sh.PhysicalWeightKg, &sh.Volume, &sh.Quantity, &sh.Term,
		&sh.Status, &sh.CurrentLocation,
		&sh.SenderName, &sh.SenderEmail, &sh.ReceiverName, &sh.ReceiverEmail,
		&sh.EstimatedDelivery, &sh.CreatedAt, &sh.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &sh, nil
}

// CreateShipment вставляет новый груз в статусе Pending. Коллизия
// tracking_number отдаётся как ErrConflict — сервис перегенерирует
// номер и повторит.
func (s *Storage) CreateShipment(ctx context.Context, trackingNumber string, in models.ShipmentCreateInput) (*models.Shipment, error) {
	now := time.Now().UTC()

	row := s.db.QueryRow(ctx, `
INSERT INTO shipments (
  tracking_number, user_id,
  origin, destination, weight_kg, physical_weight_kg, volume, quantity, term,
  status, current_location,
  sender_name, sender_email, receiver_name, receiver_email,
  estimated_delivery, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULL,$11,$12,$13,$14,$15,$16,$16)
RETURNING`+shipmentColumns+`
`, trackingNumber, in.UserID,
		in.Origin, in.Destination, in.WeightKg, in.PhysicalWeightKg, in.Volume, in.Quantity, in.Term,
		models.ShipmentStatusPending,
		in.SenderName, in.SenderEmail, in.ReceiverName, in.ReceiverEmail,
		in.EstimatedDelivery, now)

	sh, err := scanShipment(row)
	if err != nil {
		return nil, mapPgError(err, "insert shipment")
	}
	return sh, nil
}

func (s *Storage) GetShipmentByID(ctx context.Context, id uint64) (*models.Shipment, error) {
	row := s.db.QueryRow(ctx, `SELECT`+shipmentColumns+` FROM shipments WHERE id = $1`, id)
	sh, err := scanShipment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(models.ErrNotFound, "shipment by id")
	}
	if err != nil {
		return nil, errors.Wrap(err, "select shipment")
	}
	return sh, nil
}

func (s *Storage) GetShipmentByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Shipment, error) {
	row := s.db.QueryRow(ctx, `SELECT`+shipmentColumns+` FROM shipments WHERE tracking_number = $1`, trackingNumber)
	sh, err := scanShipment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(models.ErrNotFound, "shipment by tracking number")
	}
	if err != nil {
		return nil, errors.Wrap(err, "select shipment by tracking number")
	}
	return sh, nil
}

// ListShipments: userID == nil — все грузы (админ), иначе только грузы
// владельца. Свежие сверху.
func (s *Storage) ListShipments(ctx context.Context, userID *uint64, limit, offset int) ([]*models.Shipment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT`+shipmentColumns+`
FROM shipments
WHERE ($1::bigint IS NULL OR user_id = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`, userID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments")
	}
	defer rows.Close()

	out := []*models.Shipment{}
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan shipment")
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

type ShipmentDetailsUpdate struct {
	Origin            *string
	Destination       *string
	WeightKg          *float64
	PhysicalWeightKg  *float64
	Volume            *string
	Quantity          *int32
	Term              *string
	CurrentLocation   *string
	EstimatedDelivery *time.Time
}

func (s *Storage) UpdateShipmentDetails(ctx context.Context, id uint64, upd ShipmentDetailsUpdate) (*models.Shipment, error) {
	row := s.db.QueryRow(ctx, `
UPDATE shipments
SET
  origin = COALESCE($2, origin),
  destination = COALESCE($3, destination),
  weight_kg = COALESCE($4, weight_kg),
  physical_weight_kg = COALESCE($5, physical_weight_kg),
  volume = COALESCE($6, volume),
  quantity = COALESCE($7, quantity),
  term = COALESCE($8, term),
  current_location = COALESCE($9, current_location),
  estimated_delivery = COALESCE($10, estimated_delivery),
  updated_at = now()
WHERE id = $1
RETURNING`+shipmentColumns+`
`, id, upd.Origin, upd.Destination, upd.WeightKg, upd.PhysicalWeightKg,
		upd.Volume, upd.Quantity, upd.Term, upd.CurrentLocation, upd.EstimatedDelivery)

	sh, err := scanShipment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(models.ErrNotFound, "update shipment details")
	}
	if err != nil {
		return nil, errors.Wrap(err, "update shipment details")
	}
	return sh, nil
}

// StatusChange — все эффекты одного перехода. Применяется одной
// транзакцией: либо статус, событие и уведомление записаны вместе,
// либо ничего.
type StatusChange struct {
	ShipmentID uint64

	FromStatus string
	ToStatus   string

	Location    *string
	Description *string

	NotifyUserID  *uint64
	NotifyTitle   string
	NotifyContent string
}

// ApplyStatusChange обновляет статус с оптимистичной проверкой: UPDATE
// охраняется WHERE status = from, проигранная гонка двух админов
// отдаётся как ErrConflict, а не затирается молча.
func (s *Storage) ApplyStatusChange(ctx context.Context, chg StatusChange) (*models.TrackingEvent, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
UPDATE shipments
SET
  status = $3,
  current_location = COALESCE($4, current_location),
  updated_at = $5
WHERE id = $1 AND status = $2
`, chg.ShipmentID, chg.FromStatus, chg.ToStatus, chg.Location, now)
	if err != nil {
		return nil, errors.Wrap(err, "update shipment status")
	}
	if tag.RowsAffected() == 0 {
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM shipments WHERE id = $1`, chg.ShipmentID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrap(models.ErrNotFound, "shipment for status change")
		}
		if err != nil {
			return nil, errors.Wrap(err, "recheck shipment status")
		}
		return nil, errors.Wrapf(models.ErrConflict, "status is %q, expected %q", current, chg.FromStatus)
	}

	var ev models.TrackingEvent
	err = tx.QueryRow(ctx, `
INSERT INTO tracking_events (shipment_id, event_type, location, description, created_at)
VALUES ($1,$2,$3,$4,$5)
RETURNING id, shipment_id, event_type, location, description, created_at
`, chg.ShipmentID, models.EventTypeForStatus(chg.ToStatus), chg.Location, chg.Description, now).
		Scan(&ev.ID, &ev.ShipmentID, &ev.EventType, &ev.Location, &ev.Description, &ev.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "insert tracking event")
	}

	if chg.NotifyUserID != nil {
		_, err = tx.Exec(ctx, `
INSERT INTO notifications (user_id, title, content, created_at, updated_at)
VALUES ($1,$2,$3,$4,$4)
`, *chg.NotifyUserID, chg.NotifyTitle, chg.NotifyContent, now)
		if err != nil {
			return nil, mapPgError(err, "insert status notification")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return &ev, nil
}
