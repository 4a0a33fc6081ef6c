package pgportal

import (
	"context"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const paymentColumns = `
  id, user_id, shipment_id,
  amount_minor, currency, status,
  payment_method, payment_provider, reference, transaction_id,
  verify_fail_count, next_verify_at, last_error,
  created_at, updated_at`

func scanPayment(row shipmentScanner) (*models.Payment, error) {
	var p models.Payment
	if err := row.Scan(
		&p.ID, &p.UserID, &p.ShipmentID,
		&p.AmountMinor, &p.Currency, &p.Status,
		&p.PaymentMethod, &p.PaymentProvider, &p.Reference, &p.TransactionID,
		&p.VerifyFailCount, &p.NextVerifyAt, &p.LastError,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

type PaymentCreateInput struct {
	UserID     uint64
	ShipmentID *uint64

	AmountMinor int64
	Currency    string

	PaymentMethod   string
	PaymentProvider string
	Reference       string
}

func (s *Storage) CreatePayment(ctx context.Context, in PaymentCreateInput) (*models.Payment, error) {
	now := time.Now().UTC()

	row := s.db.QueryRow(ctx, `
INSERT INTO payments (
  user_id, shipment_id, amount_minor, currency, status,
  payment_method, payment_provider, reference,
  next_verify_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9,$9)
RETURNING`+paymentColumns+`
`, in.UserID, in.ShipmentID, in.AmountMinor, in.Currency, models.PaymentStatusPending,
		in.PaymentMethod, in.PaymentProvider, in.Reference, now)

	p, err := scanPayment(row)
	if err != nil {
		return nil, mapPgError(err, "insert payment")
	}
	return p, nil
}

func (s *Storage) GetPaymentByID(ctx context.Context, id uint64) (*models.Payment, error) {
	row := s.db.QueryRow(ctx, `SELECT`+paymentColumns+` FROM payments WHERE id = $1`, id)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(models.ErrNotFound, "payment by id")
	}
	if err != nil {
		return nil, errors.Wrap(err, "select payment")
	}
	return p, nil
}

func (s *Storage) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	row := s.db.QueryRow(ctx, `SELECT`+paymentColumns+` FROM payments WHERE reference = $1`, reference)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(models.ErrNotFound, "payment by reference")
	}
	if err != nil {
		return nil, errors.Wrap(err, "select payment by reference")
	}
	return p, nil
}

// ListPayments: userID == nil — платёжная консоль админа, иначе свои.
func (s *Storage) ListPayments(ctx context.Context, userID *uint64, limit, offset int) ([]*models.Payment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT`+paymentColumns+`
FROM payments
WHERE ($1::bigint IS NULL OR user_id = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`, userID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select payments")
	}
	defer rows.Close()

	out := []*models.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan payment")
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ClaimDuePayments выбирает пачку pending-платежей, готовых к проверке,
// и "бронирует" их, чтобы они не попадали в повторную выборку, пока
// воркер их обрабатывает. Использует SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimDuePayments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Payment, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT`+paymentColumns+`
FROM payments
WHERE next_verify_at <= $1
  AND status = $2
ORDER BY next_verify_at ASC
LIMIT $3
FOR UPDATE SKIP LOCKED
`, now.UTC(), models.PaymentStatusPending, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due payments")
	}
	defer rows.Close()

	var picked []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan due payment")
		}
		picked = append(picked, p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, p := range picked {
		_, err := tx.Exec(ctx, `UPDATE payments SET next_verify_at = $2, updated_at = now() WHERE id = $1`, p.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease payment")
		}
		p.NextVerifyAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

type PaymentUpdate struct {
	PaymentID uint64
	CheckedAt time.Time

	// Пустой Status — платёж остаётся pending (шлюз ещё не решил).
	Status        string
	TransactionID *string

	NextVerifyAt time.Time

	Error *string

	NotifyUserID  *uint64
	NotifyTitle   string
	NotifyContent string
}

// ApplyPaymentVerify применяет вердикт воркера. Обновляется только
// pending-строка: повторная доставка сообщения по уже закрытому платежу
// становится no-op, а не вторым переходом.
func (s *Storage) ApplyPaymentVerify(ctx context.Context, upd PaymentUpdate) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var tagRows int64
	if upd.Error != nil && *upd.Error != "" {
		tag, err := tx.Exec(ctx, `
UPDATE payments
SET
  verify_fail_count = verify_fail_count + 1,
  last_error = $2,
  next_verify_at = $3,
  updated_at = now()
WHERE id = $1 AND status = $4
`, upd.PaymentID, *upd.Error, upd.NextVerifyAt.UTC(), models.PaymentStatusPending)
		if err != nil {
			return errors.Wrap(err, "update payment (error)")
		}
		tagRows = tag.RowsAffected()
	} else if upd.Status == "" || upd.Status == models.PaymentStatusPending {
		tag, err := tx.Exec(ctx, `
UPDATE payments
SET
  last_error = NULL,
  next_verify_at = $2,
  updated_at = now()
WHERE id = $1 AND status = $3
`, upd.PaymentID, upd.NextVerifyAt.UTC(), models.PaymentStatusPending)
		if err != nil {
			return errors.Wrap(err, "update payment (still pending)")
		}
		tagRows = tag.RowsAffected()
	} else {
		tag, err := tx.Exec(ctx, `
UPDATE payments
SET
  status = $2,
  transaction_id = COALESCE($3, transaction_id),
  verify_fail_count = 0,
  last_error = NULL,
  updated_at = now()
WHERE id = $1 AND status = $4
`, upd.PaymentID, upd.Status, upd.TransactionID, models.PaymentStatusPending)
		if err != nil {
			return errors.Wrap(err, "update payment (terminal)")
		}
		tagRows = tag.RowsAffected()
	}

	if tagRows == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, upd.PaymentID).Scan(&exists); err != nil {
			return errors.Wrap(err, "recheck payment")
		}
		if !exists {
			return errors.Wrap(models.ErrNotFound, "payment for verify")
		}
		// Уже не pending — дубликат вердикта, уведомление не шлём.
		return tx.Commit(ctx)
	}

	if upd.NotifyUserID != nil {
		now := time.Now().UTC()
		_, err = tx.Exec(ctx, `
INSERT INTO notifications (user_id, title, content, created_at, updated_at)
VALUES ($1,$2,$3,$4,$4)
`, *upd.NotifyUserID, upd.NotifyTitle, upd.NotifyContent, now)
		if err != nil {
			return mapPgError(err, "insert payment notification")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}
