package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/broker/messages"
	"github.com/AuroraCargo/CargoPort/internal/feed"
	"github.com/AuroraCargo/CargoPort/internal/integrations/gateway"
	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/AuroraCargo/CargoPort/internal/storage/pgportal"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Repository interface {
	CreatePayment(ctx context.Context, in pgportal.PaymentCreateInput) (*models.Payment, error)
	GetPaymentByID(ctx context.Context, id uint64) (*models.Payment, error)
	GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error)
	ListPayments(ctx context.Context, userID *uint64, limit, offset int) ([]*models.Payment, error)
	ApplyPaymentVerify(ctx context.Context, upd pgportal.PaymentUpdate) error
}

type UserDirectory interface {
	GetUserByID(ctx context.Context, id uint64) (*models.User, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

const defaultCurrency = "NGN"

type Service struct {
	repo     Repository
	users    UserDirectory
	gw       gateway.Client
	producer Producer

	changesTopic string
	provider     string
}

func New(repo Repository, users UserDirectory, gw gateway.Client, producer Producer, changesTopic, provider string) *Service {
	if provider == "" {
		provider = "paystack"
	}
	return &Service{
		repo: repo, users: users, gw: gw, producer: producer,
		changesTopic: changesTopic,
		provider:     provider,
	}
}

type CheckoutInput struct {
	ShipmentID  *uint64
	AmountMinor int64
	Currency    string

	PaymentMethod string
}

type Checkout struct {
	Payment          *models.Payment
	AuthorizationURL string
}

// InitializeCheckout заводит pending-платёж и получает у шлюза ссылку
// на оплату. Reference генерируем сами, чтобы строка в БД существовала
// до первого редиректа покупателя.
func (s *Service) InitializeCheckout(ctx context.Context, actor models.Actor, in CheckoutInput) (*Checkout, error) {
	if actor.IsGuest() {
		return nil, errors.Wrap(models.ErrUnauthorized, "sign in to pay")
	}
	if in.AmountMinor <= 0 {
		return nil, errors.Wrap(models.ErrValidation, "amount must be positive")
	}
	if in.Currency == "" {
		in.Currency = defaultCurrency
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = "card"
	}

	user, err := s.users.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	reference := uuid.NewString()
	initRes, err := s.gw.Initialize(ctx, gateway.InitializeInput{
		Reference:   reference,
		AmountMinor: in.AmountMinor,
		Currency:    in.Currency,
		Email:       user.Email,
	})
	if err != nil {
		return nil, errors.Wrap(err, "gateway initialize")
	}

	p, err := s.repo.CreatePayment(ctx, pgportal.PaymentCreateInput{
		UserID:          actor.UserID,
		ShipmentID:      in.ShipmentID,
		AmountMinor:     in.AmountMinor,
		Currency:        in.Currency,
		PaymentMethod:   in.PaymentMethod,
		PaymentProvider: s.provider,
		Reference:       reference,
	})
	if err != nil {
		return nil, err
	}

	uid := p.UserID
	s.publishChange(ctx, messages.RowChanged{
		Table:      feed.TablePayments,
		Op:         string(feed.OpInsert),
		RowID:      p.ID,
		UserID:     &uid,
		ShipmentID: p.ShipmentID,
	})
	return &Checkout{Payment: p, AuthorizationURL: initRes.AuthorizationURL}, nil
}

func (s *Service) GetPayment(ctx context.Context, actor models.Actor, id uint64) (*models.Payment, error) {
	p, err := s.repo.GetPaymentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && actor.UserID != p.UserID {
		return nil, errors.Wrap(models.ErrUnauthorized, "not your payment")
	}
	return p, nil
}

func (s *Service) ListPayments(ctx context.Context, actor models.Actor, limit, offset int) ([]*models.Payment, error) {
	if actor.IsAdmin {
		return s.repo.ListPayments(ctx, nil, limit, offset)
	}
	if actor.IsGuest() {
		return nil, errors.Wrap(models.ErrUnauthorized, "sign in to list payments")
	}
	uid := actor.UserID
	return s.repo.ListPayments(ctx, &uid, limit, offset)
}

// ApplyVerified применяет вердикт воркера из Kafka. Повторная доставка
// по закрытому платежу в хранилище становится no-op, так что наружу
// уходит не больше одного уведомления.
func (s *Service) ApplyVerified(ctx context.Context, pv messages.PaymentVerified) error {
	p, err := s.repo.GetPaymentByID(ctx, pv.PaymentID)
	if err != nil {
		return err
	}

	upd := pgportal.PaymentUpdate{
		PaymentID:     pv.PaymentID,
		CheckedAt:     pv.CheckedAt,
		TransactionID: pv.TransactionID,
		NextVerifyAt:  pv.NextVerifyAt,
		Error:         pv.Error,
	}

	if pv.Error == nil {
		switch pv.Status {
		case gateway.StatusSuccess:
			upd.Status = models.PaymentStatusCompleted
		case gateway.StatusFailed:
			upd.Status = models.PaymentStatusFailed
		case gateway.StatusAbandoned:
			upd.Status = models.PaymentStatusAbandoned
		}
		if upd.Status != "" {
			uid := p.UserID
			upd.NotifyUserID = &uid
			upd.NotifyTitle, upd.NotifyContent = notifyText(p, upd.Status)
		}
	}

	if err := s.repo.ApplyPaymentVerify(ctx, upd); err != nil {
		return err
	}

	uid := p.UserID
	s.publishChange(ctx, messages.RowChanged{
		Table:      feed.TablePayments,
		Op:         string(feed.OpUpdate),
		RowID:      p.ID,
		UserID:     &uid,
		ShipmentID: p.ShipmentID,
	})
	if upd.NotifyUserID != nil {
		s.publishChange(ctx, messages.RowChanged{
			Table:  feed.TableNotifications,
			Op:     string(feed.OpInsert),
			UserID: upd.NotifyUserID,
		})
	}
	return nil
}

func notifyText(p *models.Payment, status string) (title, content string) {
	amount := fmt.Sprintf("%d.%02d %s", p.AmountMinor/100, p.AmountMinor%100, p.Currency)
	switch status {
	case models.PaymentStatusCompleted:
		return "Payment received", fmt.Sprintf("Your payment of %s was confirmed.", amount)
	case models.PaymentStatusFailed:
		return "Payment failed", fmt.Sprintf("Your payment of %s did not go through.", amount)
	default:
		return "Payment abandoned", fmt.Sprintf("Your payment of %s was not completed and has been closed.", amount)
	}
}

func (s *Service) publishChange(ctx context.Context, rc messages.RowChanged) {
	if s.producer == nil || s.changesTopic == "" {
		return
	}
	if rc.At.IsZero() {
		rc.At = time.Now().UTC()
	}
	b, err := json.Marshal(rc)
	if err != nil {
		slog.Warn("marshal row change", "error", err.Error())
		return
	}
	key := []byte(fmt.Sprintf("%s:%d", rc.Table, rc.RowID))
	if err := s.producer.Publish(ctx, s.changesTopic, key, b); err != nil {
		slog.Warn("publish row change", "table", rc.Table, "row_id", rc.RowID, "error", err.Error())
	}
}
