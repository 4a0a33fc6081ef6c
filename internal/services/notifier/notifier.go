package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/broker/messages"
	"github.com/AuroraCargo/CargoPort/internal/feed"
	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	InsertNotification(ctx context.Context, userID uint64, title, content string) (*models.Notification, error)
	ListNotifications(ctx context.Context, userID uint64, limit, offset int) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID uint64) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Service — инбокс уведомлений. Доставка — это строка в таблице плюс
// сигнал в поток изменений, никаких внешних каналов.
type Service struct {
	repo         Repository
	producer     Producer
	changesTopic string
}

func New(repo Repository, producer Producer, changesTopic string) *Service {
	return &Service{repo: repo, producer: producer, changesTopic: changesTopic}
}

func (s *Service) Notify(ctx context.Context, userID uint64, title, content string) (*models.Notification, error) {
	if userID == 0 {
		return nil, errors.Wrap(models.ErrValidation, "userId is required")
	}
	if title == "" {
		return nil, errors.Wrap(models.ErrValidation, "title is required")
	}

	n, err := s.repo.InsertNotification(ctx, userID, title, content)
	if err != nil {
		return nil, err
	}

	s.publishChange(ctx, messages.RowChanged{
		Table:  feed.TableNotifications,
		Op:     string(feed.OpInsert),
		RowID:  n.ID,
		UserID: &n.UserID,
	})
	return n, nil
}

func (s *Service) List(ctx context.Context, actor models.Actor, limit, offset int) ([]*models.Notification, error) {
	if actor.IsGuest() {
		return nil, errors.Wrap(models.ErrUnauthorized, "sign in to read notifications")
	}
	return s.repo.ListNotifications(ctx, actor.UserID, limit, offset)
}

func (s *Service) MarkRead(ctx context.Context, actor models.Actor, notificationID uint64) error {
	if actor.IsGuest() {
		return errors.Wrap(models.ErrUnauthorized, "sign in to read notifications")
	}
	if err := s.repo.MarkNotificationRead(ctx, actor.UserID, notificationID); err != nil {
		return err
	}
	uid := actor.UserID
	s.publishChange(ctx, messages.RowChanged{
		Table:  feed.TableNotifications,
		Op:     string(feed.OpUpdate),
		RowID:  notificationID,
		UserID: &uid,
	})
	return nil
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
