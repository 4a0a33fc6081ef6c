package shipments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/broker/messages"
	"github.com/AuroraCargo/CargoPort/internal/cache"
	"github.com/AuroraCargo/CargoPort/internal/feed"
	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/AuroraCargo/CargoPort/internal/storage/pgportal"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateShipment(ctx context.Context, trackingNumber string, in models.ShipmentCreateInput) (*models.Shipment, error)
	GetShipmentByID(ctx context.Context, id uint64) (*models.Shipment, error)
	GetShipmentByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Shipment, error)
	ListShipments(ctx context.Context, userID *uint64, limit, offset int) ([]*models.Shipment, error)
	UpdateShipmentDetails(ctx context.Context, id uint64, upd pgportal.ShipmentDetailsUpdate) (*models.Shipment, error)
	ApplyStatusChange(ctx context.Context, chg pgportal.StatusChange) (*models.TrackingEvent, error)
	AppendTrackingEvent(ctx context.Context, shipmentID uint64, eventType string, location, description *string) (*models.TrackingEvent, error)
	ListTrackingEvents(ctx context.Context, shipmentID uint64, order pgportal.EventOrder, limit, offset int) ([]*models.TrackingEvent, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

const maxTrackingNumberAttempts = 5

type Service struct {
	repo     Repository
	cache    cache.BytesCache
	producer Producer

	changesTopic string
	currentTTL   time.Duration

	feePerKgMinor int64
	rnd           Rand
}

func New(repo Repository, c cache.BytesCache, producer Producer, changesTopic string, currentTTL time.Duration, feePerKgMinor int64) *Service {
	if feePerKgMinor <= 0 {
		feePerKgMinor = 1000
	}
	return &Service{
		repo:          repo,
		cache:         c,
		producer:      producer,
		changesTopic:  changesTopic,
		currentTTL:    currentTTL,
		feePerKgMinor: feePerKgMinor,
		rnd:           newRand(),
	}
}

// WithRand подменяет источник случайности (детерминизм в тестах).
func (s *Service) WithRand(r Rand) *Service {
	if r != nil {
		s.rnd = r
	}
	return s
}

// QuoteFee — канонический тариф: плоская ставка за килограмм,
// результат в минорных единицах.
func (s *Service) QuoteFee(weightKg float64) (int64, error) {
	if weightKg <= 0 {
		return 0, errors.Wrap(models.ErrValidation, "weight must be positive")
	}
	return int64(math.Round(weightKg * float64(s.feePerKgMinor))), nil
}

func (s *Service) CreateShipment(ctx context.Context, actor models.Actor, in models.ShipmentCreateInput) (*models.Shipment, error) {
	if actor.IsGuest() {
		return nil, errors.Wrap(models.ErrUnauthorized, "guest cannot create shipments")
	}
	if in.Origin == "" {
		return nil, errors.Wrap(models.ErrValidation, "origin is required")
	}
	if in.Destination == "" {
		return nil, errors.Wrap(models.ErrValidation, "destination is required")
	}
	if in.WeightKg <= 0 {
		return nil, errors.Wrap(models.ErrValidation, "weight must be positive")
	}

	// Клиент создаёт только свои грузы; владельца из формы не берём.
	// Админ может завести груз и без владельца.
	if !actor.IsAdmin {
		uid := actor.UserID
		in.UserID = &uid
	}

	var sh *models.Shipment
	var err error
	for attempt := 0; attempt < maxTrackingNumberAttempts; attempt++ {
		sh, err = s.repo.CreateShipment(ctx, generateTrackingNumber(s.rnd), in)
		if err == nil {
			break
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		// Коллизия номера: перегенерируем и пробуем снова.
	}
	if err != nil {
		return nil, errors.Wrap(err, "allocate tracking number")
	}

	s.publishChange(ctx, messages.RowChanged{
		Table:  feed.TableShipments,
		Op:     string(feed.OpInsert),
		RowID:  sh.ID,
		UserID: sh.UserID,
	})
	return sh, nil
}

func (s *Service) GetShipment(ctx context.Context, actor models.Actor, id uint64) (*models.Shipment, error) {
	if id == 0 {
		return nil, errors.Wrap(models.ErrValidation, "shipmentId is required")
	}

	if sh, ok := s.cachedShipment(ctx, id); ok {
		return s.authorizeRead(actor, sh)
	}

	sh, err := s.repo.GetShipmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheShipment(ctx, sh)
	return s.authorizeRead(actor, sh)
}

// TrackByNumber — публичная страница трекинга: груз плюс таймлайн,
// без авторизации.
func (s *Service) TrackByNumber(ctx context.Context, trackingNumber string) (*models.Shipment, []*models.TrackingEvent, error) {
	if !ValidTrackingNumber(trackingNumber) {
		return nil, nil, errors.Wrap(models.ErrValidation, "malformed tracking number")
	}
	sh, err := s.repo.GetShipmentByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, nil, err
	}
	evs, err := s.repo.ListTrackingEvents(ctx, sh.ID, pgportal.EventOrderAsc, 0, 0)
	if err != nil {
		return nil, nil, err
	}
	return sh, evs, nil
}

func (s *Service) ListShipments(ctx context.Context, actor models.Actor, limit, offset int) ([]*models.Shipment, error) {
	if actor.IsAdmin {
		return s.repo.ListShipments(ctx, nil, limit, offset)
	}
	if actor.IsGuest() {
		return nil, errors.Wrap(models.ErrUnauthorized, "sign in to list shipments")
	}
	uid := actor.UserID
	return s.repo.ListShipments(ctx, &uid, limit, offset)
}

// Transition проводит груз по ребру графа. Эффекты (статус, событие,
// уведомление владельцу) применяются хранилищем одной транзакцией.
func (s *Service) Transition(ctx context.Context, actor models.Actor, shipmentID uint64, to string, location, note *string) (*models.Shipment, error) {
	if !actor.IsAdmin {
		return nil, errors.Wrap(models.ErrUnauthorized, "status changes are admin-only")
	}
	if !models.IsKnownStatus(to) {
		return nil, errors.Wrapf(models.ErrValidation, "unknown status %q", to)
	}

	sh, err := s.repo.GetShipmentByID(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(sh.Status, to) {
		return nil, errors.Wrapf(models.ErrValidation, "transition %q -> %q is not allowed", sh.Status, to)
	}

	chg := pgportal.StatusChange{
		ShipmentID:  shipmentID,
		FromStatus:  sh.Status,
		ToStatus:    to,
		Location:    location,
		Description: note,
	}
	if sh.UserID != nil {
		chg.NotifyUserID = sh.UserID
		chg.NotifyTitle = "Shipment status updated"
		chg.NotifyContent = fmt.Sprintf("Your shipment %s is now %s.", sh.TrackingNumber, to)
	}

	ev, err := s.repo.ApplyStatusChange(ctx, chg)
	if err != nil {
		return nil, err
	}

	s.invalidateShipment(ctx, shipmentID)
	s.publishChange(ctx, messages.RowChanged{
		Table:  feed.TableShipments,
		Op:     string(feed.OpUpdate),
		RowID:  shipmentID,
		UserID: sh.UserID,
	})
	s.publishChange(ctx, messages.RowChanged{
		Table:      feed.TableTrackingEvents,
		Op:         string(feed.OpInsert),
		RowID:      ev.ID,
		ShipmentID: &shipmentID,
		UserID:     sh.UserID,
	})
	if sh.UserID != nil {
		s.publishChange(ctx, messages.RowChanged{
			Table:  feed.TableNotifications,
			Op:     string(feed.OpInsert),
			RowID:  0, // подписчик перечитает список, id не нужен
			UserID: sh.UserID,
		})
	}

	return s.repo.GetShipmentByID(ctx, shipmentID)
}

func (s *Service) ListEvents(ctx context.Context, shipmentID uint64, order pgportal.EventOrder, limit, offset int) ([]*models.TrackingEvent, error) {
	if shipmentID == 0 {
		return nil, errors.Wrap(models.ErrValidation, "shipmentId is required")
	}
	return s.repo.ListTrackingEvents(ctx, shipmentID, order, limit, offset)
}

// AppendManualEvent — событие "вне графа" (таможня, перегрузка),
// статус груза не меняет.
func (s *Service) AppendManualEvent(ctx context.Context, actor models.Actor, shipmentID uint64, eventType string, location, description *string) (*models.TrackingEvent, error) {
	if !actor.IsAdmin {
		return nil, errors.Wrap(models.ErrUnauthorized, "manual events are admin-only")
	}
	if eventType == "" {
		return nil, errors.Wrap(models.ErrValidation, "eventType is required")
	}
	ev, err := s.repo.AppendTrackingEvent(ctx, shipmentID, eventType, location, description)
	if err != nil {
		return nil, err
	}
	s.publishChange(ctx, messages.RowChanged{
		Table:      feed.TableTrackingEvents,
		Op:         string(feed.OpInsert),
		RowID:      ev.ID,
		ShipmentID: &shipmentID,
	})
	return ev, nil
}

func (s *Service) UpdateDetails(ctx context.Context, actor models.Actor, shipmentID uint64, upd pgportal.ShipmentDetailsUpdate) (*models.Shipment, error) {
	if !actor.IsAdmin {
		return nil, errors.Wrap(models.ErrUnauthorized, "shipment edits are admin-only")
	}
	sh, err := s.repo.UpdateShipmentDetails(ctx, shipmentID, upd)
	if err != nil {
		return nil, err
	}
	s.invalidateShipment(ctx, shipmentID)
	s.publishChange(ctx, messages.RowChanged{
		Table:  feed.TableShipments,
		Op:     string(feed.OpUpdate),
		RowID:  shipmentID,
		UserID: sh.UserID,
	})
	return sh, nil
}

// ApplyRowChanged вызывается консьюмером топика изменений:
// освежаем кэш текущего состояния груза из базы.
func (s *Service) ApplyRowChanged(ctx context.Context, msg messages.RowChanged) error {
	if msg.Table != feed.TableShipments {
		return nil
	}
	if msg.RowID == 0 {
		return errors.New("row_id is required")
	}
	if s.cache == nil || s.currentTTL <= 0 {
		return nil
	}
	if msg.Op == string(feed.OpDelete) {
		return s.cache.Del(ctx, shipmentKey(msg.RowID))
	}

	sh, err := s.repo.GetShipmentByID(ctx, msg.RowID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return s.cache.Del(ctx, shipmentKey(msg.RowID))
		}
		return err
	}
	s.cacheShipment(ctx, sh)
	return nil
}

func (s *Service) authorizeRead(actor models.Actor, sh *models.Shipment) (*models.Shipment, error) {
	if actor.IsAdmin {
		return sh, nil
	}
	if sh.UserID != nil && actor.UserID == *sh.UserID {
		return sh, nil
	}
	return nil, errors.Wrap(models.ErrUnauthorized, "not your shipment")
}

func (s *Service) cachedShipment(ctx context.Context, id uint64) (*models.Shipment, bool) {
	if s.cache == nil || s.currentTTL <= 0 {
		return nil, false
	}
	b, ok, err := s.cache.Get(ctx, shipmentKey(id))
	if err != nil || !ok {
		return nil, false
	}
	var sh models.Shipment
	if json.Unmarshal(b, &sh) != nil {
		return nil, false
	}
	return &sh, true
}

func (s *Service) cacheShipment(ctx context.Context, sh *models.Shipment) {
	if s.cache == nil || s.currentTTL <= 0 {
		return
	}
	b, _ := json.Marshal(sh)
	_ = s.cache.Set(ctx, shipmentKey(sh.ID), b, s.currentTTL)
}

func (s *Service) invalidateShipment(ctx context.Context, id uint64) {
	if s.cache == nil || s.currentTTL <= 0 {
		return
	}
	_ = s.cache.Del(ctx, shipmentKey(id))
}

// publishChange — best effort: запись уже в базе, потерянный сигнал
// чинится следующим событием или ручным обновлением. Ошибку логируем
// как warning, наружу не отдаём.
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

func shipmentKey(id uint64) string {
	return fmt.Sprintf("shipment:%d:current", id)
}
