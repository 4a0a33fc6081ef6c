package feed

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Имена таблиц, по которым подписчики режут поток.
const (
	TableShipments      = "shipments"
	TableTrackingEvents = "tracking_events"
	TableNotifications  = "notifications"
	TableConversations  = "support_conversations"
	TableMessages       = "support_messages"
	TablePayments       = "payments"
)

// Change — сигнал "строка таблицы изменилась". Подписчик обязан
// перечитать данные сам: payload носит только адресацию строки,
// доверять ему как дельте нельзя.
type Change struct {
	Table string    `json:"table"`
	Op    Op        `json:"op"`
	RowID uint64    `json:"rowId"`
	At    time.Time `json:"at"`

	// Для предикатов "только мои строки" / "только этот тред".
	UserID         *uint64 `json:"userId,omitempty"`
	ShipmentID     *uint64 `json:"shipmentId,omitempty"`
	ConversationID *uint64 `json:"conversationId,omitempty"`
}

type Predicate func(Change) bool

// Hub — внутрипроцессный fan-out изменений строк. Писатель не знает,
// кто смотрит; смотрящие не знают, кто пишет.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[string]*Subscription // table -> sub id -> sub
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[string]*Subscription{}}
}

type Subscription struct {
	id    string
	table string
	pred  Predicate
	ch    chan Change

	hub    *Hub
	closed bool
}

const subBuffer = 16

// Subscribe регистрирует подписку на одну таблицу. pred == nil — без
// фильтра. Канал буферизован; при переполнении событие отбрасывается,
// это допустимо: семантика потока "перечитай", а не "вот дельта".
func (h *Hub) Subscribe(table string, pred Predicate) *Subscription {
	s := &Subscription{
		id:    uuid.NewString(),
		table: table,
		pred:  pred,
		ch:    make(chan Change, subBuffer),
		hub:   h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[table] == nil {
		h.subs[table] = map[string]*Subscription{}
	}
	h.subs[table][s.id] = s
	return s
}

func (s *Subscription) C() <-chan Change { return s.ch }

// Close идемпотентен: повторный вызов ничего не делает. После Close
// событий в канал не приходит, канал закрывается.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(s.hub.subs[s.table], s.id)
	close(s.ch)
}

func (h *Hub) Publish(c Change) {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs[c.Table] {
		if s.pred != nil && !s.pred(c) {
			continue
		}
		select {
		case s.ch <- c:
		default:
		}
	}
}

// SubscriberCount нужен только для стат-эндпоинта.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, m := range h.subs {
		n += len(m)
	}
	return n
}
