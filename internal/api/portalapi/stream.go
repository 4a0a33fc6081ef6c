package portalapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/feed"
	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/pkg/errors"
)

const heartbeatInterval = 15 * time.Second

var streamTables = []string{
	feed.TableShipments,
	feed.TableTrackingEvents,
	feed.TableNotifications,
	feed.TableConversations,
	feed.TableMessages,
	feed.TablePayments,
}

// handleStream — SSE-поток изменений строк. Клиент получает адрес
// изменившейся строки и перечитывает её обычной ручкой; дельты по
// проводу не ездят.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.IsGuest() {
		writeError(w, errors.Wrap(models.ErrUnauthorized, "sign in to stream changes"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errors.New("streaming unsupported"))
		return
	}

	tables := streamTables
	if raw := r.URL.Query().Get("tables"); raw != "" {
		tables = nil
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			if isStreamTable(t) {
				tables = append(tables, t)
			}
		}
		if len(tables) == 0 {
			writeError(w, errors.Wrap(models.ErrValidation, "no known tables requested"))
			return
		}
	}

	var pred feed.Predicate
	if !actor.IsAdmin {
		uid := actor.UserID
		// Клиент видит только адресованные ему строки.
		pred = func(c feed.Change) bool {
			return c.UserID != nil && *c.UserID == uid
		}
	}

	// Fan-in подписок по таблицам в один канал на соединение.
	out := make(chan feed.Change, 64)
	subs := make([]*feed.Subscription, 0, len(tables))
	for _, table := range tables {
		sub := s.hub.Subscribe(table, pred)
		subs = append(subs, sub)
		go func() {
			for c := range sub.C() {
				select {
				case out <- c:
				default:
				}
			}
		}()
	}
	defer func() {
		for _, sub := range subs {
			sub.Close()
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case c := <-out:
			b, err := json.Marshal(c)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: change\ndata: %s\n\n", b); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func isStreamTable(t string) bool {
	for _, known := range streamTables {
		if t == known {
			return true
		}
	}
	return false
}
