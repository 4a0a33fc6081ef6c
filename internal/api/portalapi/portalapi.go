package portalapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/AuroraCargo/CargoPort/internal/feed"
	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/AuroraCargo/CargoPort/internal/services/notifier"
	"github.com/AuroraCargo/CargoPort/internal/services/payments"
	"github.com/AuroraCargo/CargoPort/internal/services/shipments"
	"github.com/AuroraCargo/CargoPort/internal/services/support"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
)

type TokenDirectory interface {
	GetUserByToken(ctx context.Context, token string) (*models.User, error)
}

type Server struct {
	shipments *shipments.Service
	notifier  *notifier.Service
	support   *support.Service
	payments  *payments.Service
	hub       *feed.Hub
	tokens    TokenDirectory
}

func New(
	shipmentsSvc *shipments.Service,
	notifierSvc *notifier.Service,
	supportSvc *support.Service,
	paymentsSvc *payments.Service,
	hub *feed.Hub,
	tokens TokenDirectory,
) *Server {
	return &Server{
		shipments: shipmentsSvc,
		notifier:  notifierSvc,
		support:   supportSvc,
		payments:  paymentsSvc,
		hub:       hub,
		tokens:    tokens,
	}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.withActor)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	// Публичный трекинг по номеру, без авторизации.
	r.Get("/track/{number}", s.handleTrackByNumber)

	r.Route("/shipments", func(r chi.Router) {
		r.Get("/", s.handleListShipments)
		r.Post("/", s.handleCreateShipment)
		r.Get("/quote", s.handleQuoteFee)
		r.Get("/{id}", s.handleGetShipment)
		r.Patch("/{id}", s.handleUpdateShipment)
		r.Post("/{id}/status", s.handleTransition)
		r.Get("/{id}/events", s.handleListEvents)
		r.Post("/{id}/events", s.handleManualEvent)
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", s.handleListNotifications)
		r.Post("/{id}/read", s.handleMarkNotificationRead)
	})

	r.Route("/support/conversations", func(r chi.Router) {
		r.Get("/", s.handleListConversations)
		r.Post("/", s.handleStartConversation)
		r.Get("/{id}", s.handleGetThread)
		r.Post("/{id}/messages", s.handleAppendMessage)
		r.Post("/{id}/read", s.handleMarkThreadRead)
		r.Post("/{id}/status", s.handleSetThreadStatus)
	})

	r.Route("/payments", func(r chi.Router) {
		r.Get("/", s.handleListPayments)
		r.Post("/checkout", s.handleCheckout)
		r.Get("/{id}", s.handleGetPayment)
	})

	r.Get("/stream", s.handleStream)

	return r
}

type ctxKey int

const actorKey ctxKey = 0

// withActor превращает bearer-токен в актора. Без токена запрос идёт
// дальше как гостевой: публичные ручки работают, остальные вернут 401.
func (s *Server) withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var actor models.Actor

		h := r.Header.Get("Authorization")
		if token, ok := strings.CutPrefix(h, "Bearer "); ok && token != "" {
			u, err := s.tokens.GetUserByToken(r.Context(), token)
			if err != nil && !errors.Is(err, models.ErrNotFound) {
				writeError(w, err)
				return
			}
			if err != nil {
				writeError(w, errors.Wrap(models.ErrUnauthorized, "unknown token"))
				return
			}
			actor = models.Actor{UserID: u.ID, IsAdmin: u.IsAdmin}
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(r *http.Request) models.Actor {
	a, _ := r.Context().Value(actorKey).(models.Actor)
	return a
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, models.ErrExternal):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err.Error())
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(models.ErrValidation, "invalid json body")
	}
	return nil
}

func idParam(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, errors.Wrap(models.ErrValidation, "invalid id")
	}
	return id, nil
}

func pageParams(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	offset, _ = strconv.Atoi(q.Get("offset"))
	return limit, offset
}
