package portalapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/AuroraCargo/CargoPort/internal/storage/pgportal"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

func (s *Server) handleTrackByNumber(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	sh, events, err := s.shipments.TrackByNumber(r.Context(), number)
	if err != nil {
		writeError(w, err)
		return
	}
	// Публичная страница: без контактов и владельца.
	writeJSON(w, http.StatusOK, map[string]any{
		"trackingNumber":  sh.TrackingNumber,
		"status":          sh.Status,
		"origin":          sh.Origin,
		"destination":     sh.Destination,
		"currentLocation": sh.CurrentLocation,
		"estimatedDelivery": sh.EstimatedDelivery,
		"events":          toEventViews(events),
	})
}

type createShipmentReq struct {
	UserID *uint64 `json:"userId,omitempty"` // только для админа

	Origin           string   `json:"origin"`
	Destination      string   `json:"destination"`
	WeightKg         float64  `json:"weightKg"`
	PhysicalWeightKg *float64 `json:"physicalWeightKg,omitempty"`
	Volume           string   `json:"volume,omitempty"`
	Quantity         *int32   `json:"quantity,omitempty"`
	Term             string   `json:"term,omitempty"`

	SenderName    string `json:"senderName"`
	SenderEmail   string `json:"senderEmail"`
	ReceiverName  string `json:"receiverName"`
	ReceiverEmail string `json:"receiverEmail"`

	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
}

func (s *Server) handleCreateShipment(w http.ResponseWriter, r *http.Request) {
	var req createShipmentReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sh, err := s.shipments.CreateShipment(r.Context(), actorFrom(r), models.ShipmentCreateInput{
		UserID:           req.UserID,
		Origin:           req.Origin,
		Destination:      req.Destination,
		WeightKg:         req.WeightKg,
		PhysicalWeightKg: req.PhysicalWeightKg,
		Volume:           req.Volume,
		Quantity:         req.Quantity,
		Term:             req.Term,
		SenderName:       req.SenderName,
		SenderEmail:      req.SenderEmail,
		ReceiverName:     req.ReceiverName,
		ReceiverEmail:    req.ReceiverEmail,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShipmentView(sh))
}

func (s *Server) handleListShipments(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	list, err := s.shipments.ListShipments(r.Context(), actorFrom(r), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shipments": toShipmentViews(list)})
}

func (s *Server) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sh, err := s.shipments.GetShipment(r.Context(), actorFrom(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentView(sh))
}

func (s *Server) handleQuoteFee(w http.ResponseWriter, r *http.Request) {
	weight, err := strconv.ParseFloat(r.URL.Query().Get("weightKg"), 64)
	if err != nil {
		writeError(w, errors.Wrap(models.ErrValidation, "weightKg query param is required"))
		return
	}
	fee, err := s.shipments.QuoteFee(weight)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"weightKg": weight, "feeMinor": fee})
}

type updateShipmentReq struct {
	Origin            *string    `json:"origin,omitempty"`
	Destination       *string    `json:"destination,omitempty"`
	WeightKg          *float64   `json:"weightKg,omitempty"`
	PhysicalWeightKg  *float64   `json:"physicalWeightKg,omitempty"`
	Volume            *string    `json:"volume,omitempty"`
	Quantity          *int32     `json:"quantity,omitempty"`
	Term              *string    `json:"term,omitempty"`
	CurrentLocation   *string    `json:"currentLocation,omitempty"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
}

func (s *Server) handleUpdateShipment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateShipmentReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sh, err := s.shipments.UpdateDetails(r.Context(), actorFrom(r), id, pgportal.ShipmentDetailsUpdate{
		Origin:            req.Origin,
		Destination:       req.Destination,
		WeightKg:          req.WeightKg,
		PhysicalWeightKg:  req.PhysicalWeightKg,
		Volume:            req.Volume,
		Quantity:          req.Quantity,
		Term:              req.Term,
		CurrentLocation:   req.CurrentLocation,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentView(sh))
}

type transitionReq struct {
	Status   string  `json:"status"`
	Location *string `json:"location,omitempty"`
	Note     *string `json:"note,omitempty"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req transitionReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sh, err := s.shipments.Transition(r.Context(), actorFrom(r), id, req.Status, req.Location, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentView(sh))
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	// Клиентская страница груза читает хронологию (asc), админская
	// консоль — свежие сверху (desc, по умолчанию).
	order := pgportal.EventOrderDesc
	if r.URL.Query().Get("order") == "asc" {
		order = pgportal.EventOrderAsc
	}

	if _, err := s.shipments.GetShipment(r.Context(), actorFrom(r), id); err != nil {
		writeError(w, err)
		return
	}

	limit, offset := pageParams(r)
	events, err := s.shipments.ListEvents(r.Context(), id, order, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": toEventViews(events)})
}

type manualEventReq struct {
	EventType   string  `json:"eventType"`
	Location    *string `json:"location,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (s *Server) handleManualEvent(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req manualEventReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ev, err := s.shipments.AppendManualEvent(r.Context(), actorFrom(r), id, req.EventType, req.Location, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventViews([]*models.TrackingEvent{ev})[0])
}
