package portalapi

import (
	"net/http"

	"github.com/AuroraCargo/CargoPort/internal/services/payments"
)

type checkoutReq struct {
	ShipmentID    *uint64 `json:"shipmentId,omitempty"`
	AmountMinor   int64   `json:"amountMinor"`
	Currency      string  `json:"currency,omitempty"`
	PaymentMethod string  `json:"paymentMethod,omitempty"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	out, err := s.payments.InitializeCheckout(r.Context(), actorFrom(r), payments.CheckoutInput{
		ShipmentID:    req.ShipmentID,
		AmountMinor:   req.AmountMinor,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"payment":          toPaymentView(out.Payment),
		"authorizationUrl": out.AuthorizationURL,
	})
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	list, err := s.payments.ListPayments(r.Context(), actorFrom(r), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": toPaymentViews(list)})
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := s.payments.GetPayment(r.Context(), actorFrom(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentView(p))
}
