package portalapi

import (
	"net/http"

	"github.com/AuroraCargo/CargoPort/internal/services/support"
)

type startConversationReq struct {
	Title   string `json:"title"`
	Message string `json:"message"`

	GuestName  string `json:"guestName,omitempty"`
	GuestEmail string `json:"guestEmail,omitempty"`
}

func (s *Server) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	var req startConversationReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	conv, msg, err := s.support.Start(r.Context(), actorFrom(r), support.StartInput{
		Title:        req.Title,
		FirstMessage: req.Message,
		GuestName:    req.GuestName,
		GuestEmail:   req.GuestEmail,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"conversation": toConversationView(conv),
		"message":      toMessageView(msg),
	})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	list, err := s.support.ListConversations(r.Context(), actorFrom(r), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]conversationView, 0, len(list))
	for _, c := range list {
		out = append(out, toConversationView(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": out})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	th, err := s.support.GetThread(r.Context(), actorFrom(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation":      toConversationView(th.Conversation),
		"messages":          toMessageViews(th.Messages),
		"unreadForCustomer": th.UnreadForCustomer,
		"unreadForAdmin":    th.UnreadForAdmin,
	})
}

type appendMessageReq struct {
	Message string `json:"message"`

	GuestName  string `json:"guestName,omitempty"`
	GuestEmail string `json:"guestEmail,omitempty"`
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req appendMessageReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	actor := actorFrom(r)
	if actor.IsGuest() {
		msg, err := s.support.AppendAsGuest(r.Context(), id, req.GuestName, req.GuestEmail, req.Message)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toMessageView(msg))
		return
	}

	msg, err := s.support.Append(r.Context(), actor, id, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageView(msg))
}

func (s *Server) handleMarkThreadRead(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.support.MarkRead(r.Context(), actorFrom(r), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}

type threadStatusReq struct {
	Status string `json:"status"`
}

func (s *Server) handleSetThreadStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req threadStatusReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.support.SetStatus(r.Context(), actorFrom(r), id, req.Status); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}
