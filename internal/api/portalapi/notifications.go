package portalapi

import "net/http"

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	list, err := s.notifier.List(r.Context(), actorFrom(r), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": toNotificationViews(list)})
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.notifier.MarkRead(r.Context(), actorFrom(r), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}
