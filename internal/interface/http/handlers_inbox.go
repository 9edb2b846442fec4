package http

import (
	"net/http"
	"strconv"

	"github.com/superheroes-club/luz-engine/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION INBOX HANDLERS
// Every caller reads and updates only their own inbox.
// ══════════════════════════════════════════════════════════════════════════════

// handleListNotifications handles GET /api/v1/notifications?page=&limit=
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	page, ok := intParam(w, r, "page")
	if !ok {
		return
	}
	limit, ok := intParam(w, r, "limit")
	if !ok {
		return
	}
	res, err := s.deps.Notifications.List(r.Context(), actor(r), page, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleUnreadNotifications handles GET /api/v1/notifications/unread
func (s *Server) handleUnreadNotifications(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Notifications.Unread(r.Context(), actor(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleMarkRead handles PUT /api/v1/notifications/{id}/read
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.MarkRead.Handle(r.Context(), command.MarkNotificationReadCommand{
		Actor:          actor(r),
		NotificationID: r.PathValue("id"),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// handleMarkAllRead handles PUT /api/v1/notifications/read-all
func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	marked, err := s.deps.MarkAllRead.Handle(r.Context(), command.MarkAllNotificationsReadCommand{Actor: actor(r)})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": marked})
}

// intParam reads an optional positive query parameter; absent means 0.
func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		badRequest(w, name+" must be a positive number")
		return 0, false
	}
	return v, true
}
