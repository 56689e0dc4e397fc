package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"convtrainer/internal/auth"
)

// AttachRoom validates the participant's reconnect token and hands the
// connection to the hub. Rejections happen before the upgrade, as plain
// HTTP errors.
func (h *Handler) AttachRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	participantID := r.URL.Query().Get("participantId")
	token := r.URL.Query().Get("token")
	if participantID == "" || token == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "participantId and token are required")
		return
	}

	room, err := h.registry.Room(roomID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	if err := h.auth.VerifyParticipantToken(token, roomID, participantID); err != nil {
		h.httpError(w, err)
		return
	}
	if !room.Snapshot().Has(participantID) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "participant is not in this room")
		return
	}

	h.hub.ServeRoom(w, r, room, participantID)
}

// AttachTournamentControl serves the admin control channel: bracket
// occupancy updates and the final aggregate leaderboard.
func (h *Handler) AttachTournamentControl(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())
	if !p.IsAdmin() {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "admin role required")
		return
	}
	t, err := h.registry.Tournament(chi.URLParam(r, "tournamentID"))
	if err != nil {
		h.httpError(w, err)
		return
	}
	h.hub.ServeTournament(w, r, t)
}
