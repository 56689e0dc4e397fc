package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"convtrainer/internal/auth"
	"convtrainer/internal/game"
	"convtrainer/internal/tournament"
)

type createTournamentRequest struct {
	Name        string          `json:"name"`
	Mode        game.Mode       `json:"mode"`
	Conv        game.Conversion `json:"conv"`
	GoalType    game.GoalType   `json:"goalType"`
	GoalValue   game.GoalValue  `json:"goalValue"`
	BracketSize int             `json:"bracketSize"`
	MaxPlayers  int             `json:"maxPlayers"`
}

type createTournamentResponse struct {
	TournamentID   string `json:"tournamentId"`
	TournamentCode string `json:"tournamentCode"`
}

// CreateTournament registers a tournament. Admin only.
func (h *Handler) CreateTournament(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())
	if !p.IsAdmin() {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "admin role required")
		return
	}

	var req createTournamentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed request body")
		return
	}
	cfg := tournament.Config{
		Name:        req.Name,
		Mode:        req.Mode,
		Conv:        req.Conv,
		GoalType:    req.GoalType,
		GoalValue:   req.GoalValue,
		BracketSize: req.BracketSize,
		MaxPlayers:  req.MaxPlayers,
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	t, err := h.registry.CreateTournament(p.UserID, cfg)
	if err != nil {
		h.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, createTournamentResponse{
		TournamentID:   t.ID,
		TournamentCode: t.Code,
	})
}

type tournamentInfoResponse struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Status           string          `json:"status"`
	Mode             game.Mode       `json:"mode"`
	Conv             game.Conversion `json:"conv"`
	GoalType         game.GoalType   `json:"goalType"`
	GoalValue        game.GoalValue  `json:"goalValue"`
	BracketSize      int             `json:"bracketSize"`
	MaxPlayers       int             `json:"maxPlayers"`
	ParticipantCount int             `json:"participantCount"`
	CanStart         bool            `json:"canStart"`
}

// GetTournament returns one tournament's public view. canStart reports
// whether the caller could start it right now.
func (h *Handler) GetTournament(w http.ResponseWriter, r *http.Request) {
	t, err := h.registry.TournamentByCode(chi.URLParam(r, "tournamentCode"))
	if err != nil {
		h.httpError(w, err)
		return
	}
	p := auth.PrincipalFrom(r.Context())
	info := t.Info()
	writeJSON(w, http.StatusOK, tournamentInfoResponse{
		ID:               info.ID,
		Name:             info.Name,
		Status:           string(info.Status),
		Mode:             info.Mode,
		Conv:             info.Conv,
		GoalType:         info.GoalType,
		GoalValue:        info.GoalValue,
		BracketSize:      info.BracketSize,
		MaxPlayers:       info.MaxPlayers,
		ParticipantCount: info.ParticipantCount,
		CanStart:         p.IsAdmin() && info.Status == tournament.StatusLobby && info.ParticipantCount > 0,
	})
}

type joinTournamentRequest struct {
	DisplayName string `json:"displayName"`
}

type joinTournamentResponse struct {
	TournamentID     string `json:"tournamentId"`
	RoomID           string `json:"roomId"`
	ParticipantID    string `json:"participantId"`
	BracketIndex     int    `json:"bracketIndex"`
	ParticipantToken string `json:"participantToken"`
}

// JoinTournament places the caller into a bracket room.
func (h *Handler) JoinTournament(w http.ResponseWriter, r *http.Request) {
	var req joinTournamentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed request body")
		return
	}
	t, err := h.registry.TournamentByCode(chi.URLParam(r, "tournamentCode"))
	if err != nil {
		h.httpError(w, err)
		return
	}

	p := auth.PrincipalFrom(r.Context())
	guestTag := ""
	if p.IsGuest() {
		guestTag = auth.EnsureGuestTag(w, r)
	}

	out, err := t.Join(r.Context(), tournament.JoinInput{
		DisplayName: req.DisplayName,
		UserID:      p.UserID,
		GuestTag:    guestTag,
	})
	if err != nil {
		h.httpError(w, err)
		return
	}

	token, err := h.auth.IssueParticipantToken(out.RoomID, out.ParticipantID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joinTournamentResponse{
		TournamentID:     out.TournamentID,
		RoomID:           out.RoomID,
		ParticipantID:    out.ParticipantID,
		BracketIndex:     out.BracketIndex,
		ParticipantToken: token,
	})
}

// StartTournament launches every bracket. Admin only.
func (h *Handler) StartTournament(w http.ResponseWriter, r *http.Request) {
	t, err := h.registry.TournamentByCode(chi.URLParam(r, "tournamentCode"))
	if err != nil {
		h.httpError(w, err)
		return
	}
	p := auth.PrincipalFrom(r.Context())
	if err := t.Start(r.Context(), p.IsAdmin()); err != nil {
		h.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody)
}

// TournamentBrackets returns the occupancy of every bracket.
func (h *Handler) TournamentBrackets(w http.ResponseWriter, r *http.Request) {
	t, err := h.registry.TournamentByCode(chi.URLParam(r, "tournamentCode"))
	if err != nil {
		h.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"brackets": t.Brackets()})
}
