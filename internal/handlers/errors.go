package handlers

import (
	"errors"
	"net/http"

	"convtrainer/internal/auth"
	"convtrainer/internal/game"
	"convtrainer/internal/progress"
	"convtrainer/internal/registry"
	"convtrainer/internal/store"
	"convtrainer/internal/tournament"
)

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError writes the enumerated error code with its status.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// httpError maps a sentinel to its status and enumerated code. Unknown
// errors become INTERNAL without leaking their text.
func (h *Handler) httpError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.WithError(err).Error("request failed")
		msg = "internal error"
	}
	writeError(w, status, code, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, game.ErrRoomNotFound),
		errors.Is(err, game.ErrRoomEnded),
		errors.Is(err, tournament.ErrTournamentNotFound),
		errors.Is(err, tournament.ErrTournamentEnded),
		errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, progress.ErrSessionNotFound),
		errors.Is(err, progress.ErrUnknownAchievement):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, game.ErrRoomFull):
		return http.StatusConflict, "ROOM_FULL"
	case errors.Is(err, tournament.ErrTournamentFull):
		return http.StatusConflict, "FULL"
	case errors.Is(err, game.ErrRoomStarted),
		errors.Is(err, tournament.ErrTournamentStarted):
		return http.StatusConflict, "ROOM_STARTED"
	case errors.Is(err, game.ErrPasswordRequired):
		return http.StatusUnauthorized, "PASSWORD_REQUIRED"
	case errors.Is(err, game.ErrPasswordInvalid):
		return http.StatusForbidden, "PASSWORD_INVALID"
	case errors.Is(err, game.ErrNameInvalid),
		errors.Is(err, tournament.ErrNoPlayers):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, game.ErrNotHost),
		errors.Is(err, game.ErrSpectator),
		errors.Is(err, tournament.ErrNotAdmin),
		errors.Is(err, progress.ErrSessionMismatch),
		errors.Is(err, auth.ErrTokenMismatch),
		errors.Is(err, auth.ErrTokenInvalid):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, auth.ErrGuestsCannotScore):
		return http.StatusUnauthorized, "FORBIDDEN"
	case errors.Is(err, progress.ErrSessionUsed),
		errors.Is(err, progress.ErrSessionExpired),
		errors.Is(err, store.ErrDuplicateScore),
		errors.Is(err, registry.ErrCodeCollision):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, registry.ErrTooManyRooms):
		return http.StatusServiceUnavailable, "SERVER_FULL"
	case errors.Is(err, game.ErrBackpressure):
		return http.StatusServiceUnavailable, "BACKPRESSURE"
	case errors.Is(err, game.ErrRoomClosed):
		return http.StatusNotFound, "NOT_FOUND"
	}
	return http.StatusInternalServerError, "INTERNAL"
}
