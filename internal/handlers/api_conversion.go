package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"convtrainer/internal/auth"
	"convtrainer/internal/game"
	"convtrainer/internal/progress"
	"convtrainer/internal/store"
)

const defaultLeaderboardLimit = 10

type sessionRequest struct {
	Mode string `json:"mode"`
	Conv string `json:"conv"`
}

// CreateSession mints a single-use score submission token. Auth
// required; guests cannot persist scores.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed request body")
		return
	}
	if !game.Mode(req.Mode).Valid() || !game.Conversion(req.Conv).Valid() {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "unknown mode or conversion")
		return
	}

	p := auth.PrincipalFrom(r.Context())
	sessionID, err := h.auth.IssueGameSession(r.Context(), p, "", req.Mode, req.Conv)
	if err != nil {
		h.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": sessionID})
}

type submitScoreRequest struct {
	SessionID string         `json:"sessionId"`
	Mode      string         `json:"mode"`
	Conv      string         `json:"conv"`
	Score     int            `json:"score"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SubmitScore consumes the session token and records the score.
func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	var req submitScoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed request body")
		return
	}
	if req.SessionID == "" || req.Score < 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "sessionId required and score must be non-negative")
		return
	}

	p := auth.PrincipalFrom(r.Context())
	if !p.IsUser() {
		writeError(w, http.StatusUnauthorized, "FORBIDDEN", "sign in to submit scores")
		return
	}

	err := h.progress.SubmitScore(r.Context(), progress.SubmitScoreInput{
		SessionID: req.SessionID,
		UserID:    p.UserID,
		Mode:      req.Mode,
		Conv:      req.Conv,
		Score:     req.Score,
		Metadata:  req.Metadata,
	})
	if err != nil {
		h.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody)
}

type leaderboardRow struct {
	UserName  string    `json:"userName"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"createdAt"`
}

// Leaderboard serves the top scores for a mode, optionally narrowed to
// one conversion kind. Open endpoint.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	if !game.Mode(mode).Valid() {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "unknown mode")
		return
	}
	conv := r.URL.Query().Get("conv")
	if conv != "" && !game.Conversion(conv).Valid() {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "unknown conversion")
		return
	}

	rows, err := h.progress.Leaderboard(r.Context(), mode, conv, queryLimit(r))
	if err != nil {
		h.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": toLeaderboardRows(rows)})
}

// DailyStreakLeaderboard ranks users by current daily streak.
func (h *Handler) DailyStreakLeaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := h.progress.DailyStreakLeaderboard(r.Context(), queryLimit(r))
	if err != nil {
		h.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": toLeaderboardRows(rows)})
}

type xpRow struct {
	UserName string `json:"userName"`
	TotalXP  int    `json:"totalXp"`
	Level    int    `json:"level"`
}

// XPLeaderboard ranks users by lifetime XP.
func (h *Handler) XPLeaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := h.progress.XPLeaderboard(r.Context(), queryLimit(r))
	if err != nil {
		h.httpError(w, err)
		return
	}
	out := make([]xpRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, xpRow{UserName: row.UserName, TotalXP: row.TotalXP, Level: row.Level})
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": out})
}

type progressResponse struct {
	TotalXP           int    `json:"totalXp"`
	Level             int    `json:"level"`
	BestStreak        int    `json:"bestStreak"`
	BestClassicStreak int    `json:"bestClassicStreak"`
	DailyStreak       int    `json:"dailyStreak"`
	LastPlayedDate    string `json:"lastPlayedDate,omitempty"`
	BestSpeedRound    int    `json:"bestSpeedRound"`
	BestSurvival      int    `json:"bestSurvival"`
	BestNibbleSprint  int    `json:"bestNibbleSprint"`
	GamesPlayed       int    `json:"gamesPlayed"`
}

// GetProgress returns the caller's aggregate progress row.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())
	if !p.IsUser() {
		writeError(w, http.StatusUnauthorized, "FORBIDDEN", "sign in to track progress")
		return
	}
	row, err := h.progress.GetProgress(r.Context(), p.UserID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressResponse(row))
}

type updateProgressRequest struct {
	XPEarned          int  `json:"xpEarned"`
	BestStreak        int  `json:"bestStreak"`
	BestClassicStreak int  `json:"bestClassicStreak"`
	RecordPlayed      bool `json:"recordPlayed"`
}

// UpdateProgress folds a delta into the caller's progress row and
// returns the new row.
func (h *Handler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())
	if !p.IsUser() {
		writeError(w, http.StatusUnauthorized, "FORBIDDEN", "sign in to track progress")
		return
	}
	var req updateProgressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed request body")
		return
	}
	row, err := h.progress.UpdateProgress(r.Context(), p.UserID, progress.UpdateInput{
		XPEarned:          req.XPEarned,
		BestStreak:        req.BestStreak,
		BestClassicStreak: req.BestClassicStreak,
		RecordPlayed:      req.RecordPlayed,
	})
	if err != nil {
		h.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressResponse(row))
}

// UnlockAchievement records an achievement; idempotent.
func (h *Handler) UnlockAchievement(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())
	if !p.IsUser() {
		writeError(w, http.StatusUnauthorized, "FORBIDDEN", "sign in to unlock achievements")
		return
	}
	unlocked, err := h.progress.Unlock(r.Context(), p.UserID, chi.URLParam(r, "achievementID"))
	if err != nil {
		h.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"unlocked": unlocked})
}

type achievementRow struct {
	AchievementID string    `json:"achievementId"`
	UnlockedAt    time.Time `json:"unlockedAt"`
}

// ListAchievements returns the caller's unlocks, oldest first.
func (h *Handler) ListAchievements(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())
	if !p.IsUser() {
		writeError(w, http.StatusUnauthorized, "FORBIDDEN", "sign in to see achievements")
		return
	}
	rows, err := h.progress.Achievements(r.Context(), p.UserID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	out := make([]achievementRow, 0, len(rows))
	for _, a := range rows {
		out = append(out, achievementRow{AchievementID: a.AchievementID, UnlockedAt: a.UnlockedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"achievements": out})
}

func toProgressResponse(p *store.Progress) progressResponse {
	return progressResponse{
		TotalXP:           p.TotalXP,
		Level:             p.Level,
		BestStreak:        p.BestStreak,
		BestClassicStreak: p.BestClassicStreak,
		DailyStreak:       p.DailyStreak,
		LastPlayedDate:    p.LastPlayedDate,
		BestSpeedRound:    p.BestSpeedRound,
		BestSurvival:      p.BestSurvival,
		BestNibbleSprint:  p.BestNibbleSprint,
		GamesPlayed:       p.GamesPlayed,
	}
}

func toLeaderboardRows(rows []store.LeaderboardRow) []leaderboardRow {
	out := make([]leaderboardRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, leaderboardRow{UserName: row.UserName, Score: row.Score, CreatedAt: row.CreatedAt})
	}
	return out
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 1 {
		return defaultLeaderboardLimit
	}
	return n
}
