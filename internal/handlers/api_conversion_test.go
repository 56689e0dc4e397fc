package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	var errResp map[string]any
	resp := env.doJSON(t, http.MethodPost, "/api/conversion/session",
		map[string]any{"mode": "classic", "conv": "binary-standalone"}, nil, &errResp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestScoreSubmissionFlow(t *testing.T) {
	env := newTestEnv(t)
	user := sessionCookie(t, env.cfg, "u-alice")

	var session struct {
		SessionID string `json:"sessionId"`
	}
	resp := env.doJSON(t, http.MethodPost, "/api/conversion/session",
		map[string]any{"mode": "speed-round", "conv": "hex-standalone"}, user, &session)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, session.SessionID, 32)

	submit := map[string]any{
		"sessionId": session.SessionID,
		"mode":      "speed-round",
		"conv":      "hex-standalone",
		"score":     20,
	}
	resp = env.doJSON(t, http.MethodPost, "/api/conversion/scores", submit, user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Token replay yields CONFLICT.
	var errResp map[string]any
	resp = env.doJSON(t, http.MethodPost, "/api/conversion/scores", submit, user, &errResp)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", errorCode(t, errResp))

	var board struct {
		Leaderboard []leaderboardRow `json:"leaderboard"`
	}
	resp = env.doJSON(t, http.MethodGet, "/api/conversion/leaderboard?mode=speed-round&conv=hex-standalone", nil, nil, &board)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, board.Leaderboard, 1)
	assert.Equal(t, "Alice", board.Leaderboard[0].UserName)
	assert.Equal(t, 20, board.Leaderboard[0].Score)
}

func TestScoreSessionMismatch(t *testing.T) {
	env := newTestEnv(t)
	alice := sessionCookie(t, env.cfg, "u-alice")
	admin := sessionCookie(t, env.cfg, "u-admin")

	var session struct {
		SessionID string `json:"sessionId"`
	}
	env.doJSON(t, http.MethodPost, "/api/conversion/session",
		map[string]any{"mode": "classic", "conv": "binary-standalone"}, alice, &session)

	var errResp map[string]any
	resp := env.doJSON(t, http.MethodPost, "/api/conversion/scores", map[string]any{
		"sessionId": session.SessionID,
		"mode":      "classic",
		"conv":      "binary-standalone",
		"score":     5,
	}, admin, &errResp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", errorCode(t, errResp))
}

func TestProgressEndpoints(t *testing.T) {
	env := newTestEnv(t)
	user := sessionCookie(t, env.cfg, "u-alice")

	var errResp map[string]any
	resp := env.doJSON(t, http.MethodGet, "/api/conversion/progress", nil, nil, &errResp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var prog progressResponse
	resp = env.doJSON(t, http.MethodPost, "/api/conversion/progress", map[string]any{
		"xpEarned":   120,
		"bestStreak": 11,
	}, user, &prog)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 120, prog.TotalXP)
	assert.Equal(t, 1, prog.Level)
	assert.Equal(t, 11, prog.BestStreak)

	resp = env.doJSON(t, http.MethodGet, "/api/conversion/progress", nil, user, &prog)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 120, prog.TotalXP)

	var xpBoard struct {
		Leaderboard []xpRow `json:"leaderboard"`
	}
	resp = env.doJSON(t, http.MethodGet, "/api/conversion/xp-leaderboard", nil, nil, &xpBoard)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, xpBoard.Leaderboard, 1)
	assert.Equal(t, "Alice", xpBoard.Leaderboard[0].UserName)
}

func TestAchievementUnlock(t *testing.T) {
	env := newTestEnv(t)
	user := sessionCookie(t, env.cfg, "u-alice")

	var out map[string]bool
	resp := env.doJSON(t, http.MethodPost, "/api/conversion/achievements/speed_demon/unlock", nil, user, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out["unlocked"])

	resp = env.doJSON(t, http.MethodPost, "/api/conversion/achievements/speed_demon/unlock", nil, user, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, out["unlocked"])

	var errResp map[string]any
	resp = env.doJSON(t, http.MethodPost, "/api/conversion/achievements/fake_badge/unlock", nil, user, &errResp)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var list struct {
		Achievements []achievementRow `json:"achievements"`
	}
	resp = env.doJSON(t, http.MethodGet, "/api/conversion/achievements", nil, user, &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list.Achievements, 1)
	assert.Equal(t, "speed_demon", list.Achievements[0].AchievementID)
}

func TestLeaderboardValidation(t *testing.T) {
	env := newTestEnv(t)
	var errResp map[string]any
	resp := env.doJSON(t, http.MethodGet, "/api/conversion/leaderboard?mode=bogus", nil, nil, &errResp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, errResp))
}
