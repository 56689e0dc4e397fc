package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"convtrainer/internal/auth"
	"convtrainer/internal/config"
	"convtrainer/internal/progress"
	"convtrainer/internal/registry"
	"convtrainer/internal/store"
	"convtrainer/internal/ws"
)

const testSigningKey = "handlers-test-signing-key"

type testEnv struct {
	srv   *httptest.Server
	store *store.MemoryStore
	cfg   *config.ServerConfig
}

// newTestEnv wires the full stack over the memory store and returns a
// running httptest server.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.NewMemoryStore()
	st.PutUser(store.User{ID: "u-alice", Email: "alice@example.com", Name: "Alice"})
	st.PutUser(store.User{ID: "u-admin", Email: "admin@example.com", Name: "Admin", Role: store.RoleAdmin})

	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Session.SigningKey = testSigningKey

	authSvc := auth.New(st, st, cfg.Session.CookieName, []byte(testSigningKey))
	hub := ws.NewHub()
	prog := progress.New(st)
	t.Cleanup(prog.Close)

	reg := registry.New(registry.Config{
		MaxRooms:      50,
		RoomIdleTTL:   time.Hour,
		Retention:     time.Minute,
		SweepInterval: time.Minute,
	})
	reg.Sink = hub
	reg.TournamentSink = hub
	reg.Results = prog
	reg.Start()
	t.Cleanup(reg.Close)

	h := New(cfg, reg, hub, authSvc, prog, st)
	srv := httptest.NewServer(SetupRouter(h, cfg, &RouterOptions{
		DisableRateLimiting:  true,
		DisableRequestLogger: true,
	}))
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, store: st, cfg: cfg}
}

// sessionCookie mints a signed account session cookie for userID.
func sessionCookie(t *testing.T, cfg *config.ServerConfig, userID string) *http.Cookie {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningKey))
	require.NoError(t, err)
	return &http.Cookie{Name: cfg.Session.CookieName, Value: signed}
}

// doJSON fires a JSON request, optionally with a session cookie, and
// decodes the response body into out when out is non-nil.
func (e *testEnv) doJSON(t *testing.T, method, path string, body any, cookie *http.Cookie, out any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return resp
}

// errorCode extracts the enumerated code from an error body.
func errorCode(t *testing.T, resp map[string]any) string {
	t.Helper()
	code, _ := resp["error"].(string)
	return code
}

func classicRoomBody(displayName string) map[string]any {
	return map[string]any{
		"mode":            "classic",
		"conv":            "binary-standalone",
		"goalType":        "first_to",
		"goalValue":       map[string]any{"firstTo": 3},
		"visibility":      "public",
		"maxPlayers":      4,
		"showLeaderboard": true,
		"displayName":     displayName,
	}
}
