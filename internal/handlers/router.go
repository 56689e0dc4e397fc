package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"convtrainer/internal/config"
	localMiddleware "convtrainer/internal/middleware"
)

// RouterOptions allows customization of router setup for tests.
type RouterOptions struct {
	DisableRateLimiting  bool
	DisableRequestLogger bool
	CustomMiddleware     []func(http.Handler) http.Handler
}

// SetupRouter creates the application router with all routes and middleware.
func SetupRouter(h *Handler, cfg *config.ServerConfig, opts *RouterOptions) *chi.Mux {
	if opts == nil {
		opts = &RouterOptions{}
	}

	r := chi.NewRouter()

	if !opts.DisableRequestLogger {
		r.Use(localMiddleware.RequestLogger())
	}
	r.Use(middleware.Recoverer)
	r.Use(localMiddleware.SecurityHeaders())

	// Principal resolution runs for every route, WS attach included.
	r.Use(h.auth.Middleware)

	if !opts.DisableRateLimiting {
		rateLimiter := localMiddleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateLimitBurst)
		r.Use(rateLimiter.Middleware())
	}

	for _, mw := range opts.CustomMiddleware {
		r.Use(mw)
	}

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// REST tree. The request timeout and body limit apply here only;
	// WS connections outlive any per-request deadline.
	r.Route("/api", func(api chi.Router) {
		api.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		api.Use(middleware.Timeout(cfg.Server.RequestTimeout))
		api.Use(localMiddleware.RequestSizeLimiter(cfg.Server.MaxRequestSize))

		api.Route("/mp/rooms", func(rr chi.Router) {
			rr.Get("/", h.ListRooms)
			rr.Post("/", h.CreateRoom)
			rr.Post("/join", h.JoinRoom)
			rr.Post("/{roomCode}/start", h.StartRoom)
			rr.Get("/{roomCode}/qr", h.RoomQR)
		})

		api.Route("/tournaments", func(tr chi.Router) {
			tr.Post("/", h.CreateTournament)
			tr.Get("/{tournamentCode}", h.GetTournament)
			tr.Post("/{tournamentCode}/join", h.JoinTournament)
			tr.Post("/{tournamentCode}/start", h.StartTournament)
			tr.Get("/{tournamentCode}/brackets", h.TournamentBrackets)
		})

		api.Route("/conversion", func(cr chi.Router) {
			cr.Post("/session", h.CreateSession)
			cr.Post("/scores", h.SubmitScore)
			cr.Get("/leaderboard", h.Leaderboard)
			cr.Get("/daily-leaderboard", h.DailyStreakLeaderboard)
			cr.Get("/xp-leaderboard", h.XPLeaderboard)
			cr.Get("/progress", h.GetProgress)
			cr.Post("/progress", h.UpdateProgress)
			cr.Get("/achievements", h.ListAchievements)
			cr.Post("/achievements/{achievementID}/unlock", h.UnlockAchievement)
		})
	})

	// WebSocket attach points.
	r.Get("/ws/rooms/{roomID}", h.AttachRoom)
	r.Get("/ws/tournaments/{tournamentID}/control", h.AttachTournamentControl)

	// Health check endpoints (no auth required)
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		if err := h.store.Ping(req.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "store is unreachable")
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
