package handlers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yeqown/go-qrcode/v2"
	"github.com/yeqown/go-qrcode/writer/standard"

	"convtrainer/internal/auth"
	"convtrainer/internal/game"
)

type createRoomRequest struct {
	Mode            game.Mode       `json:"mode"`
	Conv            game.Conversion `json:"conv"`
	GoalType        game.GoalType   `json:"goalType"`
	GoalValue       game.GoalValue  `json:"goalValue"`
	Visibility      game.Visibility `json:"visibility"`
	Password        string          `json:"password,omitempty"`
	MaxPlayers      int             `json:"maxPlayers"`
	ShowLeaderboard bool            `json:"showLeaderboard"`
	ShowPowerTable  bool            `json:"showPowerTable"`
	DisplayName     string          `json:"displayName"`
}

type createRoomResponse struct {
	RoomCode         string `json:"roomCode"`
	RoomID           string `json:"roomId"`
	ParticipantID    string `json:"participantId"`
	ParticipantToken string `json:"participantToken"`
}

// CreateRoom creates a room and seats the caller as its host. Guests
// are allowed; they get a guest tag cookie on first contact.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed request body")
		return
	}

	cfg := game.Config{
		Mode:            req.Mode,
		Conv:            req.Conv,
		GoalType:        req.GoalType,
		GoalValue:       req.GoalValue,
		Visibility:      req.Visibility,
		MaxPlayers:      req.MaxPlayers,
		ShowLeaderboard: req.ShowLeaderboard,
		ShowPowerTable:  req.ShowPowerTable,
	}
	if req.Password != "" {
		hash, err := game.HashPassword(req.Password)
		if err != nil {
			h.httpError(w, err)
			return
		}
		cfg.PasswordHash = hash
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	p := auth.PrincipalFrom(r.Context())
	guestTag := ""
	if p.IsGuest() {
		guestTag = auth.EnsureGuestTag(w, r)
	}

	room, err := h.registry.CreateRoom(cfg)
	if err != nil {
		h.httpError(w, err)
		return
	}

	res, err := room.Join(r.Context(), game.JoinInput{
		DisplayName: req.DisplayName,
		Role:        game.RolePlayer,
		UserID:      p.UserID,
		GuestTag:    guestTag,
		AsHost:      true,
	})
	if err != nil {
		h.httpError(w, err)
		return
	}

	token, err := h.auth.IssueParticipantToken(room.ID, res.ParticipantID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, createRoomResponse{
		RoomCode:         room.Code,
		RoomID:           room.ID,
		ParticipantID:    res.ParticipantID,
		ParticipantToken: token,
	})
}

type joinRoomRequest struct {
	RoomCode    string `json:"roomCode"`
	Password    string `json:"password,omitempty"`
	DisplayName string `json:"displayName"`
	AsSpectator bool   `json:"asSpectator"`
}

type joinRoomResponse struct {
	RoomID           string `json:"roomId"`
	ParticipantID    string `json:"participantId"`
	ParticipantToken string `json:"participantToken"`
}

// JoinRoom seats the caller in an existing room by code.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed request body")
		return
	}

	room, err := h.registry.RoomByCode(req.RoomCode)
	if err != nil {
		h.httpError(w, err)
		return
	}
	if err := room.VerifyPassword(req.Password); err != nil {
		h.httpError(w, err)
		return
	}

	p := auth.PrincipalFrom(r.Context())
	guestTag := ""
	if p.IsGuest() {
		guestTag = auth.EnsureGuestTag(w, r)
	}
	role := game.RolePlayer
	if req.AsSpectator {
		role = game.RoleSpectator
	}

	res, err := room.Join(r.Context(), game.JoinInput{
		DisplayName: req.DisplayName,
		Role:        role,
		UserID:      p.UserID,
		GuestTag:    guestTag,
	})
	if err != nil {
		h.httpError(w, err)
		return
	}

	token, err := h.auth.IssueParticipantToken(room.ID, res.ParticipantID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joinRoomResponse{
		RoomID:           room.ID,
		ParticipantID:    res.ParticipantID,
		ParticipantToken: token,
	})
}

type startRoomRequest struct {
	ParticipantID string `json:"participantId"`
}

// StartRoom begins the synchronized countdown. Host only.
func (h *Handler) StartRoom(w http.ResponseWriter, r *http.Request) {
	var req startRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed request body")
		return
	}
	room, err := h.registry.RoomByCode(chi.URLParam(r, "roomCode"))
	if err != nil {
		h.httpError(w, err)
		return
	}
	if err := room.StartGame(r.Context(), req.ParticipantID); err != nil {
		h.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody)
}

type publicRoomEntry struct {
	RoomCode    string          `json:"roomCode"`
	Mode        game.Mode       `json:"mode"`
	Conv        game.Conversion `json:"conv"`
	GoalType    game.GoalType   `json:"goalType"`
	PlayerCount int             `json:"playerCount"`
	MaxPlayers  int             `json:"maxPlayers"`
	HasPassword bool            `json:"hasPassword"`
}

// ListRooms lists joinable public lobbies, newest first.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	if v := r.URL.Query().Get("visibility"); v != "" && v != string(game.VisibilityPublic) {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "only public rooms are listable")
		return
	}
	snaps := h.registry.PublicRooms()
	rooms := make([]publicRoomEntry, 0, len(snaps))
	for _, s := range snaps {
		rooms = append(rooms, publicRoomEntry{
			RoomCode:    s.RoomCode,
			Mode:        s.Config.Mode,
			Conv:        s.Config.Conv,
			GoalType:    s.Config.GoalType,
			PlayerCount: s.PlayerCount,
			MaxPlayers:  s.Config.MaxPlayers,
			HasPassword: s.Config.Visibility == game.VisibilityPublicPassword,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

// RoomQR serves a PNG QR code for the room's join link.
func (h *Handler) RoomQR(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "roomCode")
	room, err := h.registry.RoomByCode(code)
	if err != nil {
		h.httpError(w, err)
		return
	}

	joinURL := fmt.Sprintf("%s/join/%s", baseURL(r), room.Code)
	png, err := qrPNG(joinURL)
	if err != nil {
		h.httpError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

// qrPNG renders a URL as a PNG QR code with medium error correction.
func qrPNG(url string) ([]byte, error) {
	qrc, err := qrcode.NewWith(url,
		qrcode.WithErrorCorrectionLevel(qrcode.ErrorCorrectionMedium),
		qrcode.WithEncodingMode(qrcode.EncModeByte),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}

	var buf bytes.Buffer
	wr := standard.NewWithWriter(nopWriteCloser{&buf},
		standard.WithBuiltinImageEncoder(standard.PNG_FORMAT),
		standard.WithQRWidth(8),
	)
	if err := qrc.Save(wr); err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}
	return buf.Bytes(), nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// baseURL reconstructs the externally visible origin of the request.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}
