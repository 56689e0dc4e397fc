package registry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"convtrainer/internal/game"
	"convtrainer/internal/tournament"
)

type recordingSink struct {
	mu     sync.Mutex
	closed []string
}

func (s *recordingSink) Publish(roomID string, ev game.Event) {}

func (s *recordingSink) RoomClosed(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, roomID)
}

func (s *recordingSink) closedRooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.closed...)
}

type recordingTournamentSink struct {
	mu     sync.Mutex
	closed []string
}

func (s *recordingTournamentSink) PublishTournament(id string, ev tournament.Event) {}

func (s *recordingTournamentSink) TournamentClosed(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, id)
}

func testRegistry(t *testing.T, cfg Config) (*Registry, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	reg := New(cfg)
	reg.Sink = sink
	reg.TournamentSink = &recordingTournamentSink{}
	reg.Timings = game.Timings{
		SyncRound:       50 * time.Millisecond,
		DisconnectGrace: 30 * time.Millisecond,
		AllLeftGrace:    30 * time.Millisecond,
		EndedDrain:      20 * time.Millisecond,
	}
	t.Cleanup(reg.Close)
	return reg, sink
}

func roomConfig() game.Config {
	return game.Config{
		Mode:       game.ModeClassic,
		Conv:       game.ConvBinaryStandalone,
		GoalType:   game.GoalFirstTo,
		GoalValue:  game.GoalValue{FirstTo: 3},
		Visibility: game.VisibilityPrivate,
		MaxPlayers: 8,
	}
}

func TestRegistry_CreateRoomAssignsCode(t *testing.T) {
	reg, _ := testRegistry(t, DefaultConfig())

	room, err := reg.CreateRoom(roomConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(room.Code) != roomCodeLength {
		t.Errorf("Code length = %d, want %d", len(room.Code), roomCodeLength)
	}
	for _, c := range room.Code {
		if !strings.ContainsRune(codeAlphabet, c) {
			t.Errorf("Code %q contains %q outside the alphabet", room.Code, c)
		}
	}

	byID, err := reg.Room(room.ID)
	if err != nil || byID != room {
		t.Errorf("Lookup by id failed: %v", err)
	}
	byCode, err := reg.RoomByCode(strings.ToLower(room.Code))
	if err != nil || byCode != room {
		t.Errorf("Case-insensitive code lookup failed: %v", err)
	}
	if _, err := reg.RoomByCode("NOPE42"); !errors.Is(err, game.ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}

func TestRegistry_CreateRoomValidatesConfig(t *testing.T) {
	reg, _ := testRegistry(t, DefaultConfig())
	cfg := roomConfig()
	cfg.Mode = "warp-speed"
	if _, err := reg.CreateRoom(cfg); err == nil {
		t.Error("Expected validation error for unknown mode")
	}
}

func TestRegistry_RoomCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRooms = 2
	reg, _ := testRegistry(t, cfg)

	for i := 0; i < 2; i++ {
		if _, err := reg.CreateRoom(roomConfig()); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if _, err := reg.CreateRoom(roomConfig()); !errors.Is(err, ErrTooManyRooms) {
		t.Errorf("Expected ErrTooManyRooms, got %v", err)
	}
}

func TestRegistry_CodeReleasedWhenRoomEnds(t *testing.T) {
	reg, _ := testRegistry(t, DefaultConfig())
	room, err := reg.CreateRoom(roomConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := room.Join(context.Background(), game.JoinInput{DisplayName: "Host", AsHost: true})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := room.HostEnd(context.Background(), res.ParticipantID); err != nil {
		t.Fatalf("host end: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := reg.RoomByCode(room.Code); errors.Is(err, game.ErrRoomNotFound) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := reg.RoomByCode(room.Code); !errors.Is(err, game.ErrRoomNotFound) {
		t.Error("Code still resolves after the room ended")
	}

	// The room itself stays readable for late leaderboard fetches.
	if _, err := reg.Room(room.ID); err != nil {
		t.Errorf("Room dropped before retention window: %v", err)
	}
}

func TestRegistry_SweepDropsEndedRoomsAfterRetention(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retention = 10 * time.Millisecond
	reg, _ := testRegistry(t, cfg)

	room, err := reg.CreateRoom(roomConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	res, err := room.Join(context.Background(), game.JoinInput{DisplayName: "Host", AsHost: true})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := room.HostEnd(context.Background(), res.ParticipantID); err != nil {
		t.Fatalf("host end: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if room.Snapshot().Status == game.StatusEnded {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(20 * time.Millisecond)
	reg.sweep(time.Now())

	if _, err := reg.Room(room.ID); !errors.Is(err, game.ErrRoomNotFound) {
		t.Errorf("Ended room survived the retention sweep: %v", err)
	}
}

func TestRegistry_SweepDropsIdleLobbies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RoomIdleTTL = 10 * time.Millisecond
	reg, sink := testRegistry(t, cfg)

	room, err := reg.CreateRoom(roomConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	reg.sweep(time.Now())

	if _, err := reg.Room(room.ID); !errors.Is(err, game.ErrRoomNotFound) {
		t.Error("Idle lobby survived the sweep")
	}
	found := false
	for _, id := range sink.closedRooms() {
		if id == room.ID {
			found = true
		}
	}
	if !found {
		t.Error("Sink not told the idle room closed")
	}
}

func TestRegistry_PublicRoomListing(t *testing.T) {
	reg, _ := testRegistry(t, DefaultConfig())

	pub := roomConfig()
	pub.Visibility = game.VisibilityPublic
	public, err := reg.CreateRoom(pub)
	if err != nil {
		t.Fatalf("create public: %v", err)
	}
	if _, err := reg.CreateRoom(roomConfig()); err != nil {
		t.Fatalf("create private: %v", err)
	}

	list := reg.PublicRooms()
	if len(list) != 1 {
		t.Fatalf("Listed %d rooms, want 1", len(list))
	}
	if list[0].RoomID != public.ID {
		t.Errorf("Listed %s, want the public room %s", list[0].RoomID, public.ID)
	}
}

func TestRegistry_TournamentLifecycle(t *testing.T) {
	reg, _ := testRegistry(t, DefaultConfig())

	tcfg := tournament.Config{
		Name:        "Office Cup",
		Mode:        game.ModeClassic,
		Conv:        game.ConvHexStandalone,
		GoalType:    game.GoalFirstTo,
		GoalValue:   game.GoalValue{FirstTo: 2},
		BracketSize: 2,
		MaxPlayers:  4,
	}
	tr, err := reg.CreateTournament("owner-1", tcfg)
	if err != nil {
		t.Fatalf("create tournament: %v", err)
	}
	if len(tr.Code) != tournamentCodeLength {
		t.Errorf("Tournament code length = %d, want %d", len(tr.Code), tournamentCodeLength)
	}

	byCode, err := reg.TournamentByCode(strings.ToLower(tr.Code))
	if err != nil || byCode != tr {
		t.Fatalf("Lookup by code failed: %v", err)
	}

	// Joining creates a bracket room inside the registry.
	out, err := tr.Join(context.Background(), tournament.JoinInput{DisplayName: "p1"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	room, err := reg.Room(out.RoomID)
	if err != nil {
		t.Fatalf("bracket room not registered: %v", err)
	}
	if room.Tournament == nil || room.Tournament.TournamentID != tr.ID {
		t.Error("Bracket room missing its tournament ref")
	}
	if room.Code != "" {
		t.Errorf("Bracket room has a join code %q, want none", room.Code)
	}

	// Bracket rooms never show up in the public listing.
	for _, snap := range reg.PublicRooms() {
		if snap.RoomID == out.RoomID {
			t.Error("Bracket room leaked into the public listing")
		}
	}
}

func TestRegistry_SweepDropsEmptyStaleTournaments(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RoomIdleTTL = 10 * time.Millisecond
	reg, _ := testRegistry(t, cfg)

	tcfg := tournament.Config{
		Name:        "Ghost Cup",
		Mode:        game.ModeClassic,
		Conv:        game.ConvBinaryStandalone,
		GoalType:    game.GoalFirstTo,
		GoalValue:   game.GoalValue{FirstTo: 2},
		BracketSize: 2,
		MaxPlayers:  4,
	}
	tr, err := reg.CreateTournament("owner-1", tcfg)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	reg.sweep(time.Now())

	if _, err := reg.Tournament(tr.ID); !errors.Is(err, tournament.ErrTournamentNotFound) {
		t.Error("Empty stale tournament survived the sweep")
	}
	if _, err := reg.TournamentByCode(tr.Code); !errors.Is(err, tournament.ErrTournamentNotFound) {
		t.Error("Stale tournament code still resolves")
	}
}

func TestNewCodeUsesSafeAlphabet(t *testing.T) {
	seen := map[rune]bool{}
	for i := 0; i < 200; i++ {
		code := newCode(roomCodeLength)
		if len(code) != roomCodeLength {
			t.Fatalf("Code %q has length %d", code, len(code))
		}
		for _, c := range code {
			seen[c] = true
			if strings.ContainsRune("0O1I", c) {
				t.Errorf("Code %q contains confusable glyph %q", code, c)
			}
		}
	}
	if len(seen) < 10 {
		t.Errorf("200 codes only used %d distinct glyphs; sampling looks broken", len(seen))
	}
}
