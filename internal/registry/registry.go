// Package registry owns the process-wide maps of live rooms and
// tournaments, hands out join codes, and garbage-collects what players
// abandon.
package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"convtrainer/internal/game"
	"convtrainer/internal/tournament"
)

// Config tunes capacity and cleanup.
type Config struct {
	// MaxRooms caps rooms that have not yet ended, bracket rooms
	// included. Zero means unlimited.
	MaxRooms int
	// RoomIdleTTL drops lobbies nobody touches.
	RoomIdleTTL time.Duration
	// Retention keeps ended rooms and tournaments addressable for late
	// leaderboard reads before they are closed for good.
	Retention time.Duration
	// SweepInterval is how often the janitor runs.
	SweepInterval time.Duration
}

// DefaultConfig returns the production cleanup windows.
func DefaultConfig() Config {
	return Config{
		MaxRooms:      500,
		RoomIdleTTL:   time.Hour,
		Retention:     60 * time.Second,
		SweepInterval: 15 * time.Second,
	}
}

// Registry is safe for concurrent use. Lookups take the read lock;
// register and deregister take the write lock. Room and tournament
// operations are never invoked while a lock is held, so a busy game
// loop cannot stall the registry and vice versa.
type Registry struct {
	// Set these before Start; the registry wires them into every room
	// and tournament it creates.
	Sink           game.EventSink
	TournamentSink tournament.EventSink
	Results        game.ResultHandler
	Timings        game.Timings

	cfg Config
	log *logrus.Entry

	mu              sync.RWMutex
	running         bool
	rooms           map[string]*game.Room
	roomCodes       map[string]string
	tournaments     map[string]*tournament.Tournament
	tournamentCodes map[string]string
	tournamentEnds  map[string]time.Time

	stop chan struct{}
	done chan struct{}
}

// New builds a registry. Call Start to launch the janitor.
func New(cfg Config) *Registry {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	return &Registry{
		cfg:             cfg,
		log:             logrus.WithField("component", "registry"),
		rooms:           make(map[string]*game.Room),
		roomCodes:       make(map[string]string),
		tournaments:     make(map[string]*tournament.Tournament),
		tournamentCodes: make(map[string]string),
		tournamentEnds:  make(map[string]time.Time),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Start launches the background sweeper.
func (reg *Registry) Start() {
	reg.mu.Lock()
	if reg.running {
		reg.mu.Unlock()
		return
	}
	reg.running = true
	reg.mu.Unlock()
	go reg.run()
}

// Close stops the sweeper and shuts every room down. Used at server
// shutdown.
func (reg *Registry) Close() {
	reg.mu.Lock()
	running := reg.running
	reg.running = false
	reg.mu.Unlock()

	select {
	case <-reg.stop:
	default:
		close(reg.stop)
	}
	if running {
		<-reg.done
	}

	reg.mu.Lock()
	rooms := make([]*game.Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.rooms = make(map[string]*game.Room)
	reg.roomCodes = make(map[string]string)
	reg.tournaments = make(map[string]*tournament.Tournament)
	reg.tournamentCodes = make(map[string]string)
	reg.tournamentEnds = make(map[string]time.Time)
	reg.mu.Unlock()

	for _, r := range rooms {
		r.Close()
	}
}

// CreateRoom registers and starts a room with a fresh join code.
func (reg *Registry) CreateRoom(cfg game.Config) (*game.Room, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg.mu.Lock()
	if reg.cfg.MaxRooms > 0 && reg.activeRoomsLocked() >= reg.cfg.MaxRooms {
		reg.mu.Unlock()
		return nil, ErrTooManyRooms
	}
	code, err := reg.freeCodeLocked(reg.roomCodes, roomCodeLength)
	if err != nil {
		reg.mu.Unlock()
		return nil, err
	}
	room := game.NewRoom(uuid.NewString(), code, cfg)
	room.Sink = reg.Sink
	room.Results = reg.Results
	room.OnEnded = reg.releaseRoomCode
	if reg.Timings != (game.Timings{}) {
		room.Timings = reg.Timings
	}
	reg.rooms[room.ID] = room
	reg.roomCodes[code] = room.ID
	reg.mu.Unlock()

	room.Start()
	reg.log.WithFields(logrus.Fields{"room": room.ID, "code": code, "mode": cfg.Mode}).Info("room created")
	return room, nil
}

// Room looks a live or retained room up by id.
func (reg *Registry) Room(roomID string) (*game.Room, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[roomID]
	if !ok {
		return nil, game.ErrRoomNotFound
	}
	return room, nil
}

// RoomByCode resolves a join code. Codes only resolve while the room
// has not ended; ended rooms stay reachable by id for the retention
// window.
func (reg *Registry) RoomByCode(code string) (*game.Room, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	id, ok := reg.roomCodes[code]
	if !ok {
		return nil, game.ErrRoomNotFound
	}
	room, ok := reg.rooms[id]
	if !ok {
		return nil, game.ErrRoomNotFound
	}
	return room, nil
}

// PublicRooms lists joinable public lobbies, newest first.
func (reg *Registry) PublicRooms() []*game.Snapshot {
	reg.mu.RLock()
	rooms := make([]*game.Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.RUnlock()

	var out []*game.Snapshot
	for _, room := range rooms {
		if room.Tournament != nil {
			continue
		}
		snap := room.Snapshot()
		if snap.Status != game.StatusLobby {
			continue
		}
		if v := snap.Config.Visibility; v != game.VisibilityPublic && v != game.VisibilityPublicPassword {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// CreateTournament registers a tournament owned by ownerID.
func (reg *Registry) CreateTournament(ownerID string, cfg tournament.Config) (*tournament.Tournament, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg.mu.Lock()
	code, err := reg.freeCodeLocked(reg.tournamentCodes, tournamentCodeLength)
	if err != nil {
		reg.mu.Unlock()
		return nil, err
	}
	t := tournament.New(uuid.NewString(), code, ownerID, cfg, reg.bracketFactory(), reg.TournamentSink)
	t.OnEnded = reg.tournamentEnded
	reg.tournaments[t.ID] = t
	reg.tournamentCodes[code] = t.ID
	reg.mu.Unlock()

	reg.log.WithFields(logrus.Fields{"tournament": t.ID, "code": code}).Info("tournament created")
	return t, nil
}

// Tournament looks a tournament up by id.
func (reg *Registry) Tournament(id string) (*tournament.Tournament, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	t, ok := reg.tournaments[id]
	if !ok {
		return nil, tournament.ErrTournamentNotFound
	}
	return t, nil
}

// TournamentByCode resolves a tournament join code.
func (reg *Registry) TournamentByCode(code string) (*tournament.Tournament, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	id, ok := reg.tournamentCodes[code]
	if !ok {
		return nil, tournament.ErrTournamentNotFound
	}
	t, ok := reg.tournaments[id]
	if !ok {
		return nil, tournament.ErrTournamentNotFound
	}
	return t, nil
}

// Counts reports live rooms and tournaments, for metrics gauges.
func (reg *Registry) Counts() (rooms, tournaments int) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms), len(reg.tournaments)
}

// bracketFactory registers bracket rooms. They share the registry's
// sinks and lifecycle but are not joinable by code; players reach them
// through the tournament.
func (reg *Registry) bracketFactory() tournament.RoomFactory {
	return func(tournamentID string, bracketIndex int, cfg game.Config) (*game.Room, error) {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		if reg.cfg.MaxRooms > 0 && reg.activeRoomsLocked() >= reg.cfg.MaxRooms {
			return nil, ErrTooManyRooms
		}
		room := game.NewRoom(uuid.NewString(), "", cfg)
		room.Sink = reg.Sink
		room.Results = reg.Results
		if reg.Timings != (game.Timings{}) {
			room.Timings = reg.Timings
		}
		room.Tournament = &game.TournamentRef{TournamentID: tournamentID, BracketIndex: bracketIndex}
		reg.rooms[room.ID] = room
		return room, nil
	}
}

// releaseRoomCode frees a room's join code the moment it ends, so the
// code space recycles while the room serves late reads. Runs on the
// room writer goroutine; it must only touch the maps.
func (reg *Registry) releaseRoomCode(roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if room, ok := reg.rooms[roomID]; ok && room.Code != "" {
		delete(reg.roomCodes, room.Code)
	}
}

// tournamentEnded frees the code and stamps the retention clock.
func (reg *Registry) tournamentEnded(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if t, ok := reg.tournaments[id]; ok {
		delete(reg.tournamentCodes, t.Code)
		reg.tournamentEnds[id] = time.Now()
	}
}

func (reg *Registry) activeRoomsLocked() int {
	n := 0
	for _, room := range reg.rooms {
		if room.Snapshot().Status != game.StatusEnded {
			n++
		}
	}
	return n
}

func (reg *Registry) freeCodeLocked(taken map[string]string, length int) (string, error) {
	for i := 0; i < 10; i++ {
		code := newCode(length)
		if _, exists := taken[code]; !exists {
			return code, nil
		}
	}
	return "", ErrCodeCollision
}

func (reg *Registry) run() {
	defer close(reg.done)
	ticker := time.NewTicker(reg.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-reg.stop:
			return
		case now := <-ticker.C:
			reg.sweep(now)
		}
	}
}

// sweep closes what nobody needs anymore: ended rooms past retention,
// lobbies idle past their TTL, and tournaments that ended or never got
// a single player. Rooms are closed outside the lock because Close
// waits for the room writer, and the writer may be acquiring the lock
// in its end-of-game callback.
func (reg *Registry) sweep(now time.Time) {
	reg.mu.RLock()
	rooms := make([]*game.Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	tournaments := make([]*tournament.Tournament, 0, len(reg.tournaments))
	for _, t := range reg.tournaments {
		tournaments = append(tournaments, t)
	}
	endStamps := make(map[string]time.Time, len(reg.tournamentEnds))
	for id, at := range reg.tournamentEnds {
		endStamps[id] = at
	}
	reg.mu.RUnlock()

	var closeRooms []*game.Room
	var notifyClosed []string
	for _, room := range rooms {
		snap := room.Snapshot()
		switch {
		case snap.Status == game.StatusEnded && now.Sub(snap.EndedAt) >= reg.cfg.Retention:
			closeRooms = append(closeRooms, room)
		case snap.Status == game.StatusLobby && room.Tournament == nil &&
			reg.cfg.RoomIdleTTL > 0 && now.Sub(snap.LastActive) >= reg.cfg.RoomIdleTTL:
			closeRooms = append(closeRooms, room)
			notifyClosed = append(notifyClosed, room.ID)
		}
	}

	var dropTournaments []*tournament.Tournament
	for _, t := range tournaments {
		if at, ended := endStamps[t.ID]; ended {
			if now.Sub(at) >= reg.cfg.Retention {
				dropTournaments = append(dropTournaments, t)
			}
			continue
		}
		info := t.Info()
		if info.Status == tournament.StatusLobby && info.ParticipantCount == 0 &&
			reg.cfg.RoomIdleTTL > 0 && now.Sub(info.CreatedAt) >= reg.cfg.RoomIdleTTL {
			dropTournaments = append(dropTournaments, t)
		}
	}
	for _, t := range dropTournaments {
		closeRooms = append(closeRooms, t.Rooms()...)
	}

	if len(closeRooms) == 0 && len(dropTournaments) == 0 {
		return
	}

	reg.mu.Lock()
	for _, room := range closeRooms {
		delete(reg.rooms, room.ID)
		if room.Code != "" {
			delete(reg.roomCodes, room.Code)
		}
	}
	for _, t := range dropTournaments {
		delete(reg.tournaments, t.ID)
		delete(reg.tournamentCodes, t.Code)
		delete(reg.tournamentEnds, t.ID)
	}
	reg.mu.Unlock()

	for _, room := range closeRooms {
		room.Close()
	}
	if reg.Sink != nil {
		for _, id := range notifyClosed {
			reg.Sink.RoomClosed(id)
		}
	}
	if reg.TournamentSink != nil {
		for _, t := range dropTournaments {
			reg.TournamentSink.TournamentClosed(t.ID)
		}
	}
	reg.log.WithFields(logrus.Fields{
		"rooms":       len(closeRooms),
		"tournaments": len(dropTournaments),
	}).Debug("swept inactive rooms")
}
