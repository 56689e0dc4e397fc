// Package tournament groups many game rooms into brackets under one
// code, fills the brackets as players join, and aggregates the results
// once every bracket has finished.
package tournament

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"convtrainer/internal/game"
)

// Status is the tournament lifecycle state. It only moves forward:
// lobby -> running -> ended.
type Status string

const (
	StatusLobby   Status = "lobby"
	StatusRunning Status = "running"
	StatusEnded   Status = "ended"
)

const (
	// MaxTournamentPlayers caps config.maxPlayers across all brackets.
	MaxTournamentPlayers = 10000
	// maxNameLength is the rune cap on tournament names.
	maxNameLength = 80
)

// EventType tags control-channel events.
type EventType string

const (
	EventBracketUpdate   EventType = "bracket_update"
	EventTournamentEnded EventType = "tournament_ended"
)

// Event is one control-channel message.
type Event struct {
	Type    EventType
	Payload any
}

// EventSink receives tournament control-channel events. Implementations
// must not block; the hub buffers per connection.
type EventSink interface {
	PublishTournament(tournamentID string, ev Event)
	TournamentClosed(tournamentID string)
}

// RoomFactory materializes the room behind a new bracket. It must
// return a registered but not yet started room; the tournament wires
// its result capture into the room and starts it.
type RoomFactory func(tournamentID string, bracketIndex int, cfg game.Config) (*game.Room, error)

// Config captures the owner-supplied tournament settings. Every
// bracket room inherits the game settings with maxPlayers pinned to
// the bracket size.
type Config struct {
	Name        string          `json:"name"`
	Mode        game.Mode       `json:"mode"`
	Conv        game.Conversion `json:"conv"`
	GoalType    game.GoalType   `json:"goalType"`
	GoalValue   game.GoalValue  `json:"goalValue"`
	BracketSize int             `json:"bracketSize"`
	MaxPlayers  int             `json:"maxPlayers"`
}

// Validate checks the tournament settings, including the derived
// per-bracket room config.
func (c *Config) Validate() error {
	name := strings.TrimSpace(c.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("tournament name must be 1-%d characters", maxNameLength)
	}
	if c.BracketSize < 2 || c.BracketSize > game.MaxRoomPlayers {
		return fmt.Errorf("bracketSize must be 2-%d, got %d", game.MaxRoomPlayers, c.BracketSize)
	}
	if c.MaxPlayers < c.BracketSize || c.MaxPlayers > MaxTournamentPlayers {
		return fmt.Errorf("maxPlayers must be %d-%d, got %d", c.BracketSize, MaxTournamentPlayers, c.MaxPlayers)
	}
	roomCfg := c.roomConfig()
	return roomCfg.Validate()
}

// roomConfig derives the game config shared by all bracket rooms.
func (c *Config) roomConfig() game.Config {
	return game.Config{
		Mode:            c.Mode,
		Conv:            c.Conv,
		GoalType:        c.GoalType,
		GoalValue:       c.GoalValue,
		Visibility:      game.VisibilityPrivate,
		MaxPlayers:      c.BracketSize,
		ShowLeaderboard: true,
	}
}

// maxBrackets is how many brackets the player cap allows.
func (c *Config) maxBrackets() int {
	return (c.MaxPlayers + c.BracketSize - 1) / c.BracketSize
}

// BracketSummary is the REST and control-channel view of one bracket.
type BracketSummary struct {
	BracketIndex     int         `json:"bracketIndex"`
	Status           game.Status `json:"status"`
	ParticipantCount int         `json:"participantCount"`
}

// TournamentEndedPayload carries the cross-bracket final standings.
type TournamentEndedPayload struct {
	AggregateLeaderboard []AggregateEntry `json:"aggregateLeaderboard"`
}

// AggregateEntry ranks one player across every bracket.
type AggregateEntry struct {
	Rank         int    `json:"rank"`
	DisplayName  string `json:"displayName"`
	Score        int    `json:"score"`
	BestStreak   int    `json:"bestStreak"`
	BracketIndex int    `json:"bracketIndex"`
	IsGuest      bool   `json:"isGuest"`
}

// Info is the REST representation of a tournament.
type Info struct {
	ID               string           `json:"id"`
	Code             string           `json:"code"`
	Name             string           `json:"name"`
	Status           Status           `json:"status"`
	Mode             game.Mode        `json:"mode"`
	Conv             game.Conversion  `json:"conv"`
	GoalType         game.GoalType    `json:"goalType"`
	GoalValue        game.GoalValue   `json:"goalValue"`
	BracketSize      int              `json:"bracketSize"`
	MaxPlayers       int              `json:"maxPlayers"`
	ParticipantCount int              `json:"participantCount"`
	CreatedAt        time.Time        `json:"createdAt"`
	Brackets         []BracketSummary `json:"brackets"`
}

// JoinInput carries one player's tournament join request.
type JoinInput struct {
	DisplayName string
	UserID      string
	GuestTag    string
}

// JoinOutcome tells the player which bracket room to attach to.
type JoinOutcome struct {
	TournamentID  string `json:"tournamentId"`
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
	BracketIndex  int    `json:"bracketIndex"`
}

type bracket struct {
	index int
	room  *game.Room
}

func (br *bracket) summary() BracketSummary {
	snap := br.room.Snapshot()
	return BracketSummary{
		BracketIndex:     br.index,
		Status:           snap.Status,
		ParticipantCount: snap.PlayerCount,
	}
}

// Tournament owns the brackets created under one code. Bracket
// allocation, start, and result aggregation are serialized by a single
// mutex so no two joins can race a capacity boundary.
type Tournament struct {
	ID        string
	Code      string
	OwnerID   string
	CreatedAt time.Time

	// OnEnded, when set before the first join, runs once the
	// tournament reaches ended. The registry uses it to schedule
	// retention cleanup.
	OnEnded func(tournamentID string)

	cfg     Config
	factory RoomFactory
	sink    EventSink
	log     *logrus.Entry

	mu        sync.Mutex
	status    Status
	startedAt time.Time
	endedAt   time.Time
	brackets  []*bracket
	results   map[int]game.GameResult
	aggregate []AggregateEntry
}

// New builds a tournament in created state. The config must already be
// validated.
func New(id, code, ownerID string, cfg Config, factory RoomFactory, sink EventSink) *Tournament {
	cfg.Name = strings.TrimSpace(cfg.Name)
	return &Tournament{
		ID:        id,
		Code:      code,
		OwnerID:   ownerID,
		CreatedAt: time.Now(),
		cfg:       cfg,
		factory:   factory,
		sink:      sink,
		log:       logrus.WithFields(logrus.Fields{"tournament": id, "code": code}),
		status:    StatusLobby,
		results:   make(map[int]game.GameResult),
	}
}

// Config returns the tournament settings.
func (t *Tournament) Config() Config {
	return t.cfg
}

// Status returns the current lifecycle state.
func (t *Tournament) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Join places one player into a bracket: the first lobby bracket with
// a free seat, or a fresh bracket while the player cap allows one.
func (t *Tournament) Join(ctx context.Context, in JoinInput) (JoinOutcome, error) {
	if !game.ValidDisplayName(in.DisplayName) {
		return JoinOutcome{}, game.ErrNameInvalid
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.status {
	case StatusRunning:
		return JoinOutcome{}, ErrTournamentStarted
	case StatusEnded:
		return JoinOutcome{}, ErrTournamentEnded
	}
	if t.playerTotalLocked() >= t.cfg.MaxPlayers {
		return JoinOutcome{}, ErrTournamentFull
	}

	br := t.openBracketLocked()
	if br == nil {
		if len(t.brackets) >= t.cfg.maxBrackets() {
			return JoinOutcome{}, ErrTournamentFull
		}
		var err error
		br, err = t.addBracketLocked()
		if err != nil {
			return JoinOutcome{}, fmt.Errorf("allocate bracket: %w", err)
		}
	}

	res, err := br.room.Join(ctx, game.JoinInput{
		DisplayName: in.DisplayName,
		Role:        game.RolePlayer,
		UserID:      in.UserID,
		GuestTag:    in.GuestTag,
	})
	if err != nil {
		return JoinOutcome{}, err
	}
	t.publishBracketLocked(br)
	return JoinOutcome{
		TournamentID:  t.ID,
		RoomID:        br.room.ID,
		ParticipantID: res.ParticipantID,
		BracketIndex:  br.index,
	}, nil
}

// Start transitions every lobby bracket into the synchronized
// countdown. Admin only, and never on an empty tournament.
func (t *Tournament) Start(ctx context.Context, isAdmin bool) error {
	if !isAdmin {
		return ErrNotAdmin
	}

	t.mu.Lock()
	switch t.status {
	case StatusRunning:
		t.mu.Unlock()
		return ErrTournamentStarted
	case StatusEnded:
		t.mu.Unlock()
		return ErrTournamentEnded
	}
	if t.playerTotalLocked() == 0 {
		t.mu.Unlock()
		return ErrNoPlayers
	}
	t.status = StatusRunning
	t.startedAt = time.Now()
	rooms := make([]*game.Room, len(t.brackets))
	for i, br := range t.brackets {
		rooms[i] = br.room
	}
	t.mu.Unlock()

	for i, room := range rooms {
		if err := room.StartByOwner(ctx); err != nil {
			t.log.WithError(err).WithField("bracket", i).Warn("failed to start bracket")
		}
	}

	t.mu.Lock()
	for _, br := range t.brackets {
		t.publishBracketLocked(br)
	}
	t.mu.Unlock()

	t.log.WithField("brackets", len(rooms)).Info("tournament started")
	return nil
}

// Brackets returns a summary row per bracket, in index order.
func (t *Tournament) Brackets() []BracketSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bracketSummariesLocked()
}

// Info returns the REST view of the tournament.
func (t *Tournament) Info() Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Info{
		ID:               t.ID,
		Code:             t.Code,
		Name:             t.cfg.Name,
		Status:           t.status,
		Mode:             t.cfg.Mode,
		Conv:             t.cfg.Conv,
		GoalType:         t.cfg.GoalType,
		GoalValue:        t.cfg.GoalValue,
		BracketSize:      t.cfg.BracketSize,
		MaxPlayers:       t.cfg.MaxPlayers,
		ParticipantCount: t.playerTotalLocked(),
		CreatedAt:        t.CreatedAt,
		Brackets:         t.bracketSummariesLocked(),
	}
}

// AggregateLeaderboard returns the final standings, or nil while any
// bracket is still running. The hub replays it to control-channel
// connections that attach after the end.
func (t *Tournament) AggregateLeaderboard() []AggregateEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aggregate
}

// Rooms returns every bracket room, for shutdown sweeps.
func (t *Tournament) Rooms() []*game.Room {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*game.Room, len(t.brackets))
	for i, br := range t.brackets {
		out[i] = br.room
	}
	return out
}

func (t *Tournament) openBracketLocked() *bracket {
	for _, br := range t.brackets {
		snap := br.room.Snapshot()
		if snap.Status == game.StatusLobby && snap.PlayerCount < t.cfg.BracketSize {
			return br
		}
	}
	return nil
}

func (t *Tournament) addBracketLocked() (*bracket, error) {
	idx := len(t.brackets)
	room, err := t.factory(t.ID, idx, t.cfg.roomConfig())
	if err != nil {
		return nil, err
	}
	capture := resultCapture{t: t, index: idx}
	if room.Results != nil {
		room.Results = game.ResultHandlers{room.Results, capture}
	} else {
		room.Results = capture
	}
	room.Start()
	br := &bracket{index: idx, room: room}
	t.brackets = append(t.brackets, br)
	t.log.WithField("bracket", idx).Info("opened tournament bracket")
	return br, nil
}

func (t *Tournament) playerTotalLocked() int {
	total := 0
	for _, br := range t.brackets {
		total += br.room.Snapshot().PlayerCount
	}
	return total
}

func (t *Tournament) bracketSummariesLocked() []BracketSummary {
	out := make([]BracketSummary, len(t.brackets))
	for i, br := range t.brackets {
		out[i] = br.summary()
	}
	return out
}

func (t *Tournament) publishBracketLocked(br *bracket) {
	if t.sink == nil {
		return
	}
	t.sink.PublishTournament(t.ID, Event{Type: EventBracketUpdate, Payload: br.summary()})
}

// resultCapture feeds one bracket's final result back into the
// tournament. It runs off the room writer goroutine so a busy
// aggregation mutex can never stall a game loop.
type resultCapture struct {
	t     *Tournament
	index int
}

func (c resultCapture) HandleGameResult(res game.GameResult) {
	go c.t.bracketEnded(c.index, res)
}

// bracketEnded records one bracket's result; when the last bracket
// reports in, the tournament ends and the aggregate leaderboard goes
// out on the control channel.
func (t *Tournament) bracketEnded(index int, res game.GameResult) {
	t.mu.Lock()
	t.results[index] = res
	if index < len(t.brackets) {
		t.publishBracketLocked(t.brackets[index])
	}
	done := t.status == StatusRunning && len(t.results) == len(t.brackets)
	var payload TournamentEndedPayload
	if done {
		t.status = StatusEnded
		t.endedAt = time.Now()
		t.aggregate = t.aggregateLocked()
		payload = TournamentEndedPayload{AggregateLeaderboard: t.aggregate}
	}
	t.mu.Unlock()

	if !done {
		return
	}
	t.log.WithField("brackets", len(t.brackets)).Info("tournament ended")
	if t.sink != nil {
		t.sink.PublishTournament(t.ID, Event{Type: EventTournamentEnded, Payload: payload})
	}
	if t.OnEnded != nil {
		t.OnEnded(t.ID)
	}
}

// aggregateLocked merges every bracket result into one ranking: score
// desc, best streak desc, then bracket index and participant id to
// keep ties deterministic.
func (t *Tournament) aggregateLocked() []AggregateEntry {
	type row struct {
		entry         AggregateEntry
		participantID string
	}
	var rows []row
	for idx, res := range t.results {
		for _, e := range res.Entries {
			rows = append(rows, row{
				entry: AggregateEntry{
					DisplayName:  e.DisplayName,
					Score:        e.Score,
					BestStreak:   e.BestStreak,
					BracketIndex: idx,
					IsGuest:      e.UserID == "",
				},
				participantID: e.ParticipantID,
			})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.entry.Score != b.entry.Score {
			return a.entry.Score > b.entry.Score
		}
		if a.entry.BestStreak != b.entry.BestStreak {
			return a.entry.BestStreak > b.entry.BestStreak
		}
		if a.entry.BracketIndex != b.entry.BracketIndex {
			return a.entry.BracketIndex < b.entry.BracketIndex
		}
		return a.participantID < b.participantID
	})
	out := make([]AggregateEntry, len(rows))
	for i, r := range rows {
		r.entry.Rank = i + 1
		out[i] = r.entry
	}
	return out
}
