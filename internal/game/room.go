package game

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Status is the room lifecycle state. It only ever moves forward:
// lobby -> syncing -> playing -> ended.
type Status string

const (
	StatusLobby   Status = "lobby"
	StatusSyncing Status = "syncing"
	StatusPlaying Status = "playing"
	StatusEnded   Status = "ended"
)

// EndReason records why a room reached ended.
type EndReason string

const (
	EndGoalReached EndReason = "goal_reached"
	EndTimeUp      EndReason = "time_up"
	EndHostEnded   EndReason = "host_ended"
	EndAllLeft     EndReason = "all_left"
)

const (
	// MaxRoomPlayers caps config.maxPlayers.
	MaxRoomPlayers = 32
	// maxChatLength is the per-message rune cap.
	maxChatLength = 500
	// chatHistory is how many messages the room retains.
	chatHistory = 100
	// commandQueueSize bounds the room's inbound command queue.
	commandQueueSize = 1024
	// maxSyncRound is the final sync round; completing it starts play.
	maxSyncRound = 3
)

// Config is a room's immutable game configuration.
type Config struct {
	Mode            Mode       `json:"mode"`
	Conv            Conversion `json:"conv"`
	GoalType        GoalType   `json:"goalType"`
	GoalValue       GoalValue  `json:"goalValue"`
	Visibility      Visibility `json:"visibility"`
	PasswordHash    []byte     `json:"-"`
	MaxPlayers      int        `json:"maxPlayers"`
	ShowLeaderboard bool       `json:"showLeaderboard"`
	ShowPowerTable  bool       `json:"showPowerTable"`
}

// Validate checks the config against the supported modes, conversions,
// goals and room limits.
func (c *Config) Validate() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if !c.Conv.Valid() {
		return fmt.Errorf("unknown conversion %q", c.Conv)
	}
	if !c.GoalType.Valid() {
		return fmt.Errorf("unknown goal type %q", c.GoalType)
	}
	if !c.Visibility.Valid() {
		return fmt.Errorf("unknown visibility %q", c.Visibility)
	}
	if c.MaxPlayers < 1 || c.MaxPlayers > MaxRoomPlayers {
		return fmt.Errorf("maxPlayers must be 1-%d, got %d", MaxRoomPlayers, c.MaxPlayers)
	}
	switch c.GoalType {
	case GoalFirstTo:
		if c.GoalValue.FirstTo < 1 {
			return fmt.Errorf("first_to goal needs firstTo >= 1")
		}
	case GoalMostInTime, GoalTimed:
		if c.Mode.TimerSeconds() == 0 && c.GoalValue.Seconds < 10 {
			return fmt.Errorf("timed goal needs seconds >= 10")
		}
	case GoalSurvival:
		if c.Mode != ModeSurvival {
			return fmt.Errorf("survival goal requires survival mode")
		}
		if c.GoalValue.Lives < 1 {
			return fmt.Errorf("survival goal needs lives >= 1")
		}
	}
	if c.Mode == ModeSurvival && c.GoalType != GoalSurvival {
		return fmt.Errorf("survival mode requires survival goal")
	}
	if c.Visibility == VisibilityPublicPassword && len(c.PasswordHash) == 0 {
		return fmt.Errorf("public_password visibility needs a password")
	}
	return nil
}

// Public returns the client-visible config.
func (c *Config) Public() PublicConfig {
	return PublicConfig{
		Mode:            c.Mode,
		Conv:            c.Conv,
		GoalType:        c.GoalType,
		GoalValue:       c.GoalValue,
		Visibility:      c.Visibility,
		MaxPlayers:      c.MaxPlayers,
		ShowLeaderboard: c.ShowLeaderboard,
		ShowPowerTable:  c.ShowPowerTable,
	}
}

// HashPassword bcrypt-hashes a room password for Config.PasswordHash.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// TournamentRef links a bracket room back to its tournament.
type TournamentRef struct {
	TournamentID string
	BracketIndex int
}

// Timings are the room's timer windows, overridable before Start in
// tests.
type Timings struct {
	SyncRound       time.Duration
	DisconnectGrace time.Duration
	AllLeftGrace    time.Duration
	EndedDrain      time.Duration
}

// DefaultTimings returns the production windows.
func DefaultTimings() Timings {
	return Timings{
		SyncRound:       5 * time.Second,
		DisconnectGrace: 30 * time.Second,
		AllLeftGrace:    30 * time.Second,
		EndedDrain:      5 * time.Second,
	}
}

// Room owns one game's live state. All mutation happens on the writer
// goroutine started by Start; callers talk to it through the public
// methods, which enqueue commands and wait for the reply. Readers use
// Snapshot, never the internal maps.
type Room struct {
	ID   string
	Code string

	// Set these before Start; the loop reads them without locking.
	Config     Config
	Sink       EventSink
	Results    ResultHandler
	OnEnded    func(roomID string)
	Tournament *TournamentRef
	Timings    Timings
	Generator  *Generator

	log *logrus.Entry

	commands chan command
	stop     chan struct{}
	done     chan struct{}
	snapshot atomic.Pointer[Snapshot]

	// Writer-owned state below; never touched outside the loop.
	status       Status
	hostID       string
	participants map[string]*Participant
	order        []string
	syncRound    int

	sharedQuestion *Question
	questionIndex  int

	chat []ChatMessagePayload

	createdAt  time.Time
	startedAt  time.Time
	endedAt    time.Time
	endReason  EndReason
	lastActive time.Time

	syncTimer     *time.Timer
	gameTimer     *time.Timer
	allLeftTimer  *time.Timer
	drainTimer    *time.Timer
	graceTimers   map[string]*time.Timer
	pendingResult bool
}

// NewRoom builds a room in lobby state. Call Start to launch its writer.
func NewRoom(id, code string, cfg Config) *Room {
	return &Room{
		ID:           id,
		Code:         code,
		Config:       cfg,
		Timings:      DefaultTimings(),
		Generator:    NewRandomGenerator(),
		log:          logrus.WithFields(logrus.Fields{"room": id, "code": code}),
		commands:     make(chan command, commandQueueSize),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		status:       StatusLobby,
		participants: make(map[string]*Participant),
		graceTimers:  make(map[string]*time.Timer),
		createdAt:    time.Now(),
		lastActive:   time.Now(),
	}
}

// Start launches the room's writer goroutine and publishes the first
// snapshot.
func (r *Room) Start() {
	r.publishSnapshot()
	go r.run()
}

// Close stops the writer. The registry calls this once the retention
// window after ended has passed, or at server shutdown.
func (r *Room) Close() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	<-r.done
}

// Snapshot returns the last state published by the writer. Safe for
// concurrent use; the returned value is immutable.
func (r *Room) Snapshot() *Snapshot {
	return r.snapshot.Load()
}

// VerifyPassword checks a join password against the room config. Runs
// bcrypt outside the writer so a slow hash cannot stall the game.
func (r *Room) VerifyPassword(password string) error {
	if r.Config.Visibility != VisibilityPublicPassword {
		return nil
	}
	if password == "" {
		return ErrPasswordRequired
	}
	if bcrypt.CompareHashAndPassword(r.Config.PasswordHash, []byte(password)) != nil {
		return ErrPasswordInvalid
	}
	return nil
}

// JoinInput is the Join request.
type JoinInput struct {
	DisplayName string
	Role        ParticipantRole
	UserID      string
	GuestTag    string
	AsHost      bool
}

// JoinResult is the Join reply.
type JoinResult struct {
	ParticipantID string
	Roster        RoomStatePayload
}

// Join adds a participant and returns their id plus a roster snapshot.
func (r *Room) Join(ctx context.Context, in JoinInput) (JoinResult, error) {
	if !ValidDisplayName(in.DisplayName) {
		return JoinResult{}, ErrNameInvalid
	}
	if in.Role == "" {
		in.Role = RolePlayer
	}
	v, err := r.do(ctx, command{kind: cmdJoin, join: &in})
	if err != nil {
		return JoinResult{}, err
	}
	return v.(JoinResult), nil
}

// Leave removes a participant from the roster.
func (r *Room) Leave(ctx context.Context, participantID string) error {
	_, err := r.do(ctx, command{kind: cmdLeave, pid: participantID})
	return err
}

// StartGame moves lobby -> syncing. Only the host may call it.
func (r *Room) StartGame(ctx context.Context, participantID string) error {
	_, err := r.do(ctx, command{kind: cmdStart, pid: participantID})
	return err
}

// StartByOwner moves lobby -> syncing on behalf of the owning
// tournament, bypassing the host check.
func (r *Room) StartByOwner(ctx context.Context) error {
	_, err := r.do(ctx, command{kind: cmdOwnerStart})
	return err
}

// SyncAck records a participant's acknowledgement of a sync round.
func (r *Room) SyncAck(ctx context.Context, participantID string, round int) error {
	_, err := r.do(ctx, command{kind: cmdSyncAck, pid: participantID, round: round})
	return err
}

// SubmitAnswer evaluates a player's answer to their current question.
func (r *Room) SubmitAnswer(ctx context.Context, participantID, raw string) error {
	_, err := r.do(ctx, command{kind: cmdSubmitAnswer, pid: participantID, text: raw})
	return err
}

// Chat appends a chat message and broadcasts it.
func (r *Room) Chat(ctx context.Context, participantID, message string) error {
	_, err := r.do(ctx, command{kind: cmdChat, pid: participantID, text: message})
	return err
}

// HostEnd ends the game early. Only the host may call it.
func (r *Room) HostEnd(ctx context.Context, participantID string) error {
	_, err := r.do(ctx, command{kind: cmdHostEnd, pid: participantID})
	return err
}

// SetConnected marks a participant's live-connection state. The hub
// calls it on WS attach and detach; detach arms the reconnect grace
// timer.
func (r *Room) SetConnected(participantID string, connected bool) {
	kind := cmdDisconnected
	if connected {
		kind = cmdConnected
	}
	r.enqueueAsync(command{kind: kind, pid: participantID})
}

// do enqueues a command and waits for the writer's reply.
func (r *Room) do(ctx context.Context, cmd command) (any, error) {
	cmd.reply = make(chan reply, 1)
	select {
	case r.commands <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return nil, ErrRoomClosed
	case <-time.After(time.Second):
		return nil, ErrBackpressure
	}
	select {
	case rep := <-cmd.reply:
		return rep.val, rep.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return nil, ErrRoomClosed
	}
}

// enqueueAsync submits a command without waiting for a reply, dropping
// it if the room is gone.
func (r *Room) enqueueAsync(cmd command) {
	select {
	case r.commands <- cmd:
	case <-r.done:
	default:
		go func() {
			select {
			case r.commands <- cmd:
			case <-r.done:
			}
		}()
	}
}
