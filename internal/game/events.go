package game

import "time"

// EventType tags every message the room pushes to clients. The values
// double as the WS wire "type" field.
type EventType string

const (
	EventRoomState         EventType = "room_state"
	EventSyncRoundComplete EventType = "sync_round_complete"
	EventGameStarted       EventType = "game_started"
	EventQuestion          EventType = "question"
	EventAnswerResult      EventType = "answer_result"
	EventLeaderboard       EventType = "leaderboard"
	EventChatMessage       EventType = "chat_message"
	EventGameEnded         EventType = "game_ended"
	EventProtocolError     EventType = "protocol_error"
	EventPong              EventType = "pong"
)

// Event is one outbound notification. An empty To means the whole room;
// otherwise delivery is limited to that participant's connection.
type Event struct {
	Type    EventType
	To      string
	Payload any
}

// EventSink receives room events for delivery. The WS hub implements it;
// publishing must never block the caller.
type EventSink interface {
	Publish(roomID string, ev Event)
	// RoomClosed tells the sink to close every connection for the room
	// once the post-game drain window has passed.
	RoomClosed(roomID string)
}

// ParticipantInfo is the roster entry inside room_state payloads.
type ParticipantInfo struct {
	ID          string          `json:"participantId"`
	DisplayName string          `json:"displayName"`
	Role        ParticipantRole `json:"role"`
	IsHost      bool            `json:"isHost"`
	Score       int             `json:"score"`
	Lives       int             `json:"lives,omitempty"`
	Connected   bool            `json:"connected"`
	Eliminated  bool            `json:"eliminated,omitempty"`
	IsGuest     bool            `json:"isGuest"`
}

// RoomStatePayload is the full client-visible room snapshot.
type RoomStatePayload struct {
	RoomID          string            `json:"roomId"`
	RoomCode        string            `json:"roomCode,omitempty"`
	Status          Status            `json:"status"`
	Config          PublicConfig      `json:"config"`
	SyncRound       int               `json:"syncRound"`
	ShowLeaderboard bool              `json:"showLeaderboard"`
	Participants    []ParticipantInfo `json:"participants"`
}

// PublicConfig is the client-visible slice of a room's config; the
// password hash never leaves the server.
type PublicConfig struct {
	Mode            Mode       `json:"mode"`
	Conv            Conversion `json:"conv"`
	GoalType        GoalType   `json:"goalType"`
	GoalValue       GoalValue  `json:"goalValue"`
	Visibility      Visibility `json:"visibility"`
	MaxPlayers      int        `json:"maxPlayers"`
	ShowLeaderboard bool       `json:"showLeaderboard"`
	ShowPowerTable  bool       `json:"showPowerTable"`
}

// SyncRoundCompletePayload announces that a sync round finished.
type SyncRoundCompletePayload struct {
	Round    int  `json:"round"`
	AllReady bool `json:"allReady"`
}

// QuestionPayload is the visible half of a question.
type QuestionPayload struct {
	Value string `json:"value"`
	Index int    `json:"index"`
}

// AnswerResultPayload is sent privately to the submitter.
type AnswerResultPayload struct {
	Correct bool `json:"correct"`
}

// LeaderboardEntry is one ranked row; also reused in game_ended.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	IsGuest     bool   `json:"isGuest"`
}

// ChatMessagePayload mirrors the transient chat record.
type ChatMessagePayload struct {
	ParticipantID string    `json:"participantId"`
	DisplayName   string    `json:"displayName"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
}

// GameEndedPayload carries the final standings.
type GameEndedPayload struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Reason      EndReason          `json:"reason"`
}

// ProtocolErrorPayload reports a rejected client frame.
type ProtocolErrorPayload struct {
	Code string `json:"code"`
}

// GameResult is handed to the progress service when a room ends.
type GameResult struct {
	RoomID    string
	Mode      Mode
	Conv      Conversion
	Reason    EndReason
	StartedAt time.Time
	EndedAt   time.Time
	Entries   []ResultEntry
}

// ResultEntry is one participant's final line. UserID is empty for
// guests, whose results are never persisted.
type ResultEntry struct {
	ParticipantID string
	UserID        string
	DisplayName   string
	Rank          int
	Score         int
	BestStreak    int
	Won           bool
}

// ResultHandler consumes completed games. Implementations must not block
// the room writer; persistence runs on their own workers.
type ResultHandler interface {
	HandleGameResult(res GameResult)
}

// ResultHandlers fans one result out to several handlers in order.
type ResultHandlers []ResultHandler

func (hs ResultHandlers) HandleGameResult(res GameResult) {
	for _, h := range hs {
		if h != nil {
			h.HandleGameResult(res)
		}
	}
}
