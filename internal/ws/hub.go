package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"convtrainer/internal/game"
	"convtrainer/internal/metrics"
	"convtrainer/internal/tournament"
)

// Hub tracks every live connection, keyed by room and by tournament,
// and fans room/tournament events out to them. One participant holds at
// most one live room connection; a second claim replaces the first.
type Hub struct {
	log      *logrus.Entry
	upgrader websocket.Upgrader

	// PongWait and PingPeriod tune the heartbeat. Zero values use the
	// package defaults; tests shorten them.
	PongWait   time.Duration
	PingPeriod time.Duration

	mu          sync.RWMutex
	rooms       map[string]map[*Client]struct{}
	seats       map[string]*Client // roomID+"/"+participantID
	tournaments map[string]map[*Client]struct{}
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{
		log: logrus.WithField("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Attach is guarded by signed participant tokens, not by
			// origin; browsers from any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		rooms:       make(map[string]map[*Client]struct{}),
		seats:       make(map[string]*Client),
		tournaments: make(map[string]map[*Client]struct{}),
	}
}

func seatKey(roomID, participantID string) string {
	return roomID + "/" + participantID
}

// heartbeat resolves the hub's ping/pong windows, falling back to the
// package defaults.
func (h *Hub) heartbeat() (pongWait, pingPeriod time.Duration) {
	pongWait, pingPeriod = h.PongWait, h.PingPeriod
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}
	if pingPeriod <= 0 {
		pingPeriod = defaultPingPeriod
	}
	return pongWait, pingPeriod
}

// ServeRoom upgrades the request and binds the connection to a seat.
// The caller has already validated the room, the participant, and the
// reconnect token.
func (h *Hub) ServeRoom(w http.ResponseWriter, r *http.Request, room *game.Room, participantID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("upgrade failed")
		return
	}
	c := newRoomClient(h, conn, room, participantID)

	key := seatKey(room.ID, participantID)
	h.mu.Lock()
	prev := h.seats[key]
	h.seats[key] = c
	set := h.rooms[room.ID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.rooms[room.ID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	if prev != nil {
		prev.closeWith(CloseReplaced, "REPLACED")
	}
	metrics.WSConnections.WithLabelValues(string(channelRoom)).Inc()

	// The fresh connection always starts from a full snapshot.
	c.enqueue(string(game.EventRoomState), room.Snapshot().State())
	room.SetConnected(participantID, true)

	go c.writePump()
	go c.readPump()
}

// ServeTournament upgrades the request onto a tournament's control
// channel and replays current bracket state.
func (h *Hub) ServeTournament(w http.ResponseWriter, r *http.Request, t *tournament.Tournament) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("upgrade failed")
		return
	}
	c := newTournamentClient(h, conn, t.ID)

	h.mu.Lock()
	set := h.tournaments[t.ID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.tournaments[t.ID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	metrics.WSConnections.WithLabelValues(string(channelTournament)).Inc()

	for _, br := range t.Brackets() {
		c.enqueue(string(tournament.EventBracketUpdate), br)
	}
	if agg := t.AggregateLeaderboard(); agg != nil {
		c.enqueue(string(tournament.EventTournamentEnded),
			tournament.TournamentEndedPayload{AggregateLeaderboard: agg})
	}

	go c.writePump()
	go c.readPump()
}

// Publish delivers one room event, to a single participant's connection
// when the event is addressed, otherwise to the whole room. Implements
// game.EventSink; must never block the room writer, and the bounded
// per-client queues guarantee it does not.
func (h *Hub) Publish(roomID string, ev game.Event) {
	data, err := encodeFrame(string(ev.Type), ev.Payload)
	if err != nil {
		h.log.WithError(err).WithField("event", ev.Type).Error("failed to encode event")
		return
	}
	f := frame{critical: criticalFrame(string(ev.Type)), data: data}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		if ev.To == "" || ev.To == c.participantID {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.queue.push(f)
	}
}

// RoomClosed closes every connection for a drained room. Implements
// game.EventSink.
func (h *Hub) RoomClosed(roomID string) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.closeWith(CloseRoomEnded, "ROOM_ENDED")
	}
}

// PublishTournament fans one control-channel event out. Implements
// tournament.EventSink.
func (h *Hub) PublishTournament(tournamentID string, ev tournament.Event) {
	data, err := encodeFrame(string(ev.Type), ev.Payload)
	if err != nil {
		h.log.WithError(err).WithField("event", ev.Type).Error("failed to encode event")
		return
	}
	f := frame{data: data}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.tournaments[tournamentID]))
	for c := range h.tournaments[tournamentID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.queue.push(f)
	}
}

// TournamentClosed drops a retired tournament's control connections.
// Implements tournament.EventSink.
func (h *Hub) TournamentClosed(tournamentID string) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.tournaments[tournamentID]))
	for c := range h.tournaments[tournamentID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.closeWith(CloseRoomEnded, "ROOM_ENDED")
	}
}

// unregister releases a dead connection. Only the connection that still
// owns the seat marks the participant disconnected; a replaced
// connection must not clobber its successor's state.
func (h *Hub) unregister(c *Client) {
	ownsSeat := false
	h.mu.Lock()
	switch c.channel {
	case channelRoom:
		if set := h.rooms[c.roomID]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.rooms, c.roomID)
			}
		}
		key := seatKey(c.roomID, c.participantID)
		if h.seats[key] == c {
			delete(h.seats, key)
			ownsSeat = true
		}
	case channelTournament:
		if set := h.tournaments[c.tournamentID]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.tournaments, c.tournamentID)
			}
		}
	}
	h.mu.Unlock()

	metrics.WSConnections.WithLabelValues(string(c.channel)).Dec()
	if ownsSeat {
		c.room.SetConnected(c.participantID, false)
	}
}
