package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"convtrainer/internal/game"
	"convtrainer/internal/metrics"
)

const (
	// writeWait is how long one frame write may take.
	writeWait = 10 * time.Second
	// defaultPongWait is how long the server waits for any client
	// traffic before giving up on the connection.
	defaultPongWait = 30 * time.Second
	// defaultPingPeriod spaces server pings so two can be missed
	// within the pong window.
	defaultPingPeriod = 12 * time.Second
	// maxMessageSize caps inbound frames; the largest legal client
	// message is a 500-rune chat line.
	maxMessageSize = 4096

	// protocolErrorLimit closes connections that keep sending garbage:
	// more than this many protocol errors inside protocolErrorWindow.
	protocolErrorLimit  = 5
	protocolErrorWindow = 30 * time.Second

	// opTimeout bounds how long a client frame may wait on the room
	// writer before the connection gives up on it.
	opTimeout = 5 * time.Second
)

type channelKind string

const (
	channelRoom       channelKind = "room"
	channelTournament channelKind = "tournament"
)

// Client is one live WebSocket connection. A reader goroutine feeds
// frames into room operations; a writer goroutine drains the outbound
// queue. Room clients hold a seat; tournament clients only observe the
// control channel.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	log  *logrus.Entry

	channel       channelKind
	roomID        string
	participantID string
	tournamentID  string
	room          *game.Room

	queue      *outQueue
	protoTimes []time.Time

	pongWait   time.Duration
	pingPeriod time.Duration

	// closing is set once the connection is condemned; later inbound
	// frames are read (to keep the TCP window open for the close
	// handshake) but no longer dispatched.
	closing bool
}

func newRoomClient(h *Hub, conn *websocket.Conn, room *game.Room, participantID string) *Client {
	pongWait, pingPeriod := h.heartbeat()
	return &Client{
		hub:           h,
		conn:          conn,
		channel:       channelRoom,
		roomID:        room.ID,
		participantID: participantID,
		room:          room,
		queue:         newOutQueue(),
		pongWait:      pongWait,
		pingPeriod:    pingPeriod,
		log: logrus.WithFields(logrus.Fields{
			"component":   "ws",
			"room":        room.ID,
			"participant": participantID,
		}),
	}
}

func newTournamentClient(h *Hub, conn *websocket.Conn, tournamentID string) *Client {
	pongWait, pingPeriod := h.heartbeat()
	return &Client{
		hub:          h,
		conn:         conn,
		channel:      channelTournament,
		tournamentID: tournamentID,
		queue:        newOutQueue(),
		pongWait:     pongWait,
		pingPeriod:   pingPeriod,
		log: logrus.WithFields(logrus.Fields{
			"component":  "ws",
			"tournament": tournamentID,
		}),
	}
}

// enqueue pushes an encoded frame; a false return means the queue
// closed the connection for backpressure.
func (c *Client) enqueue(tag string, payload any) {
	data, err := encodeFrame(tag, payload)
	if err != nil {
		c.log.WithError(err).Error("failed to encode frame")
		return
	}
	c.queue.push(frame{critical: criticalFrame(tag), data: data})
}

// closeWith schedules a close frame after the buffered frames drain.
func (c *Client) closeWith(code int, text string) {
	c.queue.close(code, text)
}

// readPump consumes client frames until the connection dies, then
// releases the seat.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				// Two missed pings. Send a real close frame so the
				// client can tell a liveness kill from a network drop;
				// WriteControl is safe alongside the writer goroutine.
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(CloseTimeout, "TIMEOUT"),
					time.Now().Add(writeWait))
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithError(err).Debug("connection closed")
			}
			return
		}
		// Any client traffic counts as liveness.
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		if c.closing {
			continue
		}
		if !c.handleMessage(data) {
			// The writer sends the close frame and tears the
			// connection down; reads continue until it does.
			c.closing = true
		}
	}
}

// writePump drains the outbound queue and keeps the heartbeat going.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.queue.notify:
			for {
				f, ok := c.queue.pop()
				if !ok {
					break
				}
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, f.data); err != nil {
					return
				}
			}
			if code, text, closed := c.queue.closeReason(); closed {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one inbound frame. It reports false when the
// connection must close.
func (c *Client) handleMessage(data []byte) bool {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return c.protocolError("PROTOCOL_ERROR")
	}
	metrics.WSMessagesIn.WithLabelValues(msg.Type).Inc()

	if msg.Type == msgPing {
		c.enqueue(string(game.EventPong), nil)
		return true
	}
	if c.channel == channelTournament {
		// The control channel is outbound-only apart from pings.
		return c.protocolError("PROTOCOL_ERROR")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch msg.Type {
	case msgSyncAck:
		c.roomOp(c.room.SyncAck(ctx, c.participantID, msg.Round))
	case msgAnswerSubmit:
		c.roomOp(c.room.SubmitAnswer(ctx, c.participantID, msg.Answer))
	case msgChat:
		c.roomOp(c.room.Chat(ctx, c.participantID, msg.Message))
	case msgEndGame:
		if err := c.room.HostEnd(ctx, c.participantID); errors.Is(err, game.ErrNotHost) {
			return c.protocolError("FORBIDDEN")
		}
	default:
		return c.protocolError("PROTOCOL_ERROR")
	}
	return true
}

// roomOp logs room-side rejections. State-machine violations already
// reach the client as protocol_error events from the room writer.
func (c *Client) roomOp(err error) {
	if err != nil && !errors.Is(err, game.ErrRoomClosed) {
		c.log.WithError(err).Debug("room rejected frame")
	}
}

// protocolError notifies the sender and enforces the garbage budget:
// more than protocolErrorLimit errors inside the window closes the
// connection.
func (c *Client) protocolError(code string) bool {
	c.enqueue(string(game.EventProtocolError), game.ProtocolErrorPayload{Code: code})

	now := time.Now()
	cutoff := now.Add(-protocolErrorWindow)
	kept := c.protoTimes[:0]
	for _, t := range c.protoTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.protoTimes = append(kept, now)
	if len(c.protoTimes) > protocolErrorLimit {
		c.closeWith(CloseProtocolError, "PROTOCOL_ERROR")
		return false
	}
	return true
}
