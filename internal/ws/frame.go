// Package ws is the WebSocket hub: one connection per participant,
// typed JSON frames in both directions, bounded per-connection outbound
// queues, and heartbeat-driven disconnect detection. The hub implements
// the event sinks the game and tournament packages publish into.
package ws

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Application close codes, in the private range the RFC reserves for
// us. The text mirrors the protocol error kind so clients need not map
// numbers.
const (
	CloseReplaced      = 4000 // a second connection claimed this seat
	CloseBackpressure  = 4001 // outbound queue overflowed on critical events
	CloseTimeout       = 4002 // heartbeat missed
	CloseRoomEnded     = 4003 // room drained and shut down
	CloseProtocolError = 4004 // too many malformed frames
)

// Inbound client message types.
const (
	msgSyncAck      = "sync_ack"
	msgAnswerSubmit = "answer_submit"
	msgChat         = "chat"
	msgEndGame      = "end_game_request"
	msgPing         = "ping"
)

// inboundMessage is the union of every client frame. Which fields are
// meaningful depends on Type; unknown types earn a protocol_error.
type inboundMessage struct {
	Type    string `json:"type"`
	Round   int    `json:"round"`
	Answer  string `json:"answer"`
	Message string `json:"message"`
}

// encodeFrame renders one outbound frame as {"type": tag, ...payload}.
// Object payloads are flattened into the envelope; array payloads (the
// leaderboard) sit under a field named after the tag.
func encodeFrame(tag string, payload any) ([]byte, error) {
	m := map[string]any{}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", tag, err)
		}
		switch {
		case len(b) > 0 && b[0] == '{':
			if err := json.Unmarshal(b, &m); err != nil {
				return nil, fmt.Errorf("flatten %s payload: %w", tag, err)
			}
		case bytes.Equal(b, []byte("null")):
			// Empty payload, envelope only.
		default:
			m[tag] = json.RawMessage(b)
		}
	}
	m["type"] = tag
	return json.Marshal(m)
}

// criticalFrame reports whether an event type may never be shed by the
// overflow policy. Losing a leaderboard refresh or a chat line is
// recoverable; losing a question or the game end is not.
func criticalFrame(tag string) bool {
	switch tag {
	case "question", "answer_result", "game_ended":
		return true
	}
	return false
}
