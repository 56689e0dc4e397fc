package game

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordingSink captures every event a room emits so tests can assert on
// the stream without a real hub.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *recordingSink) Publish(roomID string, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) RoomClosed(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// all returns a copy of the captured events.
func (s *recordingSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// lastOfType returns the most recent event with the given type, or nil.
func (s *recordingSink) lastOfType(t EventType) *Event {
	evs := s.all()
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == t {
			return &evs[i]
		}
	}
	return nil
}

// countOfType returns how many events of the given type were published.
func (s *recordingSink) countOfType(t EventType) int {
	n := 0
	for _, ev := range s.all() {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// waitForType polls until an event of the given type shows up.
func (s *recordingSink) waitForType(t *testing.T, typ EventType, timeout time.Duration) *Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ev := s.lastOfType(typ); ev != nil {
			return ev
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s event within %v", typ, timeout)
	return nil
}

// testConfig is a minimal valid classic first-to-3 config.
func testConfig() Config {
	return Config{
		Mode:            ModeClassic,
		Conv:            ConvBinaryStandalone,
		GoalType:        GoalFirstTo,
		GoalValue:       GoalValue{FirstTo: 3},
		Visibility:      VisibilityPrivate,
		MaxPlayers:      8,
		ShowLeaderboard: true,
	}
}

// newTestRoom builds and starts a room with short timer windows, a
// seeded generator and a recording sink. Close is registered on cleanup.
func newTestRoom(t *testing.T, cfg Config) (*Room, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	r := NewRoom("room-"+t.Name(), "TESTCD", cfg)
	r.Sink = sink
	r.Generator = NewGenerator(42)
	r.Timings = Timings{
		SyncRound:       200 * time.Millisecond,
		DisconnectGrace: 100 * time.Millisecond,
		AllLeftGrace:    100 * time.Millisecond,
		EndedDrain:      50 * time.Millisecond,
	}
	r.Start()
	t.Cleanup(r.Close)
	return r, sink
}

// joinPlayer joins a player and fails the test on error.
func joinPlayer(t *testing.T, r *Room, name string, asHost bool) string {
	t.Helper()
	res, err := r.Join(context.Background(), JoinInput{
		DisplayName: name,
		Role:        RolePlayer,
		AsHost:      asHost,
	})
	if err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	return res.ParticipantID
}

// syncToPlaying acks all three rounds for the given participants and
// waits for the room to reach playing.
func syncToPlaying(t *testing.T, r *Room, pids ...string) {
	t.Helper()
	ctx := context.Background()
	for round := 1; round <= maxSyncRound; round++ {
		for _, pid := range pids {
			if err := r.SyncAck(ctx, pid, round); err != nil {
				t.Fatalf("sync ack round %d for %s: %v", round, pid, err)
			}
		}
	}
	waitForStatus(t, r, StatusPlaying, time.Second)
}

// waitForStatus polls the snapshot until the room reaches the status.
func waitForStatus(t *testing.T, r *Room, want Status, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r.Snapshot().Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room never reached %s, still %s", want, r.Snapshot().Status)
}

// questionFor waits for the latest question visible to a participant:
// targeted delivery in per-player-pace modes, broadcast in shared pace.
func questionFor(t *testing.T, sink *recordingSink, pid string) QuestionPayload {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		evs := sink.all()
		for i := len(evs) - 1; i >= 0; i-- {
			if evs[i].Type != EventQuestion {
				continue
			}
			if evs[i].To == pid || evs[i].To == "" {
				return evs[i].Payload.(QuestionPayload)
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no question for %s", pid)
	return QuestionPayload{}
}

// answerFor computes the canonical answer for a question value the same
// way the engine derives it, so tests can answer correctly.
func answerFor(t *testing.T, value string, conv Conversion, mode Mode) string {
	t.Helper()
	switch conv.Family() {
	case FamilyBinary:
		return formatBinary(mustAtoi(t, value), mode)
	case FamilyHex:
		return fmt.Sprintf("%02X", mustAtoi(t, value))
	case FamilyIPv6:
		return fmt.Sprintf("%04X", mustAtoi(t, value))
	case FamilyIPv4:
		parts := strings.Split(value, ".")
		bits := make([]string, len(parts))
		for i, part := range parts {
			bits[i] = fmt.Sprintf("%08b", mustAtoi(t, part))
		}
		return strings.Join(bits, ".")
	}
	t.Fatalf("unknown conversion %q", conv)
	return ""
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	if err != nil {
		t.Fatalf("bad number %q: %v", s, err)
	}
	return n
}

// answerCurrent submits the correct answer to pid's current question.
func answerCurrent(t *testing.T, r *Room, sink *recordingSink, pid string) {
	t.Helper()
	q := questionFor(t, sink, pid)
	ans := answerFor(t, q.Value, r.Config.Conv, r.Config.Mode)
	if err := r.SubmitAnswer(context.Background(), pid, ans); err != nil {
		t.Fatalf("submit answer for %s: %v", pid, err)
	}
}
