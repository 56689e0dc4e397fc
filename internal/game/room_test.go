package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"
)

func TestRoom_JoinAddsParticipants(t *testing.T) {
	r, _ := newTestRoom(t, testConfig())

	host := joinPlayer(t, r, "Alice", true)
	guest := joinPlayer(t, r, "Bob", false)

	snap := r.Snapshot()
	if snap.PlayerCount != 2 {
		t.Errorf("Expected 2 players, got %d", snap.PlayerCount)
	}
	if snap.HostID != host {
		t.Errorf("Expected host %s, got %s", host, snap.HostID)
	}
	if !snap.Has(guest) {
		t.Error("Second player not on roster after join")
	}
}

func TestRoom_JoinRejectsBadNames(t *testing.T) {
	r, _ := newTestRoom(t, testConfig())

	_, err := r.Join(context.Background(), JoinInput{DisplayName: "   "})
	if !errors.Is(err, ErrNameInvalid) {
		t.Errorf("Expected ErrNameInvalid, got %v", err)
	}

	long := ""
	for i := 0; i < 41; i++ {
		long += "x"
	}
	_, err = r.Join(context.Background(), JoinInput{DisplayName: long})
	if !errors.Is(err, ErrNameInvalid) {
		t.Errorf("Expected ErrNameInvalid for 41 runes, got %v", err)
	}
}

func TestRoom_RosterCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPlayers = 2
	r, _ := newTestRoom(t, cfg)

	joinPlayer(t, r, "Alice", true)
	joinPlayer(t, r, "Bob", false)

	_, err := r.Join(context.Background(), JoinInput{DisplayName: "Carol", Role: RolePlayer})
	if !errors.Is(err, ErrRoomFull) {
		t.Errorf("Expected ErrRoomFull, got %v", err)
	}

	// Spectators do not count against the cap.
	if _, err := r.Join(context.Background(), JoinInput{DisplayName: "Watcher", Role: RoleSpectator}); err != nil {
		t.Errorf("Spectator join should succeed on a full room: %v", err)
	}
	if got := r.Snapshot().PlayerCount; got != 2 {
		t.Errorf("Player count grew past cap: %d", got)
	}
}

func TestRoom_PlayersCannotJoinAfterStart(t *testing.T) {
	r, _ := newTestRoom(t, testConfig())
	host := joinPlayer(t, r, "Alice", true)

	if err := r.StartGame(context.Background(), host); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, r, StatusSyncing, time.Second)

	_, err := r.Join(context.Background(), JoinInput{DisplayName: "Late", Role: RolePlayer})
	if !errors.Is(err, ErrRoomStarted) {
		t.Errorf("Expected ErrRoomStarted, got %v", err)
	}

	// Spectators may still join before the room ends.
	if _, err := r.Join(context.Background(), JoinInput{DisplayName: "Watcher", Role: RoleSpectator}); err != nil {
		t.Errorf("Spectator join during syncing should succeed: %v", err)
	}
}

func TestRoom_OnlyHostStarts(t *testing.T) {
	r, _ := newTestRoom(t, testConfig())
	joinPlayer(t, r, "Alice", true)
	other := joinPlayer(t, r, "Bob", false)

	if err := r.StartGame(context.Background(), other); !errors.Is(err, ErrNotHost) {
		t.Errorf("Expected ErrNotHost, got %v", err)
	}
}

func TestRoom_StatusMonotonic(t *testing.T) {
	r, sink := newTestRoom(t, testConfig())
	host := joinPlayer(t, r, "Alice", true)

	if got := r.Snapshot().Status; got != StatusLobby {
		t.Fatalf("fresh room not in lobby: %s", got)
	}
	if err := r.StartGame(context.Background(), host); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, r, StatusSyncing, time.Second)
	syncToPlaying(t, r, host)

	// A second start attempt must fail once past lobby.
	if err := r.StartGame(context.Background(), host); !errors.Is(err, ErrRoomStarted) {
		t.Errorf("Expected ErrRoomStarted on double start, got %v", err)
	}

	if err := r.HostEnd(context.Background(), host); err != nil {
		t.Fatalf("host end: %v", err)
	}
	waitForStatus(t, r, StatusEnded, time.Second)
	sink.waitForType(t, EventGameEnded, time.Second)

	// Terminal: no operation revives the room.
	if err := r.HostEnd(context.Background(), host); !errors.Is(err, ErrRoomEnded) {
		t.Errorf("Expected ErrRoomEnded after end, got %v", err)
	}
}

func TestRoom_SyncRoundsAdvanceWhenAllAck(t *testing.T) {
	r, sink := newTestRoom(t, testConfig())
	host := joinPlayer(t, r, "Alice", true)
	second := joinPlayer(t, r, "Bob", false)

	if err := r.StartGame(context.Background(), host); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, r, StatusSyncing, time.Second)

	ctx := context.Background()
	if err := r.SyncAck(ctx, host, 1); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if got := r.Snapshot().SyncRound; got != 0 {
		t.Errorf("Round advanced with one of two acks: %d", got)
	}
	if err := r.SyncAck(ctx, second, 1); err != nil {
		t.Fatalf("ack: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for r.Snapshot().SyncRound != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := r.Snapshot().SyncRound; got != 1 {
		t.Fatalf("Round did not advance after both acks: %d", got)
	}

	syncToPlaying(t, r, host, second)
	if ev := sink.lastOfType(EventGameStarted); ev == nil {
		t.Error("No game_started event after final sync round")
	}
}

func TestRoom_LeaveMidSyncAdvancesRound(t *testing.T) {
	sink := &recordingSink{}
	r := NewRoom("room-leave-sync", "LEAVSY", testConfig())
	r.Sink = sink
	r.Generator = NewGenerator(42)
	// Watchdog far enough away that only the leave itself can explain
	// a round advancing.
	r.Timings = Timings{SyncRound: 5 * time.Second, DisconnectGrace: time.Second, AllLeftGrace: time.Second, EndedDrain: 50 * time.Millisecond}
	r.Start()
	t.Cleanup(r.Close)

	host := joinPlayer(t, r, "Alice", true)
	straggler := joinPlayer(t, r, "Bob", false)
	ctx := context.Background()
	if err := r.StartGame(ctx, host); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, r, StatusSyncing, time.Second)

	if err := r.SyncAck(ctx, host, 1); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if got := r.Snapshot().SyncRound; got != 0 {
		t.Fatalf("Round advanced with the straggler still seated: %d", got)
	}

	// The only un-acked player departs; the acked players must not wait
	// out the watchdog.
	if err := r.Leave(ctx, straggler); err != nil {
		t.Fatalf("leave: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for r.Snapshot().SyncRound != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := r.Snapshot().SyncRound; got != 1 {
		t.Fatalf("Round did not advance after the straggler left: %d", got)
	}

	// The remaining player's acks carry the room into play.
	for round := 2; round <= maxSyncRound; round++ {
		if err := r.SyncAck(ctx, host, round); err != nil {
			t.Fatalf("ack round %d: %v", round, err)
		}
	}
	waitForStatus(t, r, StatusPlaying, time.Second)
}

func TestRoom_SyncWatchdogForcesProgress(t *testing.T) {
	r, _ := newTestRoom(t, testConfig())
	host := joinPlayer(t, r, "Alice", true)
	joinPlayer(t, r, "Sleeper", false)

	if err := r.StartGame(context.Background(), host); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Nobody acks; the 200ms-per-round watchdog must still reach playing.
	waitForStatus(t, r, StatusPlaying, 3*time.Second)
}

func TestRoom_FirstToGoal(t *testing.T) {
	r, sink := newTestRoom(t, testConfig())
	a := joinPlayer(t, r, "A", true)
	b := joinPlayer(t, r, "B", false)
	if err := r.StartGame(context.Background(), a); err != nil {
		t.Fatalf("start: %v", err)
	}
	syncToPlaying(t, r, a, b)

	for i := 0; i < 3; i++ {
		answerCurrent(t, r, sink, a)
	}

	waitForStatus(t, r, StatusEnded, time.Second)
	ev := sink.waitForType(t, EventGameEnded, time.Second)
	payload := ev.Payload.(GameEndedPayload)
	if payload.Reason != EndGoalReached {
		t.Errorf("Expected goal_reached, got %s", payload.Reason)
	}
	if len(payload.Leaderboard) != 2 {
		t.Fatalf("Expected 2 leaderboard entries, got %d", len(payload.Leaderboard))
	}
	first := payload.Leaderboard[0]
	if first.DisplayName != "A" || first.Score != 3 || first.Rank != 1 {
		t.Errorf("Unexpected winner row: %+v", first)
	}
	if payload.Leaderboard[1].DisplayName != "B" {
		t.Errorf("Expected B second, got %+v", payload.Leaderboard[1])
	}
}

func TestRoom_SharedPaceBroadcastsQuestions(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = ModeSpeedRound
	cfg.Conv = ConvHexStandalone
	cfg.GoalType = GoalMostInTime
	cfg.GoalValue = GoalValue{}
	r, sink := newTestRoom(t, cfg)

	a := joinPlayer(t, r, "A", true)
	b := joinPlayer(t, r, "B", false)
	c := joinPlayer(t, r, "C", false)
	if err := r.StartGame(context.Background(), a); err != nil {
		t.Fatalf("start: %v", err)
	}
	syncToPlaying(t, r, a, b, c)

	firstQ := questionFor(t, sink, a)
	if firstQ.Index != 1 {
		t.Errorf("First shared question index = %d, want 1", firstQ.Index)
	}
	before := sink.countOfType(EventQuestion)

	answerCurrent(t, r, sink, a)

	// One broadcast question for the whole room, not one per player.
	if got := sink.countOfType(EventQuestion); got != before+1 {
		t.Errorf("Expected exactly one new question event, got %d", got-before)
	}
	next := sink.lastOfType(EventQuestion)
	if next.To != "" {
		t.Errorf("Shared question should broadcast, got target %q", next.To)
	}
	if next.Payload.(QuestionPayload).Index != firstQ.Index+1 {
		t.Errorf("Shared question index did not advance: %+v", next.Payload)
	}

	// Private result for the submitter, leaderboard for everyone.
	res := sink.lastOfType(EventAnswerResult)
	if res == nil || res.To != a || !res.Payload.(AnswerResultPayload).Correct {
		t.Errorf("Expected private correct answer_result for A, got %+v", res)
	}
	lb := sink.lastOfType(EventLeaderboard)
	if lb == nil {
		t.Fatal("No leaderboard broadcast after correct answer")
	}
	rows := lb.Payload.([]LeaderboardEntry)
	if rows[0].DisplayName != "A" || rows[0].Score != 1 {
		t.Errorf("Expected A leading with 1, got %+v", rows[0])
	}
}

func TestRoom_PerPlayerPaceTargetsQuestions(t *testing.T) {
	r, sink := newTestRoom(t, testConfig())
	a := joinPlayer(t, r, "A", true)
	b := joinPlayer(t, r, "B", false)
	if err := r.StartGame(context.Background(), a); err != nil {
		t.Fatalf("start: %v", err)
	}
	syncToPlaying(t, r, a, b)

	for _, ev := range sink.all() {
		if ev.Type == EventQuestion && ev.To == "" {
			t.Fatal("Per-player mode broadcast a question room-wide")
		}
	}

	qa := questionFor(t, sink, a)
	answerCurrent(t, r, sink, a)
	qa2 := questionFor(t, sink, a)
	if qa2.Index != qa.Index+1 {
		t.Errorf("A's question index did not advance: %d -> %d", qa.Index, qa2.Index)
	}
	qb := questionFor(t, sink, b)
	if qb.Index != 1 {
		t.Errorf("B's question should still be the first, got index %d", qb.Index)
	}
}

func TestRoom_StreakTieBreaksOnBestStreakTime(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = ModeStreak
	cfg.GoalType = GoalStreak
	cfg.GoalValue = GoalValue{}
	r, sink := newTestRoom(t, cfg)

	a := joinPlayer(t, r, "A", true)
	b := joinPlayer(t, r, "B", false)
	if err := r.StartGame(context.Background(), a); err != nil {
		t.Fatalf("start: %v", err)
	}
	syncToPlaying(t, r, a, b)

	// A reaches best streak 2 first.
	answerCurrent(t, r, sink, a)
	answerCurrent(t, r, sink, a)
	// B matches it afterwards.
	answerCurrent(t, r, sink, b)
	answerCurrent(t, r, sink, b)
	// A fumbles and recovers, so A's last correct answer is the most
	// recent one in the room. The tie must still go to A, who reached
	// the shared best streak earlier.
	if err := r.SubmitAnswer(context.Background(), a, "not-binary"); err != nil {
		t.Fatalf("wrong answer: %v", err)
	}
	answerCurrent(t, r, sink, a)

	if err := r.HostEnd(context.Background(), a); err != nil {
		t.Fatalf("host end: %v", err)
	}
	ev := sink.waitForType(t, EventGameEnded, time.Second)
	board := ev.Payload.(GameEndedPayload).Leaderboard
	if len(board) != 2 {
		t.Fatalf("Expected 2 leaderboard entries, got %d", len(board))
	}
	if board[0].Score != 2 || board[1].Score != 2 {
		t.Fatalf("Expected a best-streak tie at 2, got %+v", board)
	}
	if board[0].DisplayName != "A" {
		t.Errorf("Tie broke on last answer time, not first best-streak: %+v", board)
	}
}

func TestRoom_SurvivalElimination(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = ModeSurvival
	cfg.GoalType = GoalSurvival
	cfg.GoalValue = GoalValue{Lives: 1}
	r, sink := newTestRoom(t, cfg)

	a := joinPlayer(t, r, "A", true)
	b := joinPlayer(t, r, "B", false)
	if err := r.StartGame(context.Background(), a); err != nil {
		t.Fatalf("start: %v", err)
	}
	syncToPlaying(t, r, a, b)

	// One wrong answer with a single life eliminates A; the field is
	// down to one survivor and the game ends.
	if err := r.SubmitAnswer(context.Background(), a, "not-binary"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitForStatus(t, r, StatusEnded, time.Second)

	ev := sink.waitForType(t, EventGameEnded, time.Second)
	payload := ev.Payload.(GameEndedPayload)
	if payload.Reason != EndGoalReached {
		t.Errorf("Expected goal_reached, got %s", payload.Reason)
	}
	for _, row := range payload.Leaderboard {
		if row.Score != 0 {
			t.Errorf("Expected all scores 0, got %+v", row)
		}
	}

	// Zero-score tie breaks on participant id ascending.
	wantOrder := []string{a, b}
	sort.Strings(wantOrder)
	names := map[string]string{a: "A", b: "B"}
	for i, row := range payload.Leaderboard {
		if row.DisplayName != names[wantOrder[i]] {
			t.Errorf("Leaderboard[%d] = %s, want %s", i, row.DisplayName, names[wantOrder[i]])
		}
	}
}

func TestRoom_TimeUpEndsTimedGame(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = ModeSpeedRound
	cfg.Conv = ConvHexStandalone
	cfg.GoalType = GoalMostInTime
	cfg.GoalValue = GoalValue{}
	r, sink := newTestRoom(t, cfg)

	a := joinPlayer(t, r, "A", true)
	if err := r.StartGame(context.Background(), a); err != nil {
		t.Fatalf("start: %v", err)
	}
	syncToPlaying(t, r, a)

	// Fire the game timer directly instead of waiting out the round.
	r.commands <- command{kind: cmdTick, tick: tickGameTimer}

	waitForStatus(t, r, StatusEnded, time.Second)
	ev := sink.waitForType(t, EventGameEnded, time.Second)
	if got := ev.Payload.(GameEndedPayload).Reason; got != EndTimeUp {
		t.Errorf("Expected time_up, got %s", got)
	}
}

func TestRoom_HostEnd(t *testing.T) {
	r, sink := newTestRoom(t, testConfig())
	host := joinPlayer(t, r, "Alice", true)
	other := joinPlayer(t, r, "Bob", false)
	if err := r.StartGame(context.Background(), host); err != nil {
		t.Fatalf("start: %v", err)
	}
	syncToPlaying(t, r, host, other)

	if err := r.HostEnd(context.Background(), other); !errors.Is(err, ErrNotHost) {
		t.Errorf("Expected ErrNotHost for non-host, got %v", err)
	}

	start := time.Now()
	if err := r.HostEnd(context.Background(), host); err != nil {
		t.Fatalf("host end: %v", err)
	}
	ev := sink.waitForType(t, EventGameEnded, time.Second)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("game_ended took %v, want under 100ms", elapsed)
	}
	if got := ev.Payload.(GameEndedPayload).Reason; got != EndHostEnded {
		t.Errorf("Expected host_ended, got %s", got)
	}
}

func TestRoom_SubmitOutsidePlayingIsProtocolError(t *testing.T) {
	r, sink := newTestRoom(t, testConfig())
	host := joinPlayer(t, r, "Alice", true)

	err := r.SubmitAnswer(context.Background(), host, "101")
	if !errors.Is(err, ErrNotPlaying) {
		t.Errorf("Expected ErrNotPlaying, got %v", err)
	}
	ev := sink.lastOfType(EventProtocolError)
	if ev == nil || ev.To != host {
		t.Errorf("Expected private protocol_error, got %+v", ev)
	}
}

func TestRoom_SpectatorsCannotScore(t *testing.T) {
	r, sink := newTestRoom(t, testConfig())
	host := joinPlayer(t, r, "Alice", true)
	watcher, err := r.Join(context.Background(), JoinInput{DisplayName: "Watcher", Role: RoleSpectator})
	if err != nil {
		t.Fatalf("spectator join: %v", err)
	}
	if err := r.StartGame(context.Background(), host); err != nil {
		t.Fatalf("start: %v", err)
	}
	syncToPlaying(t, r, host)

	if err := r.SubmitAnswer(context.Background(), watcher.ParticipantID, "0"); !errors.Is(err, ErrSpectator) {
		t.Errorf("Expected ErrSpectator, got %v", err)
	}
	_ = sink
}

func TestRoom_LeaveTransfersHost(t *testing.T) {
	r, _ := newTestRoom(t, testConfig())
	host := joinPlayer(t, r, "Alice", true)
	second := joinPlayer(t, r, "Bob", false)
	joinPlayer(t, r, "Carol", false)

	if err := r.Leave(context.Background(), host); err != nil {
		t.Fatalf("leave: %v", err)
	}
	snap := r.Snapshot()
	if snap.HostID != second {
		t.Errorf("Host should pass to oldest remaining player %s, got %s", second, snap.HostID)
	}
	if snap.Has(host) {
		t.Error("Departed host still on roster")
	}
}

func TestRoom_DisconnectGraceTransfersHost(t *testing.T) {
	r, _ := newTestRoom(t, testConfig())
	host := joinPlayer(t, r, "Alice", true)
	second := joinPlayer(t, r, "Bob", false)

	r.SetConnected(host, false)

	// Within the grace window the host keeps the role.
	time.Sleep(20 * time.Millisecond)
	if got := r.Snapshot().HostID; got != host {
		t.Fatalf("Host transferred before grace expired: %s", got)
	}

	deadline := time.Now().Add(time.Second)
	for r.Snapshot().HostID != second && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := r.Snapshot().HostID; got != second {
		t.Errorf("Host not transferred after grace window: %s", got)
	}
}

func TestRoom_ReconnectWithinGraceKeepsHost(t *testing.T) {
	r, _ := newTestRoom(t, testConfig())
	host := joinPlayer(t, r, "Alice", true)
	joinPlayer(t, r, "Bob", false)

	r.SetConnected(host, false)
	time.Sleep(20 * time.Millisecond)
	r.SetConnected(host, true)

	time.Sleep(200 * time.Millisecond)
	if got := r.Snapshot().HostID; got != host {
		t.Errorf("Reconnected host lost the role: %s", got)
	}
}

func TestRoom_AllLeftEndsAbandonedGame(t *testing.T) {
	r, sink := newTestRoom(t, testConfig())
	a := joinPlayer(t, r, "A", true)
	b := joinPlayer(t, r, "B", false)
	if err := r.StartGame(context.Background(), a); err != nil {
		t.Fatalf("start: %v", err)
	}
	syncToPlaying(t, r, a, b)

	r.SetConnected(a, false)
	r.SetConnected(b, false)

	waitForStatus(t, r, StatusEnded, 2*time.Second)
	ev := sink.waitForType(t, EventGameEnded, time.Second)
	if got := ev.Payload.(GameEndedPayload).Reason; got != EndAllLeft {
		t.Errorf("Expected all_left, got %s", got)
	}
}

func TestRoom_ChatRingAndBroadcast(t *testing.T) {
	r, sink := newTestRoom(t, testConfig())
	a := joinPlayer(t, r, "A", true)

	for i := 0; i < chatHistory+10; i++ {
		if err := r.Chat(context.Background(), a, fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("chat %d: %v", i, err)
		}
	}
	snap := r.Snapshot()
	if len(snap.Chat) != chatHistory {
		t.Errorf("Chat ring holds %d, want %d", len(snap.Chat), chatHistory)
	}
	if snap.Chat[0].Message != "message 10" {
		t.Errorf("Oldest retained message = %q, want %q", snap.Chat[0].Message, "message 10")
	}
	if got := sink.countOfType(EventChatMessage); got != chatHistory+10 {
		t.Errorf("Broadcast %d chat events, want %d", got, chatHistory+10)
	}

	// Oversized messages are truncated, not rejected.
	long := make([]rune, maxChatLength+50)
	for i := range long {
		long[i] = 'x'
	}
	if err := r.Chat(context.Background(), a, string(long)); err != nil {
		t.Fatalf("long chat: %v", err)
	}
	last := sink.lastOfType(EventChatMessage).Payload.(ChatMessagePayload)
	if got := len([]rune(last.Message)); got != maxChatLength {
		t.Errorf("Truncated length = %d, want %d", got, maxChatLength)
	}
}

func TestRoom_EndedHandsResultToHandler(t *testing.T) {
	results := make(chan GameResult, 1)
	sink := &recordingSink{}
	r := NewRoom("room-results", "RESLTS", testConfig())
	r.Sink = sink
	r.Generator = NewGenerator(42)
	r.Timings = Timings{SyncRound: 200 * time.Millisecond, DisconnectGrace: time.Second, AllLeftGrace: time.Second, EndedDrain: 50 * time.Millisecond}
	r.Results = resultFunc(func(res GameResult) { results <- res })
	r.Start()
	t.Cleanup(r.Close)

	a := joinPlayer(t, r, "A", true)
	b := joinPlayer(t, r, "B", false)
	if err := r.StartGame(context.Background(), a); err != nil {
		t.Fatalf("start: %v", err)
	}
	syncToPlaying(t, r, a, b)
	for i := 0; i < 3; i++ {
		answerCurrent(t, r, sink, a)
	}

	select {
	case res := <-results:
		if res.Reason != EndGoalReached {
			t.Errorf("Result reason = %s, want goal_reached", res.Reason)
		}
		if len(res.Entries) != 2 {
			t.Fatalf("Result entries = %d, want 2", len(res.Entries))
		}
		if !res.Entries[0].Won || res.Entries[0].Score != 3 {
			t.Errorf("Winner entry wrong: %+v", res.Entries[0])
		}
	case <-time.After(time.Second):
		t.Fatal("No game result delivered")
	}

	// The drain window passes and the sink is told to close the room.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		sink.mu.Lock()
		closed := sink.closed
		sink.mu.Unlock()
		if closed {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("Sink never told to close after drain window")
}

// resultFunc adapts a func to ResultHandler.
type resultFunc func(GameResult)

func (f resultFunc) HandleGameResult(res GameResult) { f(res) }

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid classic", func(c *Config) {}, false},
		{"unknown mode", func(c *Config) { c.Mode = "warp-speed" }, true},
		{"unknown conversion", func(c *Config) { c.Conv = "octal-standalone" }, true},
		{"unknown goal", func(c *Config) { c.GoalType = "until-dawn" }, true},
		{"zero max players", func(c *Config) { c.MaxPlayers = 0 }, true},
		{"too many players", func(c *Config) { c.MaxPlayers = MaxRoomPlayers + 1 }, true},
		{"first_to without target", func(c *Config) { c.GoalValue.FirstTo = 0 }, true},
		{"survival goal without survival mode", func(c *Config) {
			c.GoalType = GoalSurvival
			c.GoalValue = GoalValue{Lives: 3}
		}, true},
		{"survival mode needs lives", func(c *Config) {
			c.Mode = ModeSurvival
			c.GoalType = GoalSurvival
			c.GoalValue = GoalValue{}
		}, true},
		{"password visibility needs hash", func(c *Config) { c.Visibility = VisibilityPublicPassword }, true},
		{"speed round ignores goal seconds", func(c *Config) {
			c.Mode = ModeSpeedRound
			c.GoalType = GoalMostInTime
			c.GoalValue = GoalValue{}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestRoom_VerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	cfg := testConfig()
	cfg.Visibility = VisibilityPublicPassword
	cfg.PasswordHash = hash
	r, _ := newTestRoom(t, cfg)

	if err := r.VerifyPassword(""); !errors.Is(err, ErrPasswordRequired) {
		t.Errorf("Expected ErrPasswordRequired, got %v", err)
	}
	if err := r.VerifyPassword("wrong"); !errors.Is(err, ErrPasswordInvalid) {
		t.Errorf("Expected ErrPasswordInvalid, got %v", err)
	}
	if err := r.VerifyPassword("s3cret"); err != nil {
		t.Errorf("Correct password rejected: %v", err)
	}
}
