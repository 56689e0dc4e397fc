package game

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// run is the room's writer goroutine. Every mutation flows through here,
// so handlers below touch state without locks.
func (r *Room) run() {
	defer func() {
		r.cancelTimers()
		close(r.done)
		for {
			select {
			case cmd := <-r.commands:
				cmd.respond(nil, ErrRoomClosed)
			default:
				return
			}
		}
	}()
	for {
		select {
		case cmd := <-r.commands:
			r.handle(cmd)
		case <-r.stop:
			return
		}
	}
}

func (r *Room) handle(cmd command) {
	switch cmd.kind {
	case cmdJoin:
		r.handleJoin(cmd)
	case cmdLeave:
		r.handleLeave(cmd)
	case cmdStart:
		r.handleStart(cmd)
	case cmdOwnerStart:
		r.handleOwnerStart(cmd)
	case cmdSyncAck:
		r.handleSyncAck(cmd)
	case cmdSubmitAnswer:
		r.handleSubmitAnswer(cmd)
	case cmdChat:
		r.handleChat(cmd)
	case cmdHostEnd:
		r.handleHostEnd(cmd)
	case cmdConnected:
		r.handleConnected(cmd)
	case cmdDisconnected:
		r.handleDisconnected(cmd)
	case cmdTick:
		r.handleTick(cmd)
	}
}

func (r *Room) handleJoin(cmd command) {
	in := cmd.join
	if r.status == StatusEnded {
		cmd.respond(nil, ErrRoomEnded)
		return
	}
	if in.Role == RolePlayer && r.status != StatusLobby {
		cmd.respond(nil, ErrRoomStarted)
		return
	}
	if in.Role == RolePlayer && r.playerCount() >= r.Config.MaxPlayers {
		cmd.respond(nil, ErrRoomFull)
		return
	}
	if !ValidDisplayName(in.DisplayName) {
		cmd.respond(nil, ErrNameInvalid)
		return
	}

	p := NewParticipant(uuid.NewString(), in.DisplayName, in.Role)
	p.UserID = in.UserID
	p.GuestTag = in.GuestTag
	if in.AsHost && r.hostID == "" {
		p.IsHost = true
		r.hostID = p.ID
	}
	r.participants[p.ID] = p
	r.order = append(r.order, p.ID)
	r.touch()

	r.stopAllLeftTimer()
	r.publishSnapshot()
	r.broadcastRoomState()
	cmd.respond(JoinResult{ParticipantID: p.ID, Roster: r.Snapshot().State()}, nil)
}

func (r *Room) handleLeave(cmd command) {
	p, ok := r.participants[cmd.pid]
	if !ok {
		cmd.respond(nil, ErrUnknownPlayer)
		return
	}
	delete(r.participants, cmd.pid)
	for i, id := range r.order {
		if id == cmd.pid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if t, ok := r.graceTimers[cmd.pid]; ok {
		t.Stop()
		delete(r.graceTimers, cmd.pid)
	}
	r.touch()

	if p.IsHost {
		r.transferHost()
	}
	if r.status == StatusSyncing {
		// The departed seat may have been the last un-acked player.
		r.advanceSyncRounds()
	}
	if r.status == StatusPlaying {
		r.checkSurvivalEnd()
	}
	if r.status != StatusEnded {
		r.maybeArmAllLeft()
		r.publishSnapshot()
		r.broadcastRoomState()
	}
	cmd.respond(nil, nil)
}

func (r *Room) handleStart(cmd command) {
	if r.status != StatusLobby {
		cmd.respond(nil, ErrRoomStarted)
		return
	}
	if cmd.pid != r.hostID {
		cmd.respond(nil, ErrNotHost)
		return
	}
	r.enterSyncing()
	cmd.respond(nil, nil)
}

func (r *Room) handleOwnerStart(cmd command) {
	if r.status != StatusLobby {
		cmd.respond(nil, ErrRoomStarted)
		return
	}
	r.enterSyncing()
	cmd.respond(nil, nil)
}

func (r *Room) enterSyncing() {
	r.status = StatusSyncing
	r.syncRound = 0
	for _, p := range r.participants {
		p.Score = 0
		p.Lives = 0
		p.Streak = 0
		p.BestStreak = 0
		p.Eliminated = false
		p.ScoreReachedAt = time.Time{}
		p.BestStreakAt = time.Time{}
		p.syncRound = 0
		p.question = nil
		p.questionIndex = 0
	}
	r.touch()
	r.publishSnapshot()
	r.broadcastRoomState()
	r.emit(Event{Type: EventSyncRoundComplete, Payload: SyncRoundCompletePayload{Round: 0}})
	r.armSyncWatchdog()
	// A room with no players (tournament bracket emptied before start)
	// has nothing to wait for.
	r.advanceSyncRounds()
}

func (r *Room) handleSyncAck(cmd command) {
	if r.status != StatusSyncing {
		r.emitTo(cmd.pid, EventProtocolError, ProtocolErrorPayload{Code: "INVALID_ARGUMENT"})
		cmd.respond(nil, ErrNotSyncing)
		return
	}
	p, ok := r.participants[cmd.pid]
	if !ok {
		cmd.respond(nil, ErrUnknownPlayer)
		return
	}
	if p.Role == RolePlayer && cmd.round > p.syncRound {
		p.syncRound = cmd.round
	}
	r.touch()
	r.advanceSyncRounds()
	cmd.respond(nil, nil)
}

// advanceSyncRounds moves the room's sync round forward while every
// player has acked the next one; round 3 starts play.
func (r *Room) advanceSyncRounds() {
	for r.status == StatusSyncing && r.syncRound < maxSyncRound {
		next := r.syncRound + 1
		ready := true
		for _, p := range r.participants {
			if p.Role == RolePlayer && p.syncRound < next {
				ready = false
				break
			}
		}
		if !ready {
			return
		}
		r.syncRound = next
		r.publishSnapshot()
		r.emit(Event{Type: EventSyncRoundComplete, Payload: SyncRoundCompletePayload{
			Round:    next,
			AllReady: next == maxSyncRound,
		}})
		if next == maxSyncRound {
			r.enterPlaying()
			return
		}
		r.armSyncWatchdog()
	}
}

func (r *Room) enterPlaying() {
	r.status = StatusPlaying
	r.startedAt = time.Now()
	r.touch()
	if r.Config.Mode == ModeSurvival {
		for _, p := range r.participants {
			if p.Role == RolePlayer {
				p.Lives = r.Config.GoalValue.Lives
			}
		}
	}
	r.emit(Event{Type: EventGameStarted, Payload: struct{}{}})

	if r.Config.Mode.SharedPace() {
		r.nextSharedQuestion()
	} else {
		for _, id := range r.order {
			p := r.participants[id]
			if p != nil && p.scorable() {
				r.nextPlayerQuestion(p)
			}
		}
	}

	secs := r.Config.Mode.TimerSeconds()
	if secs == 0 && (r.Config.GoalType == GoalMostInTime || r.Config.GoalType == GoalTimed) {
		secs = r.Config.GoalValue.Seconds
	}
	if secs > 0 {
		r.gameTimer = r.scheduleTick(time.Duration(secs)*time.Second, command{kind: cmdTick, tick: tickGameTimer})
	}
	r.publishSnapshot()
	r.maybeArmAllLeft()
}

func (r *Room) nextSharedQuestion() {
	r.questionIndex++
	q := r.Generator.Next(r.Config.Conv, r.Config.Mode)
	q.Index = r.questionIndex
	r.sharedQuestion = &q
	r.emit(Event{Type: EventQuestion, Payload: QuestionPayload{Value: q.Value, Index: q.Index}})
}

func (r *Room) nextPlayerQuestion(p *Participant) {
	p.questionIndex++
	q := r.Generator.Next(r.Config.Conv, r.Config.Mode)
	q.Index = p.questionIndex
	p.question = &q
	r.emitTo(p.ID, EventQuestion, QuestionPayload{Value: q.Value, Index: q.Index})
}

func (r *Room) handleSubmitAnswer(cmd command) {
	if r.status != StatusPlaying {
		r.emitTo(cmd.pid, EventProtocolError, ProtocolErrorPayload{Code: "INVALID_ARGUMENT"})
		cmd.respond(nil, ErrNotPlaying)
		return
	}
	p, ok := r.participants[cmd.pid]
	if !ok {
		cmd.respond(nil, ErrUnknownPlayer)
		return
	}
	if p.Role != RolePlayer {
		r.emitTo(cmd.pid, EventProtocolError, ProtocolErrorPayload{Code: "FORBIDDEN"})
		cmd.respond(nil, ErrSpectator)
		return
	}
	if p.Eliminated {
		r.emitTo(cmd.pid, EventProtocolError, ProtocolErrorPayload{Code: "INVALID_ARGUMENT"})
		cmd.respond(nil, nil)
		return
	}

	q := p.question
	if r.Config.Mode.SharedPace() {
		q = r.sharedQuestion
	}
	if q == nil {
		cmd.respond(nil, ErrNotPlaying)
		return
	}
	r.touch()

	if IsCorrect(cmd.text, q.Answer, r.Config.Conv) {
		r.applyCorrect(p)
		r.emitTo(p.ID, EventAnswerResult, AnswerResultPayload{Correct: true})
		if r.Config.Mode.SharedPace() {
			r.nextSharedQuestion()
		} else {
			r.nextPlayerQuestion(p)
		}
		r.broadcastLeaderboard()
		r.checkGoal(p)
	} else {
		r.applyIncorrect(p)
		r.emitTo(p.ID, EventAnswerResult, AnswerResultPayload{Correct: false})
		if p.Eliminated {
			r.broadcastLeaderboard()
			r.broadcastRoomState()
			r.checkSurvivalEnd()
		}
	}
	if r.status != StatusEnded {
		r.publishSnapshot()
	}
	cmd.respond(nil, nil)
}

func (r *Room) handleChat(cmd command) {
	p, ok := r.participants[cmd.pid]
	if !ok {
		cmd.respond(nil, ErrUnknownPlayer)
		return
	}
	msg := strings.TrimSpace(cmd.text)
	if msg == "" {
		r.emitTo(cmd.pid, EventProtocolError, ProtocolErrorPayload{Code: "INVALID_ARGUMENT"})
		cmd.respond(nil, nil)
		return
	}
	if runes := []rune(msg); len(runes) > maxChatLength {
		msg = string(runes[:maxChatLength])
	}
	entry := ChatMessagePayload{
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
		Message:       msg,
		Timestamp:     time.Now().UTC(),
	}
	r.chat = append(r.chat, entry)
	if len(r.chat) > chatHistory {
		r.chat = r.chat[len(r.chat)-chatHistory:]
	}
	r.touch()
	r.publishSnapshot()
	r.emit(Event{Type: EventChatMessage, Payload: entry})
	cmd.respond(nil, nil)
}

func (r *Room) handleHostEnd(cmd command) {
	if r.status == StatusEnded {
		cmd.respond(nil, ErrRoomEnded)
		return
	}
	if cmd.pid != r.hostID {
		cmd.respond(nil, ErrNotHost)
		return
	}
	r.endGame(EndHostEnded)
	cmd.respond(nil, nil)
}

func (r *Room) handleConnected(cmd command) {
	p, ok := r.participants[cmd.pid]
	if !ok {
		cmd.respond(nil, nil)
		return
	}
	if t, ok := r.graceTimers[cmd.pid]; ok {
		t.Stop()
		delete(r.graceTimers, cmd.pid)
	}
	p.Connected = true
	r.touch()
	r.stopAllLeftTimer()
	r.publishSnapshot()
	r.broadcastRoomState()
	cmd.respond(nil, nil)
}

func (r *Room) handleDisconnected(cmd command) {
	p, ok := r.participants[cmd.pid]
	if !ok || r.status == StatusEnded {
		cmd.respond(nil, nil)
		return
	}
	p.Connected = false
	if t, ok := r.graceTimers[cmd.pid]; ok {
		t.Stop()
	}
	r.graceTimers[cmd.pid] = r.scheduleTick(r.Timings.DisconnectGrace,
		command{kind: cmdTick, tick: tickReconnectGrace, pid: cmd.pid})
	r.maybeArmAllLeft()
	r.publishSnapshot()
	r.broadcastRoomState()
	cmd.respond(nil, nil)
}

func (r *Room) handleTick(cmd command) {
	switch cmd.tick {
	case tickSyncWatchdog:
		r.handleSyncWatchdog(cmd.round)
	case tickGameTimer:
		if r.status == StatusPlaying {
			r.endGame(EndTimeUp)
		}
	case tickAllLeft:
		if r.status == StatusSyncing || r.status == StatusPlaying {
			if r.connectedCount() == 0 {
				r.endGame(EndAllLeft)
			}
		}
	case tickReconnectGrace:
		r.handleReconnectGrace(cmd.pid)
	case tickDrain:
		if r.Sink != nil {
			r.Sink.RoomClosed(r.ID)
		}
	}
}

// handleSyncWatchdog force-completes a stalled sync round so one dead
// client cannot wedge the room.
func (r *Room) handleSyncWatchdog(round int) {
	if r.status != StatusSyncing || r.syncRound != round {
		return
	}
	r.log.WithField("round", round).Warn("sync round timed out, forcing completion")
	next := round + 1
	for _, p := range r.participants {
		if p.Role == RolePlayer && p.syncRound < next {
			p.syncRound = next
		}
	}
	r.advanceSyncRounds()
}

// handleReconnectGrace fires when a disconnected participant's grace
// window passes. The seat survives until the room ends; the host role
// does not.
func (r *Room) handleReconnectGrace(pid string) {
	p, ok := r.participants[pid]
	if !ok || p.Connected || r.status == StatusEnded {
		return
	}
	delete(r.graceTimers, pid)
	if p.IsHost {
		r.transferHost()
		r.publishSnapshot()
		r.broadcastRoomState()
	}
}

// transferHost hands the host role to the oldest connected player, then
// the oldest player, then anyone; a room with no seats has no host.
func (r *Room) transferHost() {
	if cur, ok := r.participants[r.hostID]; ok {
		cur.IsHost = false
	}
	r.hostID = ""
	pick := func(accept func(*Participant) bool) bool {
		for _, id := range r.order {
			p := r.participants[id]
			if p != nil && accept(p) {
				p.IsHost = true
				r.hostID = p.ID
				return true
			}
		}
		return false
	}
	if pick(func(p *Participant) bool { return p.Role == RolePlayer && p.Connected }) {
		return
	}
	if pick(func(p *Participant) bool { return p.Role == RolePlayer }) {
		return
	}
	pick(func(p *Participant) bool { return true })
}

func (r *Room) endGame(reason EndReason) {
	if r.status == StatusEnded {
		return
	}
	r.status = StatusEnded
	r.endReason = reason
	r.endedAt = time.Now()
	r.cancelTimers()
	r.publishSnapshot()

	board := r.leaderboard()
	r.emit(Event{Type: EventGameEnded, Payload: GameEndedPayload{Leaderboard: board, Reason: reason}})
	r.log.WithFields(logrus.Fields{
		"reason":  reason,
		"players": r.playerCount(),
	}).Info("game ended")

	if r.Results != nil {
		r.Results.HandleGameResult(r.buildResult())
	}
	if r.OnEnded != nil {
		r.OnEnded(r.ID)
	}
	r.drainTimer = r.scheduleTick(r.Timings.EndedDrain, command{kind: cmdTick, tick: tickDrain})
}

// maybeArmAllLeft starts the abandoned-room countdown when no live
// connection remains mid-game.
func (r *Room) maybeArmAllLeft() {
	if r.status != StatusSyncing && r.status != StatusPlaying {
		return
	}
	if r.connectedCount() > 0 || r.allLeftTimer != nil {
		return
	}
	r.allLeftTimer = r.scheduleTick(r.Timings.AllLeftGrace, command{kind: cmdTick, tick: tickAllLeft})
}

func (r *Room) stopAllLeftTimer() {
	if r.allLeftTimer != nil {
		r.allLeftTimer.Stop()
		r.allLeftTimer = nil
	}
}

func (r *Room) armSyncWatchdog() {
	if r.syncTimer != nil {
		r.syncTimer.Stop()
	}
	r.syncTimer = r.scheduleTick(r.Timings.SyncRound,
		command{kind: cmdTick, tick: tickSyncWatchdog, round: r.syncRound})
}

// scheduleTick arms a timer whose callback re-enters the writer through
// the command queue, keeping all mutation single-threaded.
func (r *Room) scheduleTick(d time.Duration, cmd command) *time.Timer {
	return time.AfterFunc(d, func() {
		select {
		case r.commands <- cmd:
		case <-r.done:
		}
	})
}

func (r *Room) cancelTimers() {
	if r.syncTimer != nil {
		r.syncTimer.Stop()
	}
	if r.gameTimer != nil {
		r.gameTimer.Stop()
	}
	r.stopAllLeftTimer()
	for pid, t := range r.graceTimers {
		t.Stop()
		delete(r.graceTimers, pid)
	}
}

func (r *Room) playerCount() int {
	n := 0
	for _, p := range r.participants {
		if p.Role == RolePlayer {
			n++
		}
	}
	return n
}

func (r *Room) connectedCount() int {
	n := 0
	for _, p := range r.participants {
		if p.Connected {
			n++
		}
	}
	return n
}

func (r *Room) touch() {
	r.lastActive = time.Now()
}

func (r *Room) emit(ev Event) {
	if r.Sink != nil {
		r.Sink.Publish(r.ID, ev)
	}
}

func (r *Room) emitTo(pid string, t EventType, payload any) {
	r.emit(Event{Type: t, To: pid, Payload: payload})
}

func (r *Room) broadcastRoomState() {
	r.emit(Event{Type: EventRoomState, Payload: r.Snapshot().State()})
}

func (r *Room) broadcastLeaderboard() {
	r.emit(Event{Type: EventLeaderboard, Payload: r.leaderboard()})
}
