package game

import "time"

// Snapshot is the copy-on-read view of a room published by the writer
// after every mutation. HTTP handlers and the registry sweeper read
// these; nothing outside the writer touches the live maps.
type Snapshot struct {
	RoomID     string
	RoomCode   string
	Status     Status
	Config     PublicConfig
	HostID     string
	SyncRound  int
	CreatedAt  time.Time
	StartedAt  time.Time
	EndedAt    time.Time
	EndReason  EndReason
	LastActive time.Time
	Tournament *TournamentRef

	Participants []ParticipantInfo
	PlayerCount  int
	Connected    int
	Chat         []ChatMessagePayload
	Leaderboard  []LeaderboardEntry
}

// State assembles the room_state payload clients receive on attach and
// on roster changes.
func (s *Snapshot) State() RoomStatePayload {
	return RoomStatePayload{
		RoomID:          s.RoomID,
		RoomCode:        s.RoomCode,
		Status:          s.Status,
		Config:          s.Config,
		SyncRound:       s.SyncRound,
		ShowLeaderboard: s.Config.ShowLeaderboard,
		Participants:    s.Participants,
	}
}

// Has reports whether a participant id is on the roster.
func (s *Snapshot) Has(participantID string) bool {
	for _, p := range s.Participants {
		if p.ID == participantID {
			return true
		}
	}
	return false
}

// publishSnapshot rebuilds the immutable snapshot from writer state.
// Writer goroutine only.
func (r *Room) publishSnapshot() {
	snap := &Snapshot{
		RoomID:     r.ID,
		RoomCode:   r.Code,
		Status:     r.status,
		Config:     r.Config.Public(),
		HostID:     r.hostID,
		SyncRound:  r.syncRound,
		CreatedAt:  r.createdAt,
		StartedAt:  r.startedAt,
		EndedAt:    r.endedAt,
		EndReason:  r.endReason,
		LastActive: r.lastActive,
		Tournament: r.Tournament,
	}
	snap.Participants = make([]ParticipantInfo, 0, len(r.order))
	for _, id := range r.order {
		p, ok := r.participants[id]
		if !ok {
			continue
		}
		snap.Participants = append(snap.Participants, participantInfo(p))
		if p.Role == RolePlayer {
			snap.PlayerCount++
		}
		if p.Connected {
			snap.Connected++
		}
	}
	snap.Chat = append([]ChatMessagePayload(nil), r.chat...)
	snap.Leaderboard = r.leaderboard()
	r.snapshot.Store(snap)
}

func participantInfo(p *Participant) ParticipantInfo {
	return ParticipantInfo{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Role:        p.Role,
		IsHost:      p.IsHost,
		Score:       p.Score,
		Lives:       p.Lives,
		Connected:   p.Connected,
		Eliminated:  p.Eliminated,
		IsGuest:     p.IsGuest(),
	}
}
