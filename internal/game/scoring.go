package game

import (
	"sort"
	"time"
)

// scoreDelta is the points awarded per correct answer. Uniform across
// modes so leaderboards stay comparable; streak length feeds XP instead.
const scoreDelta = 1

// applyCorrect credits a correct answer. Writer goroutine only.
func (r *Room) applyCorrect(p *Participant) {
	p.Score += scoreDelta
	p.Streak++
	if p.Streak > p.BestStreak {
		p.BestStreak = p.Streak
		p.BestStreakAt = time.Now()
	}
	p.ScoreReachedAt = time.Now()
}

// applyIncorrect resets the streak and, in survival, burns a life.
func (r *Room) applyIncorrect(p *Participant) {
	p.Streak = 0
	if r.Config.Mode == ModeSurvival && p.Lives > 0 {
		p.Lives--
		if p.Lives == 0 {
			p.Eliminated = true
		}
	}
}

// checkGoal ends the game when a correct answer satisfies the goal.
func (r *Room) checkGoal(p *Participant) {
	if r.Config.GoalType == GoalFirstTo && p.Score >= r.Config.GoalValue.FirstTo {
		r.endGame(EndGoalReached)
	}
}

// checkSurvivalEnd ends survival when nobody is left standing, or when a
// multi-player field is down to one survivor.
func (r *Room) checkSurvivalEnd() {
	if r.status != StatusPlaying || r.Config.Mode != ModeSurvival {
		return
	}
	alive, total := 0, 0
	for _, p := range r.participants {
		if p.Role != RolePlayer {
			continue
		}
		total++
		if !p.Eliminated {
			alive++
		}
	}
	if total == 0 {
		return
	}
	if alive == 0 || (alive == 1 && total > 1) {
		r.endGame(EndGoalReached)
	}
}

// rankValue is what the mode competes on: best streak for
// streak-challenge, score everywhere else.
func (r *Room) rankValue(p *Participant) int {
	if r.Config.Mode == ModeStreak {
		return p.BestStreak
	}
	return p.Score
}

// rankReachedAt is when the ranked value was reached, for first-reach
// tie-breaking. A streak-challenge tie must break on when the best
// streak happened, not on the last correct answer.
func (r *Room) rankReachedAt(p *Participant) time.Time {
	if r.Config.Mode == ModeStreak {
		return p.BestStreakAt
	}
	return p.ScoreReachedAt
}

// rankedPlayers returns the room's players in final-standing order.
// Ties break on who reached the value first, then participant id, so
// standings are deterministic.
func (r *Room) rankedPlayers() []*Participant {
	players := make([]*Participant, 0, len(r.order))
	for _, id := range r.order {
		if p, ok := r.participants[id]; ok && p.Role == RolePlayer {
			players = append(players, p)
		}
	}
	sort.SliceStable(players, func(i, j int) bool {
		a, b := players[i], players[j]
		if ka, kb := r.rankValue(a), r.rankValue(b); ka != kb {
			return ka > kb
		}
		if ta, tb := r.rankReachedAt(a), r.rankReachedAt(b); !ta.Equal(tb) {
			if ta.IsZero() {
				return false
			}
			if tb.IsZero() {
				return true
			}
			return ta.Before(tb)
		}
		return a.ID < b.ID
	})
	return players
}

// leaderboard builds the broadcastable standings.
func (r *Room) leaderboard() []LeaderboardEntry {
	players := r.rankedPlayers()
	board := make([]LeaderboardEntry, len(players))
	for i, p := range players {
		board[i] = LeaderboardEntry{
			Rank:        i + 1,
			DisplayName: p.DisplayName,
			Score:       r.rankValue(p),
			IsGuest:     p.IsGuest(),
		}
	}
	return board
}

// buildResult assembles the outcome handed to the progress service,
// ranked identically to the game_ended leaderboard.
func (r *Room) buildResult() GameResult {
	res := GameResult{
		RoomID:    r.ID,
		Mode:      r.Config.Mode,
		Conv:      r.Config.Conv,
		Reason:    r.endReason,
		StartedAt: r.startedAt,
		EndedAt:   r.endedAt,
	}
	for i, p := range r.rankedPlayers() {
		res.Entries = append(res.Entries, ResultEntry{
			ParticipantID: p.ID,
			UserID:        p.UserID,
			DisplayName:   p.DisplayName,
			Rank:          i + 1,
			Score:         p.Score,
			BestStreak:    p.BestStreak,
			Won:           i == 0,
		})
	}
	return res
}
