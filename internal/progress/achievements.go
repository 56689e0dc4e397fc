package progress

import (
	"convtrainer/internal/game"
	"convtrainer/internal/store"
)

// Achievement ids. The browser owns names and artwork; the server only
// decides when one unlocks.
const (
	AchFirstGame    = "first_game"
	AchPlayTen      = "play_10_games"
	AchStreakTen    = "streak_10"
	AchStreakTwenty = "streak_25"
	AchLevelFive    = "level_5"
	AchLevelTen     = "level_10"
	AchDailySeven   = "daily_7"
	AchSurvivor     = "survivor"
	AchSpeedDemon   = "speed_demon"
	AchNibbleMaster = "nibble_master"
)

// catalogue is the full set of ids the unlock endpoint accepts.
var catalogue = map[string]struct{}{
	AchFirstGame:    {},
	AchPlayTen:      {},
	AchStreakTen:    {},
	AchStreakTwenty: {},
	AchLevelFive:    {},
	AchLevelTen:     {},
	AchDailySeven:   {},
	AchSurvivor:     {},
	AchSpeedDemon:   {},
	AchNibbleMaster: {},
}

// KnownAchievement reports whether the id is in the catalogue.
func KnownAchievement(id string) bool {
	_, ok := catalogue[id]
	return ok
}

// earnedFromProgress derives the unlocks visible in the aggregate row
// alone.
func earnedFromProgress(p *store.Progress) []string {
	var out []string
	if p.GamesPlayed >= 1 {
		out = append(out, AchFirstGame)
	}
	if p.GamesPlayed >= 10 {
		out = append(out, AchPlayTen)
	}
	if p.BestStreak >= 10 {
		out = append(out, AchStreakTen)
	}
	if p.BestStreak >= 25 {
		out = append(out, AchStreakTwenty)
	}
	if p.Level >= 5 {
		out = append(out, AchLevelFive)
	}
	if p.Level >= 10 {
		out = append(out, AchLevelTen)
	}
	if p.DailyStreak >= 7 {
		out = append(out, AchDailySeven)
	}
	return out
}

// earnedFromResult derives the unlocks that depend on how one specific
// game went.
func earnedFromResult(mode game.Mode, e game.ResultEntry) []string {
	var out []string
	switch mode {
	case game.ModeSurvival:
		if e.Won {
			out = append(out, AchSurvivor)
		}
	case game.ModeSpeedRound:
		if e.Score >= 30 {
			out = append(out, AchSpeedDemon)
		}
	case game.ModeNibbleSprint:
		if e.Score >= 25 {
			out = append(out, AchNibbleMaster)
		}
	}
	return out
}
