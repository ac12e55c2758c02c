package stats

import (
	"sort"

	"rps_arena/internal/domain/game"
	"rps_arena/internal/domain/user"
)

// ScoreWeights are the leaderboard points per round and per finished game.
type ScoreWeights struct {
	RoundWin  int
	RoundLoss int
	RoundDraw int
	GameWin   int
	GameLoss  int
}

func DefaultWeights() ScoreWeights {
	return ScoreWeights{
		RoundWin:  10,
		RoundLoss: -2,
		RoundDraw: 2,
		GameWin:   5,
		GameLoss:  -3,
	}
}

func (w ScoreWeights) Score(s user.Stats) int {
	return w.RoundWin*s.RoundsWon +
		w.RoundLoss*s.RoundsLost +
		w.RoundDraw*s.RoundsDrawn +
		w.GameWin*s.Wins +
		w.GameLoss*s.Losses
}

// add folds one completed game into s from uid's point of view.
func add(s *user.Stats, uid string, g game.Game) {
	seat := g.Seat(uid)
	if seat == 0 || g.Status != game.StatusCompleted {
		return
	}
	s.Total++
	switch g.WinnerID {
	case "":
		s.Draws++
	case uid:
		s.Wins++
	default:
		s.Losses++
	}

	won, lost := game.OutcomePlayer1, game.OutcomePlayer2
	if seat == 2 {
		won, lost = lost, won
	}
	for _, r := range g.TurnResults {
		switch r.Result {
		case won:
			s.RoundsWon++
		case lost:
			s.RoundsLost++
		case game.OutcomeDraw:
			s.RoundsDrawn++
		}
	}
}

func finish(s *user.Stats) {
	s.WinRate = 0
	if s.Total > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Total)
	}
}

// completedFor returns uid's completed games, newest first.
func completedFor(uid string, games []game.Game) []game.Game {
	out := make([]game.Game, 0)
	for _, g := range games {
		if g.Status == game.StatusCompleted && g.HasPlayer(uid) {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Derive counts uid's record from scratch. It reads games only and is safe
// to call any number of times.
func Derive(uid string, games []game.Game) user.Stats {
	var s user.Stats
	mine := completedFor(uid, games)
	for _, g := range mine {
		add(&s, uid, g)
	}
	s.WinStreak = streak(uid, mine)
	finish(&s)
	return s
}

// streak counts wins from the newest completed game back to the first
// non-win. newestFirst must already be sorted.
func streak(uid string, newestFirst []game.Game) int {
	n := 0
	for _, g := range newestFirst {
		if g.WinnerID != uid {
			break
		}
		n++
	}
	return n
}

func DeriveAll(games []game.Game) map[string]user.Stats {
	players := make(map[string]struct{})
	for _, g := range games {
		if g.Status != game.StatusCompleted {
			continue
		}
		for _, uid := range []string{g.Player1ID, g.Player2ID} {
			if uid != "" {
				players[uid] = struct{}{}
			}
		}
	}
	out := make(map[string]user.Stats, len(players))
	for uid := range players {
		out[uid] = Derive(uid, games)
	}
	return out
}

// RecentGames lists uid's latest completed games. names maps user ids to
// usernames; a missing opponent shows up with an empty name.
func RecentGames(uid string, games []game.Game, names map[string]string, limit int) []user.RecentGame {
	mine := completedFor(uid, games)
	if limit > 0 && len(mine) > limit {
		mine = mine[:limit]
	}
	out := make([]user.RecentGame, 0, len(mine))
	for _, g := range mine {
		var s user.Stats
		add(&s, uid, g)
		result := user.ResultDraw
		switch {
		case s.Wins == 1:
			result = user.ResultWin
		case s.Losses == 1:
			result = user.ResultLoss
		}
		opponent := g.OpponentOf(uid)
		out = append(out, user.RecentGame{
			GameID:           g.ID,
			OpponentID:       opponent,
			OpponentUsername: names[opponent],
			Result:           result,
			RoundsWon:        s.RoundsWon,
			RoundsLost:       s.RoundsLost,
			CreatedAt:        g.CreatedAt,
		})
	}
	return out
}

// Leaderboard ranks every profile with at least one completed game.
// Ties on score fall back to wins, rounds won and games played.
func Leaderboard(profiles []user.Profile, all map[string]user.Stats, w ScoreWeights, limit int) []user.LeaderboardEntry {
	entries := make([]user.LeaderboardEntry, 0, len(profiles))
	for _, p := range profiles {
		s, ok := all[p.ID]
		if !ok || s.Total == 0 {
			continue
		}
		entries = append(entries, user.LeaderboardEntry{
			UserID:   p.ID,
			Username: p.Username,
			Avatar:   p.Avatar,
			Online:   p.Online,
			Score:    w.Score(s),
			Stats:    s,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.Score != b.Score:
			return a.Score > b.Score
		case a.Stats.Wins != b.Stats.Wins:
			return a.Stats.Wins > b.Stats.Wins
		case a.Stats.RoundsWon != b.Stats.RoundsWon:
			return a.Stats.RoundsWon > b.Stats.RoundsWon
		case a.Stats.Total != b.Stats.Total:
			return a.Stats.Total > b.Stats.Total
		}
		return a.Username < b.Username
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
