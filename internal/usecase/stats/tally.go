package stats

import (
	"reflect"
	"sort"
	"sync"

	"rps_arena/internal/domain/game"
	"rps_arena/internal/domain/user"
)

// Tally keeps running counters per player, fed by the games change feed.
// A completed game is counted once no matter how often it is redelivered,
// and only a deletion uncounts it: completion is terminal, so a snapshot
// showing it unfinished is older than the one already counted.
type Tally struct {
	mu        sync.RWMutex
	completed map[string]game.Game
	counters  map[string]user.Stats
	// gone collects deletions seen between BeginSeed and Seed.
	gone map[string]struct{}
}

func NewTally() *Tally {
	return &Tally{
		completed: make(map[string]game.Game),
		counters:  make(map[string]user.Stats),
	}
}

// Observe folds one snapshot into the tally and reports whether the
// counters changed.
func (t *Tally) Observe(g game.Game, exists bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !exists && t.gone != nil {
		t.gone[g.ID] = struct{}{}
	}
	_, counted := t.completed[g.ID]
	switch {
	case exists && g.Status == game.StatusCompleted && !counted:
		t.completed[g.ID] = g
		t.apply(g, 1)
		return true
	case counted && !exists:
		t.apply(t.completed[g.ID], -1)
		delete(t.completed, g.ID)
		return true
	}
	return false
}

// BeginSeed starts remembering deletions so that a following Seed does not
// count games removed while its scan was in flight.
func (t *Tally) BeginSeed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gone = make(map[string]struct{})
}

// Seed counts the completed games of a full scan that the feed has not
// delivered yet and ends the window opened by BeginSeed.
func (t *Tally) Seed(games []game.Game) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, g := range games {
		if g.Status != game.StatusCompleted {
			continue
		}
		if _, counted := t.completed[g.ID]; counted {
			continue
		}
		if _, deleted := t.gone[g.ID]; deleted {
			continue
		}
		t.completed[g.ID] = g
		t.apply(g, 1)
	}
	t.gone = nil
}

func (t *Tally) apply(g game.Game, sign int) {
	for _, uid := range []string{g.Player1ID, g.Player2ID} {
		if uid == "" {
			continue
		}
		var delta user.Stats
		add(&delta, uid, g)

		s := t.counters[uid]
		s.Total += sign * delta.Total
		s.Wins += sign * delta.Wins
		s.Losses += sign * delta.Losses
		s.Draws += sign * delta.Draws
		s.RoundsWon += sign * delta.RoundsWon
		s.RoundsLost += sign * delta.RoundsLost
		s.RoundsDrawn += sign * delta.RoundsDrawn
		if s.Total == 0 {
			delete(t.counters, uid)
			continue
		}
		t.counters[uid] = s
	}
}

func (t *Tally) Stats(uid string) user.Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.statsLocked(uid)
}

func (t *Tally) statsLocked(uid string) user.Stats {
	s := t.counters[uid]
	if s.Total == 0 {
		return user.Stats{}
	}
	mine := make([]game.Game, 0, s.Total)
	for _, g := range t.completed {
		if g.HasPlayer(uid) {
			mine = append(mine, g)
		}
	}
	s.WinStreak = streak(uid, completedFor(uid, mine))
	finish(&s)
	return s
}

func (t *Tally) All() map[string]user.Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]user.Stats, len(t.counters))
	for uid := range t.counters {
		out[uid] = t.statsLocked(uid)
	}
	return out
}

// Verify recounts from games and replaces the tally when it has drifted.
// A game the tally has counted but the scan still shows unfinished was
// completed after the scan was taken, so the tally's copy wins. It returns
// the players whose counters were wrong, sorted.
func (t *Tally) Verify(games []game.Game) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	games = t.mergeLocked(games)
	fresh := DeriveAll(games)

	var drifted []string
	seen := make(map[string]struct{}, len(fresh))
	for uid, want := range fresh {
		seen[uid] = struct{}{}
		if !reflect.DeepEqual(t.statsLocked(uid), want) {
			drifted = append(drifted, uid)
		}
	}
	for uid := range t.counters {
		if _, ok := seen[uid]; !ok {
			drifted = append(drifted, uid)
		}
	}
	if len(drifted) == 0 {
		return nil
	}
	sort.Strings(drifted)

	t.completed = make(map[string]game.Game)
	t.counters = make(map[string]user.Stats)
	for _, g := range games {
		if g.Status == game.StatusCompleted {
			t.completed[g.ID] = g
			t.apply(g, 1)
		}
	}
	return drifted
}

func (t *Tally) mergeLocked(games []game.Game) []game.Game {
	merged := make([]game.Game, len(games))
	for i, g := range games {
		if done, ok := t.completed[g.ID]; ok && g.Status != game.StatusCompleted {
			g = done
		}
		merged[i] = g
	}
	return merged
}
