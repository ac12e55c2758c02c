package game

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"rps_arena/internal/domain/game"
)

// watchKey identifies one unanswered choice: a game, its round and the seat
// that already chose.
type watchKey struct {
	gameID string
	turn   int
	seat   int
}

// Watchdog runs the choice timeout for one client. It is armed while exactly
// one player has chosen in the current round and fires onExpire with the
// snapshot that armed it.
type Watchdog struct {
	clock    clockwork.Clock
	timeout  time.Duration
	onExpire func(observed game.Game)

	mu    sync.Mutex
	key   watchKey
	timer clockwork.Timer
}

func NewWatchdog(clock clockwork.Clock, timeout time.Duration, onExpire func(observed game.Game)) *Watchdog {
	return &Watchdog{
		clock:    clock,
		timeout:  timeout,
		onExpire: onExpire,
	}
}

// Observe arms, keeps or disarms the timer for the latest snapshot. The same
// pending round seen again keeps the original deadline.
func (w *Watchdog) Observe(g game.Game) {
	w.mu.Lock()
	defer w.mu.Unlock()

	seat := g.PendingSeat()
	if g.Status != game.StatusInProgress || seat == 0 {
		w.stopLocked()
		return
	}

	key := watchKey{gameID: g.ID, turn: g.CurrentTurn, seat: seat}
	if w.timer != nil && w.key == key {
		return
	}
	w.stopLocked()

	w.key = key
	observed := g
	var timer clockwork.Timer
	timer = w.clock.AfterFunc(w.timeout, func() {
		w.mu.Lock()
		current := w.timer == timer
		if current {
			w.timer = nil
			w.key = watchKey{}
		}
		w.mu.Unlock()
		if current {
			w.onExpire(observed)
		}
	})
	w.timer = timer
}

func (w *Watchdog) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timer != nil
}

func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
}

func (w *Watchdog) stopLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.key = watchKey{}
}
