package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"rps_arena/internal/domain/game"
	errs "rps_arena/internal/errors"
)

type EventType string

const (
	EventMatched        EventType = "matched"
	EventGameUpdated    EventType = "game_updated"
	EventRoundResolved  EventType = "round_resolved"
	EventCompleted      EventType = "completed"
	EventAbandoned      EventType = "abandoned"
	EventWaitingExpired EventType = "waiting_expired"
	EventGameGone       EventType = "game_gone"
	EventError          EventType = "error"
)

type Event struct {
	Type  EventType        `json:"type"`
	Game  *game.Game       `json:"game,omitempty"`
	Round *game.TurnResult `json:"round,omitempty"`
	Role  game.Role        `json:"role,omitempty"`
	Error string           `json:"error,omitempty"`
}

const listenerBuffer = 64

// Client acts for one signed-in user. It follows that user's current game
// through a store subscription, runs the user's waiting and choice timers,
// and only writes what this user may write: its own choice, its own profile
// pointer, resolutions and abandonments guarded by conditional updates.
type Client struct {
	userID string
	uc     *GameUseCase
	clock  clockwork.Clock
	log    *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	gameID      string
	last        game.Game
	hasLast     bool
	releasing   string
	unsubscribe func()
	waitTimer   clockwork.Timer
	watchdog    *Watchdog
	listeners   map[int]chan Event
	nextID      int
	closed      bool
}

func NewClient(ctx context.Context, userID string, uc *GameUseCase) *Client {
	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		userID:    userID,
		uc:        uc,
		clock:     uc.clock,
		log:       uc.log.With("user", userID),
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[int]chan Event),
	}
	c.watchdog = NewWatchdog(uc.clock, uc.rules.ChoiceTimeout, c.choiceExpired)
	return c
}

func (c *Client) UserID() string {
	return c.userID
}

// Game returns the latest snapshot of the attached game.
func (c *Client) Game() (game.Game, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.hasLast
}

// Listen returns a channel of events and a function that stops delivery.
// Slow listeners lose events rather than stall the client.
func (c *Client) Listen() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Event, listenerBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextID
	c.nextID++
	c.listeners[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if l, ok := c.listeners[id]; ok {
				delete(c.listeners, id)
				close(l)
			}
		})
	}
}

func (c *Client) emitLocked(ev Event) {
	for _, ch := range c.listeners {
		select {
		case ch <- ev:
		default:
			c.log.Warnf("dropping %s event for a slow listener", ev.Type)
		}
	}
}

func (c *Client) FindMatch(ctx context.Context) (game.Game, error) {
	if err := c.checkOpen(); err != nil {
		return game.Game{}, err
	}
	play, joined, err := c.uc.FindOrCreateMatch(ctx, c.userID)
	if err != nil {
		return game.Game{}, err
	}
	c.attach(play)
	if joined {
		c.emit(Event{Type: EventMatched, Game: &play})
	}
	return play, nil
}

func (c *Client) Challenge(ctx context.Context, target string) (game.Game, error) {
	if err := c.checkOpen(); err != nil {
		return game.Game{}, err
	}
	play, err := c.uc.Challenge(ctx, c.userID, target)
	if err != nil {
		return game.Game{}, err
	}
	c.attach(play)
	return play, nil
}

func (c *Client) Accept(ctx context.Context, gameID string) (game.Game, error) {
	if err := c.checkOpen(); err != nil {
		return game.Game{}, err
	}
	play, err := c.uc.AcceptChallenge(ctx, c.userID, gameID)
	if err != nil {
		return game.Game{}, err
	}
	c.attach(play)
	c.emit(Event{Type: EventMatched, Game: &play})
	return play, nil
}

// Resume re-attaches to the user's active game, e.g. after a reconnect.
func (c *Client) Resume(ctx context.Context) (game.Game, error) {
	if err := c.checkOpen(); err != nil {
		return game.Game{}, err
	}
	c.mu.Lock()
	if c.hasLast && c.gameID != "" {
		play := c.last
		c.mu.Unlock()
		return play, nil
	}
	c.mu.Unlock()

	play, err := c.uc.ActiveGame(ctx, c.userID)
	if err != nil {
		return game.Game{}, err
	}
	c.attach(play)
	if play.Status == game.StatusAbandoned {
		c.emit(Event{Type: EventAbandoned, Game: &play, Role: play.AbandonRole(c.userID)})
	}
	return play, nil
}

func (c *Client) Submit(ctx context.Context, choice game.Choice) (game.Game, error) {
	gameID, err := c.currentGameID()
	if err != nil {
		return game.Game{}, err
	}
	return c.uc.SubmitChoice(ctx, c.userID, gameID, choice)
}

// Cancel withdraws the user's own waiting game.
func (c *Client) Cancel(ctx context.Context) error {
	gameID, err := c.currentGameID()
	if err != nil {
		return err
	}
	c.markReleasing(gameID)
	if err := c.uc.Cancel(ctx, c.userID, gameID); err != nil {
		c.markReleasing("")
		return err
	}
	c.detach(gameID)
	return nil
}

// Leave releases the user from an abandoned, completed or still waiting game.
func (c *Client) Leave(ctx context.Context) error {
	gameID, err := c.currentGameID()
	if errors.Is(err, errs.ErrNoActiveGame) {
		play, activeErr := c.uc.ActiveGame(ctx, c.userID)
		if errors.Is(activeErr, errs.ErrNoActiveGame) {
			// Already deleted by the opponent; ActiveGame cleared the pointer.
			return nil
		}
		if activeErr != nil {
			return activeErr
		}
		gameID = play.ID
	} else if err != nil {
		return err
	}

	c.markReleasing(gameID)
	if err := c.uc.LeaveGame(ctx, c.userID, gameID); err != nil {
		c.markReleasing("")
		return err
	}
	c.detach(gameID)
	return nil
}

// Close detaches from the game and stops all timers. The game itself is left
// as is: an unjoined game stays behind and a running one is settled by the
// opponent's watchdog.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.detachLocked()
	for id, ch := range c.listeners {
		delete(c.listeners, id)
		close(ch)
	}
	c.mu.Unlock()
	c.cancel()
}

func (c *Client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errs.ErrClientClosed
	}
	return nil
}

func (c *Client) currentGameID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", errs.ErrClientClosed
	}
	if c.gameID == "" {
		return "", errs.ErrNoActiveGame
	}
	return c.gameID, nil
}

func (c *Client) markReleasing(gameID string) {
	c.mu.Lock()
	c.releasing = gameID
	c.mu.Unlock()
}

func (c *Client) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitLocked(ev)
}

func (c *Client) attach(play game.Game) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.gameID == play.ID {
		c.mu.Unlock()
		return
	}
	c.detachLocked()
	c.gameID = play.ID
	c.last = play
	c.hasLast = true
	if play.Status == game.StatusWaiting && play.Player1ID == c.userID {
		c.armWaitingLocked(play)
	}
	c.mu.Unlock()

	unsubscribe, err := c.uc.games.SubscribeGame(c.ctx, play.ID, func(snap game.Game, exists bool) {
		c.onSnapshot(snap, exists)
	})
	if err != nil {
		c.log.Errorf("failed to subscribe to game %s: %v", play.ID, err)
		c.emit(Event{Type: EventError, Error: err.Error()})
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gameID != play.ID {
		unsubscribe()
		return
	}
	c.unsubscribe = unsubscribe
}

func (c *Client) detach(gameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gameID == gameID {
		c.detachLocked()
	}
}

func (c *Client) detachLocked() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	if c.waitTimer != nil {
		c.waitTimer.Stop()
		c.waitTimer = nil
	}
	c.watchdog.Stop()
	c.gameID = ""
	c.last = game.Game{}
	c.hasLast = false
	c.releasing = ""
}

// armWaitingLocked starts the waiting timeout, shortened by the time the game
// has already been waiting.
func (c *Client) armWaitingLocked(play game.Game) {
	remaining := c.uc.rules.WaitingTimeout
	if !play.CreatedAt.IsZero() {
		remaining -= c.clock.Since(play.CreatedAt)
	}
	if remaining < 0 {
		remaining = 0
	}
	gameID := play.ID
	c.waitTimer = c.clock.AfterFunc(remaining, func() {
		c.waitingExpired(gameID)
	})
}

func (c *Client) waitingExpired(gameID string) {
	c.mu.Lock()
	if c.gameID != gameID || c.closed {
		c.mu.Unlock()
		return
	}
	c.waitTimer = nil
	c.releasing = gameID
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()

	deleted, err := c.uc.ExpireWaiting(ctx, c.userID, gameID)
	if err != nil {
		c.log.Errorf("waiting timeout of game %s failed: %v", gameID, err)
		c.markReleasing("")
		c.emit(Event{Type: EventError, Error: err.Error()})
		return
	}
	if !deleted {
		// Joined just in time; the subscription reports the match.
		c.markReleasing("")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gameID == gameID {
		c.detachLocked()
	}
	c.emitLocked(Event{Type: EventWaitingExpired})
}

func (c *Client) choiceExpired(observed game.Game) {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()

	current, err := c.uc.games.GetGame(ctx, observed.ID)
	if err != nil {
		if !errors.Is(err, errs.ErrGameNotFound) {
			c.log.Errorf("choice timeout re-read of %s failed: %v", observed.ID, err)
		}
		return
	}
	if current.Status != game.StatusInProgress ||
		current.CurrentTurn != observed.CurrentTurn ||
		current.Player1Choice != observed.Player1Choice ||
		current.Player2Choice != observed.Player2Choice {
		return
	}
	if _, err := c.uc.Abandon(ctx, current); err != nil {
		c.log.Errorf("failed to abandon game %s: %v", observed.ID, err)
	}
}

func (c *Client) onSnapshot(snap game.Game, exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || snap.ID != c.gameID {
		return
	}

	prev, hadPrev := c.last, c.hasLast

	if !exists {
		expected := c.releasing == snap.ID || (hadPrev && prev.IsTerminal())
		c.detachLocked()
		if !expected {
			c.log.Infof("game %s disappeared", snap.ID)
			c.emitLocked(Event{Type: EventGameGone})
			go c.clearPointer(snap.ID)
		}
		return
	}

	c.last = snap
	c.hasLast = true
	c.watchdog.Observe(snap)

	if len(snap.TurnResults) > len(prev.TurnResults) {
		round := snap.TurnResults[len(snap.TurnResults)-1]
		c.emitLocked(Event{Type: EventRoundResolved, Game: &snap, Round: &round})
	}

	statusChanged := !hadPrev || prev.Status != snap.Status
	switch snap.Status {
	case game.StatusInProgress:
		if c.waitTimer != nil {
			c.waitTimer.Stop()
			c.waitTimer = nil
		}
		if hadPrev && prev.Status == game.StatusWaiting {
			c.emitLocked(Event{Type: EventMatched, Game: &snap})
		}
		c.emitLocked(Event{Type: EventGameUpdated, Game: &snap})
		if snap.BothChosen() {
			go c.resolve(snap)
		}
	case game.StatusCompleted:
		if c.waitTimer != nil {
			c.waitTimer.Stop()
			c.waitTimer = nil
		}
		if statusChanged || !hadPrev {
			c.emitLocked(Event{Type: EventCompleted, Game: &snap})
			go c.clearPointer(snap.ID)
		}
	case game.StatusAbandoned:
		if statusChanged {
			c.emitLocked(Event{Type: EventAbandoned, Game: &snap, Role: snap.AbandonRole(c.userID)})
		}
	case game.StatusWaiting:
		if !hadPrev || !prev.IsTerminal() {
			c.emitLocked(Event{Type: EventGameUpdated, Game: &snap})
		}
	}
}

func (c *Client) resolve(observed game.Game) {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	if _, err := c.uc.ResolveTurn(ctx, observed); err != nil {
		c.log.Errorf("failed to resolve game %s: %v", observed.ID, err)
	}
}

func (c *Client) clearPointer(gameID string) {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	if err := c.uc.profiles.ClearCurrentGame(ctx, c.userID, gameID); err != nil {
		c.log.Warnf("failed to clear game pointer: %v", err)
	}
}
