package game

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"rps_arena/internal/domain/game"
	"rps_arena/internal/domain/user"
	errs "rps_arena/internal/errors"
)

type GameStore interface {
	CreateGame(ctx context.Context, fields map[string]any) (string, error)
	GetGame(ctx context.Context, id string) (game.Game, error)
	UpdateGameIf(ctx context.Context, id string, cond, fields map[string]any) (bool, error)
	DeleteGameIf(ctx context.Context, id string, cond map[string]any) (bool, error)
	WaitingGames(ctx context.Context, limit int) ([]game.Game, error)
	AllGames(ctx context.Context) ([]game.Game, error)
	SubscribeGame(ctx context.Context, id string, fn func(play game.Game, exists bool)) (func(), error)
}

type ProfileStore interface {
	GetProfile(ctx context.Context, uid string) (user.Profile, error)
	SetCurrentGame(ctx context.Context, uid, gameID string) error
	ClearCurrentGame(ctx context.Context, uid, gameID string) error
}

// Rules are the match parameters shared by every client of the process.
type Rules struct {
	Rounds          int
	StopOnMajority  bool
	WaitingTimeout  time.Duration
	ChoiceTimeout   time.Duration
	MatchQueryLimit int
}

func DefaultRules() Rules {
	return Rules{
		Rounds:          3,
		WaitingTimeout:  30 * time.Second,
		ChoiceTimeout:   30 * time.Second,
		MatchQueryLimit: 10,
	}
}

type GameUseCase struct {
	games    GameStore
	profiles ProfileStore
	rules    Rules
	clock    clockwork.Clock
	log      *zap.SugaredLogger
}

func NewGameUseCase(games GameStore, profiles ProfileStore, rules Rules, clock clockwork.Clock, log *zap.SugaredLogger) *GameUseCase {
	if rules.Rounds <= 0 {
		rules.Rounds = 3
	}
	return &GameUseCase{
		games:    games,
		profiles: profiles,
		rules:    rules,
		clock:    clock,
		log:      log,
	}
}

func (g *GameUseCase) Rules() Rules {
	return g.rules
}

func (g *GameUseCase) GetGame(ctx context.Context, id string) (game.Game, error) {
	return g.games.GetGame(ctx, id)
}

// ActiveGame resolves the user's current game. The profile pointer is only a
// hint: it is checked against the record, and when it is stale the games are
// scanned and the pointer repaired. Abandoned games still count as active so
// the outcome can be shown until the player leaves.
func (g *GameUseCase) ActiveGame(ctx context.Context, uid string) (game.Game, error) {
	profile, err := g.profiles.GetProfile(ctx, uid)
	profileMissing := errors.Is(err, errs.ErrProfileNotFound)
	if err != nil && !profileMissing {
		return game.Game{}, err
	}

	if profile.CurrentGameID != "" {
		play, err := g.games.GetGame(ctx, profile.CurrentGameID)
		switch {
		case err == nil && play.HasPlayer(uid) && play.Status != game.StatusCompleted:
			return play, nil
		case err != nil && !errors.Is(err, errs.ErrGameNotFound):
			return game.Game{}, err
		}
		g.log.Infof("stale game pointer %s for user %s", profile.CurrentGameID, uid)
	}

	all, err := g.games.AllGames(ctx)
	if err != nil {
		return game.Game{}, err
	}
	var candidates []game.Game
	for _, play := range all {
		if play.HasPlayer(uid) && play.Status != game.StatusCompleted {
			candidates = append(candidates, play)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})

	if len(candidates) == 0 {
		if profile.CurrentGameID != "" {
			if err := g.profiles.ClearCurrentGame(ctx, uid, profile.CurrentGameID); err != nil {
				g.log.Warnf("failed to clear stale pointer of %s: %v", uid, err)
			}
		}
		return game.Game{}, errs.ErrNoActiveGame
	}

	found := candidates[0]
	if found.ID != profile.CurrentGameID && !profileMissing {
		if err := g.profiles.SetCurrentGame(ctx, uid, found.ID); err != nil {
			g.log.Warnf("failed to repair pointer of %s: %v", uid, err)
		}
	}
	return found, nil
}

// busy reports whether uid is already waiting or playing.
func (g *GameUseCase) busy(ctx context.Context, uid string) (bool, error) {
	play, err := g.ActiveGame(ctx, uid)
	if errors.Is(err, errs.ErrNoActiveGame) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return play.Status == game.StatusWaiting || play.Status == game.StatusInProgress, nil
}

// LeaveGame releases the user from a finished or unstarted game. Abandoned
// games are deleted by whoever leaves first; each player clears only their
// own pointer.
func (g *GameUseCase) LeaveGame(ctx context.Context, uid, gameID string) error {
	play, err := g.games.GetGame(ctx, gameID)
	if errors.Is(err, errs.ErrGameNotFound) {
		return g.profiles.ClearCurrentGame(ctx, uid, gameID)
	}
	if err != nil {
		return err
	}
	if !play.HasPlayer(uid) {
		return errs.ErrNotYourGame
	}

	switch play.Status {
	case game.StatusWaiting:
		return g.Cancel(ctx, uid, gameID)
	case game.StatusInProgress:
		return errs.ErrGameInProgress
	case game.StatusAbandoned:
		if _, err := g.games.DeleteGameIf(ctx, gameID, map[string]any{game.FieldStatus: game.StatusAbandoned}); err != nil {
			return err
		}
	}
	return g.profiles.ClearCurrentGame(ctx, uid, gameID)
}

// SweepOrphans deletes waiting games nobody joined within olderThan. These
// are left behind when a creator disconnects before the waiting timeout.
func (g *GameUseCase) SweepOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	waiting, err := g.games.WaitingGames(ctx, 0)
	if err != nil {
		return 0, err
	}
	cutoff := g.clock.Now().Add(-olderThan)
	swept := 0
	for _, play := range waiting {
		if play.CreatedAt.After(cutoff) {
			continue
		}
		deleted, err := g.games.DeleteGameIf(ctx, play.ID, map[string]any{
			game.FieldStatus:    game.StatusWaiting,
			game.FieldPlayer2ID: nil,
		})
		if err != nil {
			return swept, err
		}
		if !deleted {
			continue
		}
		swept++
		if err := g.profiles.ClearCurrentGame(ctx, play.Player1ID, play.ID); err != nil {
			g.log.Warnf("failed to clear pointer of %s after sweep: %v", play.Player1ID, err)
		}
	}
	return swept, nil
}
