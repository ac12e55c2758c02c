package game

import (
	"context"
	"errors"

	"rps_arena/internal/domain/game"
	errs "rps_arena/internal/errors"
)

// FindOrCreateMatch claims the oldest waiting game open to uid or, when there
// is none or the claim is lost, creates a new waiting game. joined reports
// which of the two happened. A lost claim is never retried.
func (g *GameUseCase) FindOrCreateMatch(ctx context.Context, uid string) (play game.Game, joined bool, err error) {
	busy, err := g.busy(ctx, uid)
	if err != nil {
		return game.Game{}, false, err
	}
	if busy {
		return game.Game{}, false, errs.ErrAlreadyInGame
	}

	waiting, err := g.games.WaitingGames(ctx, g.rules.MatchQueryLimit)
	if err != nil {
		return game.Game{}, false, err
	}

	for _, candidate := range waiting {
		if !candidate.JoinableBy(uid) {
			continue
		}
		claimed, err := g.claim(ctx, candidate.ID, uid)
		if err != nil {
			return game.Game{}, false, err
		}
		if !claimed {
			g.log.Debugf("user %s lost the claim on game %s, creating instead", uid, candidate.ID)
			break
		}
		return g.afterClaim(ctx, candidate.ID, uid)
	}

	play, err = g.createWaiting(ctx, uid, "")
	return play, false, err
}

func (g *GameUseCase) afterClaim(ctx context.Context, gameID, uid string) (game.Game, bool, error) {
	if err := g.profiles.SetCurrentGame(ctx, uid, gameID); err != nil {
		g.log.Warnf("failed to record game %s for %s: %v", gameID, uid, err)
	}
	play, err := g.games.GetGame(ctx, gameID)
	if err != nil {
		return game.Game{}, true, err
	}
	g.log.Infof("user %s joined game %s", uid, gameID)
	return play, true, nil
}

// claim re-reads the game and, if it is still open to uid, takes the second
// seat with a conditional write. At most one concurrent claimant succeeds.
func (g *GameUseCase) claim(ctx context.Context, gameID, uid string) (bool, error) {
	current, err := g.games.GetGame(ctx, gameID)
	if errors.Is(err, errs.ErrGameNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !current.JoinableBy(uid) {
		return false, nil
	}

	return g.games.UpdateGameIf(ctx, gameID,
		map[string]any{
			game.FieldStatus:           game.StatusWaiting,
			game.FieldPlayer2ID:        nil,
			game.FieldChallengedUserID: game.Nullable(current.ChallengedUserID),
		},
		map[string]any{
			game.FieldPlayer2ID: uid,
			game.FieldStatus:    game.StatusInProgress,
		},
	)
}

func (g *GameUseCase) createWaiting(ctx context.Context, uid, challenged string) (game.Game, error) {
	id, err := g.games.CreateGame(ctx, game.NewWaiting(uid, challenged, g.clock.Now()))
	if err != nil {
		return game.Game{}, err
	}
	if err := g.profiles.SetCurrentGame(ctx, uid, id); err != nil {
		g.log.Warnf("failed to record game %s for %s: %v", id, uid, err)
	}
	return g.games.GetGame(ctx, id)
}

// Challenge creates a waiting game only target may join. The busy checks are
// best effort: a race can still let either side start another game.
func (g *GameUseCase) Challenge(ctx context.Context, uid, target string) (game.Game, error) {
	if uid == target {
		return game.Game{}, errs.ErrSelfChallenge
	}
	if _, err := g.profiles.GetProfile(ctx, target); err != nil {
		return game.Game{}, err
	}
	for _, who := range []string{uid, target} {
		busy, err := g.busy(ctx, who)
		if err != nil {
			return game.Game{}, err
		}
		if busy {
			return game.Game{}, errs.ErrAlreadyInGame
		}
	}
	return g.createWaiting(ctx, uid, target)
}

// AcceptChallenge claims a directed challenge addressed to uid.
func (g *GameUseCase) AcceptChallenge(ctx context.Context, uid, gameID string) (game.Game, error) {
	play, err := g.games.GetGame(ctx, gameID)
	if err != nil {
		return game.Game{}, err
	}
	if play.ChallengedUserID != uid {
		return game.Game{}, errs.ErrNotChallenged
	}
	if busy, err := g.busy(ctx, uid); err != nil {
		return game.Game{}, err
	} else if busy {
		return game.Game{}, errs.ErrAlreadyInGame
	}

	claimed, err := g.claim(ctx, gameID, uid)
	if err != nil {
		return game.Game{}, err
	}
	if !claimed {
		return game.Game{}, errs.ErrGameNotWaiting
	}
	play, _, err = g.afterClaim(ctx, gameID, uid)
	return play, err
}

// PendingChallenges lists waiting games addressed to uid.
func (g *GameUseCase) PendingChallenges(ctx context.Context, uid string) ([]game.Game, error) {
	waiting, err := g.games.WaitingGames(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := make([]game.Game, 0)
	for _, play := range waiting {
		if play.ChallengedUserID == uid && play.Player2ID == "" {
			out = append(out, play)
		}
	}
	return out, nil
}

// Cancel deletes uid's own waiting game if nobody has joined it yet.
func (g *GameUseCase) Cancel(ctx context.Context, uid, gameID string) error {
	deleted, err := g.deleteUnjoined(ctx, uid, gameID)
	if err != nil {
		return err
	}
	if !deleted {
		play, err := g.games.GetGame(ctx, gameID)
		if err == nil {
			if !play.HasPlayer(uid) {
				return errs.ErrNotYourGame
			}
			return errs.ErrGameNotWaiting
		}
		if !errors.Is(err, errs.ErrGameNotFound) {
			return err
		}
	}
	return g.profiles.ClearCurrentGame(ctx, uid, gameID)
}

// ExpireWaiting is the waiting timeout: like Cancel, but a game that got
// joined in the meantime is silently kept.
func (g *GameUseCase) ExpireWaiting(ctx context.Context, uid, gameID string) (bool, error) {
	deleted, err := g.deleteUnjoined(ctx, uid, gameID)
	if err != nil || !deleted {
		return deleted, err
	}
	g.log.Infof("waiting game %s of %s expired", gameID, uid)
	return true, g.profiles.ClearCurrentGame(ctx, uid, gameID)
}

func (g *GameUseCase) deleteUnjoined(ctx context.Context, uid, gameID string) (bool, error) {
	return g.games.DeleteGameIf(ctx, gameID, map[string]any{
		game.FieldStatus:    game.StatusWaiting,
		game.FieldPlayer1ID: uid,
		game.FieldPlayer2ID: nil,
	})
}
