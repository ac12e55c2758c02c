package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"rps_arena/internal/domain/game"
	errs "rps_arena/internal/errors"
	"rps_arena/internal/store"
)

type GameRepository struct {
	store store.Store
	clock clockwork.Clock
	log   *zap.SugaredLogger
}

func NewGameRepository(s store.Store, clock clockwork.Clock, log *zap.SugaredLogger) *GameRepository {
	return &GameRepository{
		store: s,
		clock: clock,
		log:   log,
	}
}

func gameKey(id string) string {
	return store.Key(game.Collection, id)
}

func (g *GameRepository) CreateGame(ctx context.Context, fields map[string]any) (string, error) {
	id, err := g.store.Create(ctx, game.Collection, fields)
	if err != nil {
		g.log.Errorf("failed to create game: %v", err)
		return "", fmt.Errorf("%w: %v", errs.ErrCreateGameFailed, err)
	}
	g.log.Infof("game %s created", id)
	return id, nil
}

func (g *GameRepository) GetGame(ctx context.Context, id string) (game.Game, error) {
	if id == "" {
		return game.Game{}, errs.ErrGameNotFound
	}
	raw, err := g.store.Get(ctx, gameKey(id))
	if errors.Is(err, store.ErrNotFound) {
		return game.Game{}, errs.ErrGameNotFound
	}
	if err != nil {
		return game.Game{}, fmt.Errorf("get game %s: %w", id, err)
	}
	return game.Decode(id, raw)
}

func (g *GameRepository) withUpdatedAt(fields map[string]any) store.Fields {
	out := make(store.Fields, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[game.FieldUpdatedAt] = g.clock.Now()
	return out
}

func (g *GameRepository) UpdateGame(ctx context.Context, id string, fields map[string]any) error {
	if err := g.store.Update(ctx, gameKey(id), g.withUpdatedAt(fields)); err != nil {
		return fmt.Errorf("update game %s: %w", id, err)
	}
	return nil
}

// UpdateGameIf applies fields only while every cond field still holds.
func (g *GameRepository) UpdateGameIf(ctx context.Context, id string, cond, fields map[string]any) (bool, error) {
	ok, err := g.store.UpdateIf(ctx, gameKey(id), cond, g.withUpdatedAt(fields))
	if err != nil {
		return false, fmt.Errorf("update game %s: %w", id, err)
	}
	return ok, nil
}

func (g *GameRepository) DeleteGameIf(ctx context.Context, id string, cond map[string]any) (bool, error) {
	ok, err := g.store.DeleteIf(ctx, gameKey(id), cond)
	if err != nil {
		return false, fmt.Errorf("delete game %s: %w", id, err)
	}
	if ok {
		g.log.Infof("game %s deleted", id)
	}
	return ok, nil
}

// WaitingGames returns up to limit waiting games, oldest first.
func (g *GameRepository) WaitingGames(ctx context.Context, limit int) ([]game.Game, error) {
	snaps, err := g.store.Query(ctx, game.Collection, game.FieldStatus, game.StatusWaiting, limit)
	if err != nil {
		return nil, fmt.Errorf("query waiting games: %w", err)
	}
	return g.decodeAll(snaps), nil
}

func (g *GameRepository) AllGames(ctx context.Context) ([]game.Game, error) {
	snaps, err := g.store.List(ctx, game.Collection)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return g.decodeAll(snaps), nil
}

func (g *GameRepository) decodeAll(snaps []store.Snapshot) []game.Game {
	out := make([]game.Game, 0, len(snaps))
	for _, snap := range snaps {
		decoded, err := game.Decode(snap.ID, snap.Value)
		if err != nil {
			g.log.Warnf("skipping malformed game %s: %v", snap.ID, err)
			continue
		}
		out = append(out, decoded)
	}
	return out
}

// SubscribeGame calls fn with the current game and after every change. A
// deleted or missing game arrives with exists == false.
func (g *GameRepository) SubscribeGame(ctx context.Context, id string, fn func(play game.Game, exists bool)) (func(), error) {
	return g.store.Subscribe(ctx, gameKey(id), g.decodeSnapshot(fn))
}

func (g *GameRepository) SubscribeGames(ctx context.Context, fn func(play game.Game, exists bool)) (func(), error) {
	return g.store.Subscribe(ctx, game.Collection, g.decodeSnapshot(fn))
}

func (g *GameRepository) decodeSnapshot(fn func(game.Game, bool)) func(store.Snapshot) {
	return func(snap store.Snapshot) {
		if !snap.Exists {
			fn(game.Game{ID: snap.ID}, false)
			return
		}
		decoded, err := game.Decode(snap.ID, snap.Value)
		if err != nil {
			g.log.Warnf("malformed game %s in change feed: %v", snap.ID, err)
			return
		}
		fn(decoded, true)
	}
}
