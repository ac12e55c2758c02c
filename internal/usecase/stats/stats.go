package stats

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"rps_arena/internal/domain/game"
	"rps_arena/internal/domain/user"
)

type GameSource interface {
	AllGames(ctx context.Context) ([]game.Game, error)
	SubscribeGames(ctx context.Context, fn func(play game.Game, exists bool)) (func(), error)
}

type ProfileSource interface {
	AllProfiles(ctx context.Context) ([]user.Profile, error)
}

// StatsUseCase answers stats, history and leaderboard reads. Until Watch has
// been started every read scans the games; afterwards counters come from the
// tally and only history needs a scan.
type StatsUseCase struct {
	games    GameSource
	profiles ProfileSource
	weights  ScoreWeights
	tally    *Tally
	watching atomic.Bool
	log      *zap.SugaredLogger
}

func NewStatsUseCase(games GameSource, profiles ProfileSource, weights ScoreWeights, log *zap.SugaredLogger) *StatsUseCase {
	return &StatsUseCase{
		games:    games,
		profiles: profiles,
		weights:  weights,
		tally:    NewTally(),
		log:      log,
	}
}

func (s *StatsUseCase) Weights() ScoreWeights {
	return s.weights
}

// Watch feeds the tally from the games collection until ctx is done. The
// tally is seeded from a full scan before reads switch over to it, since the
// subscription delivers its initial snapshot asynchronously.
func (s *StatsUseCase) Watch(ctx context.Context) (func(), error) {
	s.tally.BeginSeed()
	unsubscribe, err := s.games.SubscribeGames(ctx, func(play game.Game, exists bool) {
		s.tally.Observe(play, exists)
	})
	if err != nil {
		s.tally.Seed(nil)
		return nil, err
	}
	games, err := s.games.AllGames(ctx)
	if err != nil {
		unsubscribe()
		s.tally.Seed(nil)
		return nil, err
	}
	s.tally.Seed(games)
	s.watching.Store(true)
	return func() {
		s.watching.Store(false)
		unsubscribe()
	}, nil
}

func (s *StatsUseCase) UserStats(ctx context.Context, uid string) (user.Stats, error) {
	if s.watching.Load() {
		return s.tally.Stats(uid), nil
	}
	games, err := s.games.AllGames(ctx)
	if err != nil {
		return user.Stats{}, err
	}
	return Derive(uid, games), nil
}

func (s *StatsUseCase) RecentGames(ctx context.Context, uid string, limit int) ([]user.RecentGame, error) {
	games, err := s.games.AllGames(ctx)
	if err != nil {
		return nil, err
	}
	names, err := s.usernames(ctx)
	if err != nil {
		return nil, err
	}
	return RecentGames(uid, games, names, limit), nil
}

func (s *StatsUseCase) Leaderboard(ctx context.Context, limit int) ([]user.LeaderboardEntry, error) {
	profiles, err := s.profiles.AllProfiles(ctx)
	if err != nil {
		return nil, err
	}
	var all map[string]user.Stats
	if s.watching.Load() {
		all = s.tally.All()
	} else {
		games, err := s.games.AllGames(ctx)
		if err != nil {
			return nil, err
		}
		all = DeriveAll(games)
	}
	return Leaderboard(profiles, all, s.weights, limit), nil
}

// Check compares the tally with a full recount and repairs it. It is run
// periodically by the scheduler.
func (s *StatsUseCase) Check(ctx context.Context) ([]string, error) {
	games, err := s.games.AllGames(ctx)
	if err != nil {
		return nil, err
	}
	drifted := s.tally.Verify(games)
	if len(drifted) > 0 {
		s.log.Warnf("stats drifted for %d players, recounted: %v", len(drifted), drifted)
	}
	return drifted, nil
}

func (s *StatsUseCase) usernames(ctx context.Context) (map[string]string, error) {
	profiles, err := s.profiles.AllProfiles(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(profiles))
	for _, p := range profiles {
		names[p.ID] = p.Username
	}
	return names, nil
}
