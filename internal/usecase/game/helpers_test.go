package game

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rps_arena/internal/domain/game"
	repo "rps_arena/internal/repository"
	"rps_arena/internal/store"
)

type testEnv struct {
	ctx      context.Context
	store    *store.MemoryStore
	clock    *clockwork.FakeClock
	games    *repo.GameRepository
	profiles *repo.ProfileRepository
	uc       *GameUseCase
}

func newTestEnv(t *testing.T, rules Rules, users ...string) *testEnv {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	// Client goroutines may log after the test returns, so no zaptest here.
	log := zap.NewNop().Sugar()
	clock := clockwork.NewFakeClock()
	s := store.NewMemoryStore()
	games := repo.NewGameRepository(s, clock, log)
	profiles := repo.NewProfileRepository(s, clock, log)

	for _, uid := range users {
		_, err := profiles.CreateProfile(ctx, uid, uid)
		require.NoError(t, err)
	}

	return &testEnv{
		ctx:      ctx,
		store:    s,
		clock:    clock,
		games:    games,
		profiles: profiles,
		uc:       NewGameUseCase(games, profiles, rules, clock, log),
	}
}

func (e *testEnv) client(t *testing.T, uid string) (*Client, <-chan Event) {
	t.Helper()
	c := NewClient(e.ctx, uid, e.uc)
	events, _ := c.Listen()
	t.Cleanup(c.Close)
	return c, events
}

func (e *testEnv) pointer(t *testing.T, uid string) string {
	t.Helper()
	profile, err := e.profiles.GetProfile(e.ctx, uid)
	require.NoError(t, err)
	return profile.CurrentGameID
}

func (e *testEnv) game(t *testing.T, id string) game.Game {
	t.Helper()
	play, err := e.games.GetGame(e.ctx, id)
	require.NoError(t, err)
	return play
}

// waitEvent skips other events until one of type want arrives.
func waitEvent(t *testing.T, events <-chan Event, want EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event channel closed while waiting for %s", want)
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

// noEvent fails if any of the given types shows up within a short window.
func noEvent(t *testing.T, events <-chan Event, unwanted ...EventType) {
	t.Helper()
	deadline := time.After(50 * time.Millisecond)
	for {
		select {
		case ev := <-events:
			for _, u := range unwanted {
				require.NotEqual(t, u, ev.Type, "unexpected %s event", ev.Type)
			}
		case <-deadline:
			return
		}
	}
}
