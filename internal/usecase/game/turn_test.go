package game

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rps_arena/internal/domain/game"
	errs "rps_arena/internal/errors"
)

func startedGame(t *testing.T, e *testEnv) game.Game {
	t.Helper()
	_, _, err := e.uc.FindOrCreateMatch(e.ctx, "alice")
	require.NoError(t, err)
	play, joined, err := e.uc.FindOrCreateMatch(e.ctx, "bob")
	require.NoError(t, err)
	require.True(t, joined)
	return play
}

func TestResolveRound_Pure(t *testing.T) {
	rules := DefaultRules()
	g := game.Game{
		ID:            "g",
		Player1ID:     "alice",
		Player2ID:     "bob",
		Status:        game.StatusInProgress,
		CurrentTurn:   1,
		Player1Choice: game.Rock,
		Player2Choice: game.Scissors,
		TurnResults:   []game.TurnResult{},
	}

	res, ok := rules.ResolveRound(g)
	require.True(t, ok)
	assert.False(t, res.Completed)
	assert.Equal(t, game.OutcomePlayer1, res.Round.Result)
	assert.Equal(t, 2, res.Fields[game.FieldCurrentTurn])
	assert.Nil(t, res.Fields[game.FieldPlayer1Choice])
	assert.Nil(t, res.Fields[game.FieldPlayer2Choice])
	assert.Empty(t, g.TurnResults, "input is not mutated")

	again, _ := rules.ResolveRound(g)
	assert.Equal(t, res, again)

	g.Player2Choice = ""
	_, ok = rules.ResolveRound(g)
	assert.False(t, ok)
}

func TestResolveRound_FinalRoundDoesNotAdvanceTurn(t *testing.T) {
	g := game.Game{
		Player1ID:     "alice",
		Player2ID:     "bob",
		Status:        game.StatusInProgress,
		CurrentTurn:   3,
		Player1Choice: game.Paper,
		Player2Choice: game.Paper,
		TurnResults: []game.TurnResult{
			{Player1Choice: game.Rock, Player2Choice: game.Paper, Result: game.OutcomePlayer2},
			{Player1Choice: game.Rock, Player2Choice: game.Scissors, Result: game.OutcomePlayer1},
		},
	}

	res, ok := DefaultRules().ResolveRound(g)
	require.True(t, ok)
	assert.True(t, res.Completed)
	assert.Empty(t, res.WinnerID, "1-1-1 is a draw")
	assert.Nil(t, res.Fields[game.FieldWinnerID])
	assert.Equal(t, game.StatusCompleted, res.Fields[game.FieldStatus])
	assert.NotContains(t, res.Fields, game.FieldCurrentTurn)
	assert.Len(t, res.Fields[game.FieldTurnResults], 3)
}

func TestResolveRound_StopOnMajority(t *testing.T) {
	g := game.Game{
		Player1ID:     "alice",
		Player2ID:     "bob",
		Status:        game.StatusInProgress,
		CurrentTurn:   2,
		Player1Choice: game.Rock,
		Player2Choice: game.Scissors,
		TurnResults:   []game.TurnResult{{Player1Choice: game.Paper, Player2Choice: game.Rock, Result: game.OutcomePlayer1}},
	}

	res, _ := DefaultRules().ResolveRound(g)
	assert.False(t, res.Completed, "best of three plays every round by default")

	rules := DefaultRules()
	rules.StopOnMajority = true
	res, _ = rules.ResolveRound(g)
	assert.True(t, res.Completed)
	assert.Equal(t, "alice", res.WinnerID)
}

func TestResolution_AppliedTwiceEqualsOnce(t *testing.T) {
	e := newTestEnv(t, DefaultRules(), "alice", "bob")
	play := startedGame(t, e)

	require.NoError(t, e.games.UpdateGame(e.ctx, play.ID, map[string]any{
		game.FieldPlayer1Choice: game.Rock,
		game.FieldPlayer2Choice: game.Paper,
	}))
	pre := e.game(t, play.ID)
	res, ok := e.uc.Rules().ResolveRound(pre)
	require.True(t, ok)

	require.NoError(t, e.games.UpdateGame(e.ctx, play.ID, res.Fields))
	once := e.game(t, play.ID)
	require.NoError(t, e.games.UpdateGame(e.ctx, play.ID, res.Fields))
	twice := e.game(t, play.ID)

	once.UpdatedAt, twice.UpdatedAt = pre.UpdatedAt, pre.UpdatedAt
	assert.Equal(t, once, twice)
	assert.Len(t, twice.TurnResults, 1)
	assert.Equal(t, 2, twice.CurrentTurn)
}

func TestResolveTurn_ConcurrentCallersApplyOnce(t *testing.T) {
	e := newTestEnv(t, DefaultRules(), "alice", "bob")
	play := startedGame(t, e)

	require.NoError(t, e.games.UpdateGame(e.ctx, play.ID, map[string]any{
		game.FieldPlayer1Choice: game.Scissors,
		game.FieldPlayer2Choice: game.Paper,
	}))
	observed := e.game(t, play.ID)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := e.uc.ResolveTurn(e.ctx, observed)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	after := e.game(t, play.ID)
	require.Len(t, after.TurnResults, 1)
	assert.Equal(t, game.OutcomePlayer1, after.TurnResults[0].Result)
}

func TestSubmitChoice_FullMatch(t *testing.T) {
	e := newTestEnv(t, DefaultRules(), "alice", "bob")
	play := startedGame(t, e)

	rounds := [][2]game.Choice{
		{game.Rock, game.Scissors},
		{game.Paper, game.Paper},
		{game.Scissors, game.Rock},
	}
	var last game.Game
	for i, round := range rounds {
		_, err := e.uc.SubmitChoice(e.ctx, "alice", play.ID, round[0])
		require.NoError(t, err)

		_, err = e.uc.SubmitChoice(e.ctx, "alice", play.ID, game.Paper)
		assert.ErrorIs(t, err, errs.ErrChoiceRejected, "one choice per round")

		last, err = e.uc.SubmitChoice(e.ctx, "bob", play.ID, round[1])
		require.NoError(t, err)
		assert.Len(t, last.TurnResults, i+1)
	}

	assert.Equal(t, game.StatusCompleted, last.Status)
	assert.Empty(t, last.WinnerID, "one win each and a draw")
	assert.Equal(t, 3, last.CurrentTurn)
	assert.Len(t, last.TurnResults, 3)

	_, err := e.uc.SubmitChoice(e.ctx, "alice", play.ID, game.Rock)
	assert.ErrorIs(t, err, errs.ErrGameNotRunning)
	assert.Len(t, e.game(t, play.ID).TurnResults, 3, "nothing is appended after completion")
}

func TestSubmitChoice_Validation(t *testing.T) {
	e := newTestEnv(t, DefaultRules(), "alice", "bob", "carol")
	play := startedGame(t, e)

	_, err := e.uc.SubmitChoice(e.ctx, "alice", play.ID, game.Choice("lizard"))
	assert.ErrorIs(t, err, errs.ErrInvalidChoice)

	_, err = e.uc.SubmitChoice(e.ctx, "carol", play.ID, game.Rock)
	assert.ErrorIs(t, err, errs.ErrNotYourGame)

	_, err = e.uc.SubmitChoice(e.ctx, "alice", "missing", game.Rock)
	assert.ErrorIs(t, err, errs.ErrGameNotFound)
}

func TestAbandon_RequiresSingleChoice(t *testing.T) {
	e := newTestEnv(t, DefaultRules(), "alice", "bob")
	play := startedGame(t, e)

	ok, err := e.uc.Abandon(e.ctx, e.game(t, play.ID))
	require.NoError(t, err)
	assert.False(t, ok, "nobody chose yet")

	_, err = e.uc.SubmitChoice(e.ctx, "alice", play.ID, game.Rock)
	require.NoError(t, err)
	observed := e.game(t, play.ID)

	ok, err = e.uc.Abandon(e.ctx, observed)
	require.NoError(t, err)
	assert.True(t, ok)

	abandoned := e.game(t, play.ID)
	assert.Equal(t, game.StatusAbandoned, abandoned.Status)
	assert.Equal(t, 1, abandoned.PendingSeat(), "exactly one player chose in the unresolved round")
	assert.Equal(t, game.RoleNonAbandoner, abandoned.AbandonRole("alice"))
	assert.Equal(t, game.RoleAbandoner, abandoned.AbandonRole("bob"))

	ok, err = e.uc.Abandon(e.ctx, observed)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLeaveGame_AbandonedIsDeleted(t *testing.T) {
	e := newTestEnv(t, DefaultRules(), "alice", "bob")
	play := startedGame(t, e)

	assert.ErrorIs(t, e.uc.LeaveGame(e.ctx, "alice", play.ID), errs.ErrGameInProgress)

	_, err := e.uc.SubmitChoice(e.ctx, "alice", play.ID, game.Rock)
	require.NoError(t, err)
	_, err = e.uc.Abandon(e.ctx, e.game(t, play.ID))
	require.NoError(t, err)

	require.NoError(t, e.uc.LeaveGame(e.ctx, "bob", play.ID))
	_, err = e.games.GetGame(e.ctx, play.ID)
	assert.ErrorIs(t, err, errs.ErrGameNotFound)
	assert.Empty(t, e.pointer(t, "bob"))
	assert.Equal(t, play.ID, e.pointer(t, "alice"), "only the leaver's pointer is cleared")

	require.NoError(t, e.uc.LeaveGame(e.ctx, "alice", play.ID))
	assert.Empty(t, e.pointer(t, "alice"))
}
