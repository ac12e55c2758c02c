package game

import (
	"context"

	"rps_arena/internal/domain/game"
	errs "rps_arena/internal/errors"
)

// Resolution is the complete write that closes one round.
type Resolution struct {
	Round     game.TurnResult
	Completed bool
	WinnerID  string
	Fields    map[string]any
}

// ResolveRound computes the resolution of g's current round as a pure
// function of g. It writes the whole turn_results array rather than
// appending, so applying the same resolution twice gives the same record.
func (r Rules) ResolveRound(g game.Game) (Resolution, bool) {
	if g.Status != game.StatusInProgress || !g.BothChosen() {
		return Resolution{}, false
	}
	if !g.Player1Choice.Valid() || !g.Player2Choice.Valid() {
		return Resolution{}, false
	}

	round := game.TurnResult{
		Player1Choice: g.Player1Choice,
		Player2Choice: g.Player2Choice,
		Result:        game.RoundOutcome(g.Player1Choice, g.Player2Choice),
	}
	results := make([]game.TurnResult, 0, len(g.TurnResults)+1)
	results = append(results, g.TurnResults...)
	results = append(results, round)

	next := g
	next.TurnResults = results
	p1, p2, _ := next.Wins()

	res := Resolution{
		Round: round,
		Fields: map[string]any{
			game.FieldTurnResults:   results,
			game.FieldPlayer1Choice: nil,
			game.FieldPlayer2Choice: nil,
		},
	}

	majority := r.Rounds/2 + 1
	if len(results) >= r.Rounds || (r.StopOnMajority && (p1 >= majority || p2 >= majority)) {
		res.Completed = true
		switch {
		case p1 > p2:
			res.WinnerID = g.Player1ID
		case p2 > p1:
			res.WinnerID = g.Player2ID
		}
		res.Fields[game.FieldStatus] = game.StatusCompleted
		res.Fields[game.FieldWinnerID] = game.Nullable(res.WinnerID)
	} else {
		res.Fields[game.FieldCurrentTurn] = g.CurrentTurn + 1
	}
	return res, true
}

// roundCondition pins the pre-state a resolution or abandonment was computed
// from.
func roundCondition(g game.Game) map[string]any {
	return map[string]any{
		game.FieldStatus:        game.StatusInProgress,
		game.FieldCurrentTurn:   g.CurrentTurn,
		game.FieldPlayer1Choice: game.Nullable(g.Player1Choice),
		game.FieldPlayer2Choice: game.Nullable(g.Player2Choice),
	}
}

// SubmitChoice records uid's choice for the current round and resolves the
// round if the opponent has already chosen.
func (g *GameUseCase) SubmitChoice(ctx context.Context, uid, gameID string, choice game.Choice) (game.Game, error) {
	if !choice.Valid() {
		return game.Game{}, errs.ErrInvalidChoice
	}
	play, err := g.games.GetGame(ctx, gameID)
	if err != nil {
		return game.Game{}, err
	}
	seat := play.Seat(uid)
	if seat == 0 {
		return game.Game{}, errs.ErrNotYourGame
	}
	if play.Status != game.StatusInProgress {
		return game.Game{}, errs.ErrGameNotRunning
	}
	if play.ChoiceOf(seat) != "" {
		return game.Game{}, errs.ErrChoiceRejected
	}

	field := game.ChoiceField(seat)
	ok, err := g.games.UpdateGameIf(ctx, gameID,
		map[string]any{
			game.FieldStatus:      game.StatusInProgress,
			game.FieldCurrentTurn: play.CurrentTurn,
			field:                 nil,
		},
		map[string]any{field: choice},
	)
	if err != nil {
		return game.Game{}, err
	}
	if !ok {
		return game.Game{}, errs.ErrChoiceRejected
	}

	play, err = g.games.GetGame(ctx, gameID)
	if err != nil {
		return game.Game{}, err
	}
	if play.BothChosen() {
		if _, err := g.ResolveTurn(ctx, play); err != nil {
			return play, err
		}
		return g.games.GetGame(ctx, gameID)
	}
	return play, nil
}

// ResolveTurn writes the resolution of observed if the record still holds that
// exact pre-state. Any number of callers may race; one write lands.
func (g *GameUseCase) ResolveTurn(ctx context.Context, observed game.Game) (bool, error) {
	res, ok := g.rules.ResolveRound(observed)
	if !ok {
		return false, nil
	}
	applied, err := g.games.UpdateGameIf(ctx, observed.ID, roundCondition(observed), res.Fields)
	if err != nil {
		return false, err
	}
	if applied {
		g.log.Infof("game %s turn %d resolved: %s", observed.ID, observed.CurrentTurn, res.Round.Result)
		if res.Completed {
			g.log.Infof("game %s completed, winner %q", observed.ID, res.WinnerID)
		}
	}
	return applied, nil
}

// Abandon marks observed as abandoned if it is still waiting on the same
// single choice it was observed with.
func (g *GameUseCase) Abandon(ctx context.Context, observed game.Game) (bool, error) {
	if observed.Status != game.StatusInProgress || observed.PendingSeat() == 0 {
		return false, nil
	}
	applied, err := g.games.UpdateGameIf(ctx, observed.ID, roundCondition(observed), map[string]any{
		game.FieldStatus: game.StatusAbandoned,
	})
	if err != nil {
		return false, err
	}
	if applied {
		g.log.Infof("game %s abandoned on turn %d", observed.ID, observed.CurrentTurn)
	}
	return applied, nil
}
