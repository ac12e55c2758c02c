package game

import (
	"bytes"
	"encoding/json"
)

type Choice string

const (
	Rock     Choice = "rock"
	Paper    Choice = "paper"
	Scissors Choice = "scissors"
)

var Choices = []Choice{Rock, Paper, Scissors}

func (c Choice) Valid() bool {
	switch c {
	case Rock, Paper, Scissors:
		return true
	}
	return false
}

// Beats reports whether c defeats other. Invalid choices beat nothing.
func (c Choice) Beats(other Choice) bool {
	switch c {
	case Rock:
		return other == Scissors
	case Scissors:
		return other == Paper
	case Paper:
		return other == Rock
	}
	return false
}

type Outcome string

const (
	OutcomePlayer1 Outcome = "player1"
	OutcomePlayer2 Outcome = "player2"
	OutcomeDraw    Outcome = "draw"
)

// RoundOutcome is total over the 3x3 choice matrix.
func RoundOutcome(p1, p2 Choice) Outcome {
	switch {
	case p1 == p2:
		return OutcomeDraw
	case p1.Beats(p2):
		return OutcomePlayer1
	default:
		return OutcomePlayer2
	}
}

// @name TurnResult
type TurnResult struct {
	Player1Choice Choice  `json:"player1_choice,omitempty"`
	Player2Choice Choice  `json:"player2_choice,omitempty"`
	Result        Outcome `json:"result"`
}

// UnmarshalJSON also accepts the older encoding where a round was stored as
// the bare outcome string.
func (t *TurnResult) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var result string
		if err := json.Unmarshal(data, &result); err != nil {
			return err
		}
		*t = TurnResult{Result: Outcome(result)}
		return nil
	}

	type plain TurnResult
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = TurnResult(p)
	return nil
}
