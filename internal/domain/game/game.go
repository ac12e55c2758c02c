package game

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// Record field names as stored under games/<id>.
const (
	FieldPlayer1ID        = "player1_id"
	FieldPlayer2ID        = "player2_id"
	FieldStatus           = "status"
	FieldCurrentTurn      = "current_turn"
	FieldPlayer1Choice    = "player1_choice"
	FieldPlayer2Choice    = "player2_choice"
	FieldTurnResults      = "turn_results"
	FieldWinnerID         = "winner_id"
	FieldChallengedUserID = "challenged_user_id"
	FieldCreatedAt        = "created_at"
	FieldUpdatedAt        = "updated_at"
)

const Collection = "games"

// Game mirrors a games/<id> record. Empty strings stand for null.
type Game struct {
	ID               string       `json:"id"`
	Player1ID        string       `json:"player1_id"`
	Player2ID        string       `json:"player2_id"`
	Status           Status       `json:"status"`
	CurrentTurn      int          `json:"current_turn"`
	Player1Choice    Choice       `json:"player1_choice"`
	Player2Choice    Choice       `json:"player2_choice"`
	TurnResults      []TurnResult `json:"turn_results"`
	WinnerID         string       `json:"winner_id"`
	ChallengedUserID string       `json:"challenged_user_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func Decode(id string, data []byte) (Game, error) {
	var g Game
	if err := json.Unmarshal(data, &g); err != nil {
		return Game{}, err
	}
	g.ID = id
	return g, nil
}

// NewWaiting builds the initial record of a game created by player1.
func NewWaiting(player1ID, challengedUserID string, now time.Time) map[string]any {
	return map[string]any{
		FieldPlayer1ID:        player1ID,
		FieldPlayer2ID:        nil,
		FieldStatus:           StatusWaiting,
		FieldCurrentTurn:      1,
		FieldPlayer1Choice:    nil,
		FieldPlayer2Choice:    nil,
		FieldTurnResults:      []TurnResult{},
		FieldWinnerID:         nil,
		FieldChallengedUserID: Nullable(challengedUserID),
		FieldCreatedAt:        now,
		FieldUpdatedAt:        now,
	}
}

// Nullable maps the zero string to a stored null.
func Nullable[T ~string](s T) any {
	if s == "" {
		return nil
	}
	return s
}

// Seat returns 1 or 2 for a player of the game and 0 otherwise.
func (g Game) Seat(userID string) int {
	switch {
	case userID == "":
		return 0
	case g.Player1ID == userID:
		return 1
	case g.Player2ID == userID:
		return 2
	}
	return 0
}

func (g Game) HasPlayer(userID string) bool {
	return g.Seat(userID) != 0
}

func (g Game) OpponentOf(userID string) string {
	switch g.Seat(userID) {
	case 1:
		return g.Player2ID
	case 2:
		return g.Player1ID
	}
	return ""
}

func (g Game) ChoiceOf(seat int) Choice {
	switch seat {
	case 1:
		return g.Player1Choice
	case 2:
		return g.Player2Choice
	}
	return ""
}

func ChoiceField(seat int) string {
	if seat == 2 {
		return FieldPlayer2Choice
	}
	return FieldPlayer1Choice
}

func (g Game) IsTerminal() bool {
	return g.Status == StatusCompleted || g.Status == StatusAbandoned
}

func (g Game) BothChosen() bool {
	return g.Player1Choice != "" && g.Player2Choice != ""
}

// PendingSeat returns the seat that has chosen when exactly one choice is
// set, else 0.
func (g Game) PendingSeat() int {
	switch {
	case g.Player1Choice != "" && g.Player2Choice == "":
		return 1
	case g.Player1Choice == "" && g.Player2Choice != "":
		return 2
	}
	return 0
}

// Wins counts round outcomes so far.
func (g Game) Wins() (p1, p2, draws int) {
	for _, r := range g.TurnResults {
		switch r.Result {
		case OutcomePlayer1:
			p1++
		case OutcomePlayer2:
			p2++
		case OutcomeDraw:
			draws++
		}
	}
	return p1, p2, draws
}

// JoinableBy reports whether userID may claim this game as player2.
func (g Game) JoinableBy(userID string) bool {
	return g.Status == StatusWaiting &&
		g.Player2ID == "" &&
		g.Player1ID != userID &&
		(g.ChallengedUserID == "" || g.ChallengedUserID == userID)
}

type Role string

const (
	RoleNone          Role = ""
	RoleAbandoner     Role = "abandoner"
	RoleNonAbandoner  Role = "non_abandoner"
	RoleNotApplicable Role = "spectator"
)

// AbandonRole classifies userID in an abandoned game: whoever had submitted
// in the unresolved round stayed, the other walked away.
func (g Game) AbandonRole(userID string) Role {
	if g.Status != StatusAbandoned {
		return RoleNone
	}
	seat := g.Seat(userID)
	if seat == 0 {
		return RoleNotApplicable
	}
	if g.ChoiceOf(seat) != "" {
		return RoleNonAbandoner
	}
	return RoleAbandoner
}
