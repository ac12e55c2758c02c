package user

import "time"

const (
	ProfileCollection  = "profiles"
	AccountCollection  = "accounts"
	UsernameCollection = "usernames"
	EmailCollection    = "emails"
)

const (
	FieldUsername      = "username"
	FieldOnline        = "online"
	FieldLastSeen      = "last_seen"
	FieldAvatar        = "avatar"
	FieldBio           = "bio"
	FieldCurrentGameID = "current_game_id"
	FieldCreatedAt     = "created_at"
	FieldUpdatedAt     = "updated_at"
)

const (
	MaxUsernameLength = 15
	MaxBioLength      = 200
	MinPasswordLength = 6
	DefaultAvatar     = "rock"
)

var Avatars = []string{
	"rock", "paper", "scissors", "trophy", "fire", "star",
	"crown", "robot", "alien", "ghost", "ninja", "wizard",
}

func IsAvatar(id string) bool {
	for _, a := range Avatars {
		if a == id {
			return true
		}
	}
	return false
}

// Profile is the public record under profiles/<uid>. Stats are never stored
// here, they are derived from games.
type Profile struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Online        bool      `json:"online"`
	LastSeen      time.Time `json:"last_seen"`
	Avatar        string    `json:"avatar"`
	Bio           string    `json:"bio"`
	CurrentGameID string    `json:"current_game_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Account holds credentials under accounts/<uid>.
type Account struct {
	ID           string    `json:"-"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Reservation is stored under usernames/<name> and emails/<email>.
type Reservation struct {
	UserID string `json:"user_id"`
}

type Stats struct {
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	Draws       int     `json:"draws"`
	Total       int     `json:"total"`
	RoundsWon   int     `json:"rounds_won"`
	RoundsLost  int     `json:"rounds_lost"`
	RoundsDrawn int     `json:"rounds_drawn"`
	WinRate     float64 `json:"win_rate"`
	WinStreak   int     `json:"win_streak"`
}

type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Online   bool   `json:"online"`
	Score    int    `json:"score"`
	Stats    Stats  `json:"stats"`
}

// RecentGame is one line of a player's history as seen by that player.
type RecentGame struct {
	GameID           string    `json:"game_id"`
	OpponentID       string    `json:"opponent_id"`
	OpponentUsername string    `json:"opponent_username"`
	Result           string    `json:"result"`
	RoundsWon        int       `json:"rounds_won"`
	RoundsLost       int       `json:"rounds_lost"`
	CreatedAt        time.Time `json:"created_at"`
}

const (
	ResultWin  = "win"
	ResultLoss = "loss"
	ResultDraw = "draw"
)
