package game

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"rps_arena/internal/delivery/auth"
	"rps_arena/internal/domain/game"
	errs "rps_arena/internal/errors"
	"rps_arena/internal/httpresponse"
	gameuc "rps_arena/internal/usecase/game"
	profileuc "rps_arena/internal/usecase/profile"
	"rps_arena/internal/utils"
)

const (
	opFind      = "find"
	opChallenge = "challenge"
	opAccept    = "accept"
	opChoice    = "choice"
	opCancel    = "cancel"
	opLeave     = "leave"
	opResume    = "resume"
)

type GameHandler struct {
	log         *zap.SugaredLogger
	gameUC      *gameuc.GameUseCase
	registry    *gameuc.Registry
	profileUC   *profileuc.ProfileUseCase
	authHandler *auth.AuthHandler
}

// Command is one player action, sent as the JSON body of the HTTP routes or
// as a WebSocket message.
type Command struct {
	Type     string `json:"type,omitempty"`
	Choice   string `json:"choice,omitempty"`
	GameID   string `json:"game_id,omitempty"`
	Username string `json:"username,omitempty"`
}

type GameResponse struct {
	Game   game.Game `json:"game"`
	Role   game.Role `json:"role,omitempty"`
	Joined bool      `json:"joined,omitempty"`
}

func NewGameHandler(log *zap.SugaredLogger, gameUC *gameuc.GameUseCase, registry *gameuc.Registry, profileUC *profileuc.ProfileUseCase, authHandler *auth.AuthHandler) *GameHandler {
	return &GameHandler{
		log:         log,
		gameUC:      gameUC,
		registry:    registry,
		profileUC:   profileUC,
		authHandler: authHandler,
	}
}

// Execute runs cmd for the user's client. Every command first re-attaches
// the client to the stored active game, so a restarted server or a second
// device picks up where the player left off.
func (g *GameHandler) Execute(ctx context.Context, client *gameuc.Client, cmd Command) (GameResponse, error) {
	uid := client.UserID()

	var (
		play game.Game
		err  error
	)
	switch cmd.Type {
	case opFind:
		play, err = client.FindMatch(ctx)
		if err == nil {
			return GameResponse{Game: play, Joined: play.Status == game.StatusInProgress}, nil
		}
	case opChallenge:
		target, lookupErr := g.profileUC.GetByUsername(ctx, cmd.Username)
		if lookupErr != nil {
			return GameResponse{}, lookupErr
		}
		play, err = client.Challenge(ctx, target.ID)
	case opAccept:
		play, err = client.Accept(ctx, cmd.GameID)
	case opChoice:
		if _, err = client.Resume(ctx); err != nil {
			return GameResponse{}, err
		}
		play, err = client.Submit(ctx, game.Choice(cmd.Choice))
	case opCancel:
		if _, err = client.Resume(ctx); err != nil {
			return GameResponse{}, err
		}
		return GameResponse{}, client.Cancel(ctx)
	case opLeave:
		if _, err = client.Resume(ctx); err != nil && !errors.Is(err, errs.ErrNoActiveGame) {
			return GameResponse{}, err
		}
		return GameResponse{}, client.Leave(ctx)
	case opResume:
		play, err = client.Resume(ctx)
	default:
		return GameResponse{}, errs.ErrUnknownCommand
	}
	if err != nil {
		return GameResponse{}, err
	}
	return GameResponse{Game: play, Role: play.AbandonRole(uid)}, nil
}

func (g *GameHandler) handle(op string, withBody bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := g.authHandler.GetUserID(w, r)
		if userID == "" {
			return
		}

		var cmd Command
		if withBody {
			if err := utils.DecodeJSONRequest(r, &cmd); err != nil {
				g.log.Warnf("%s: malformed JSON from %s: %v", op, userID, err)
				httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
					httpresponse.ErrorResponse{ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc})
				return
			}
		}
		cmd.Type = op

		resp, err := g.Execute(r.Context(), g.registry.Client(userID), cmd)
		if err != nil {
			g.writeError(w, op, userID, err)
			return
		}
		httpresponse.WriteResponseWithStatus(w, http.StatusOK, resp)
	}
}

func (g *GameHandler) writeError(w http.ResponseWriter, op, userID string, err error) {
	if httpresponse.StatusFor(err) == http.StatusInternalServerError {
		g.log.Errorf("%s for %s failed: %v", op, userID, err)
	} else {
		g.log.Debugf("%s for %s rejected: %v", op, userID, err)
	}
	httpresponse.WriteError(w, err)
}

// HandleFindMatch joins the oldest open game or opens a new one.
func (g *GameHandler) HandleFindMatch(w http.ResponseWriter, r *http.Request) {
	g.handle(opFind, false)(w, r)
}

// HandleChallenge opens a game only the named player may join.
func (g *GameHandler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	g.handle(opChallenge, true)(w, r)
}

func (g *GameHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	g.handle(opAccept, true)(w, r)
}

func (g *GameHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	g.handle(opCancel, false)(w, r)
}

// HandleGetGame returns the player's active game, repairing a stale pointer
// on the way.
func (g *GameHandler) HandleGetGame(w http.ResponseWriter, r *http.Request) {
	g.handle(opResume, false)(w, r)
}

func (g *GameHandler) HandleChoice(w http.ResponseWriter, r *http.Request) {
	g.handle(opChoice, true)(w, r)
}

func (g *GameHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	g.handle(opLeave, false)(w, r)
}

// HandleChallenges lists open challenges addressed to the player.
func (g *GameHandler) HandleChallenges(w http.ResponseWriter, r *http.Request) {
	userID := g.authHandler.GetUserID(w, r)
	if userID == "" {
		return
	}
	pending, err := g.gameUC.PendingChallenges(r.Context(), userID)
	if err != nil {
		g.writeError(w, "challenges", userID, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, pending)
}
