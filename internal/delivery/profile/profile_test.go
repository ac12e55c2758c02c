package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"rps_arena/internal/bootstrap"
	"rps_arena/internal/delivery/auth"
	"rps_arena/internal/domain/game"
	"rps_arena/internal/domain/user"
	repo "rps_arena/internal/repository"
	"rps_arena/internal/store"
	authUC "rps_arena/internal/usecase/auth"
	profileuc "rps_arena/internal/usecase/profile"
	statsuc "rps_arena/internal/usecase/stats"
)

type profileEnv struct {
	ctx    context.Context
	clock  *clockwork.FakeClock
	router chi.Router
	auth   *authUC.AuthUsecaseHandler
	games  *repo.GameRepository
	ids    map[string]string
}

func newProfileEnv(t *testing.T) *profileEnv {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	clock := clockwork.NewFakeClock()
	s := store.NewMemoryStore()
	profiles := repo.NewProfileRepository(s, clock, log)
	games := repo.NewGameRepository(s, clock, log)

	authUsecase := authUC.NewUserUsecaseHandler(repo.NewAccountRepository(s, log), profiles,
		repo.NewSessionMapStorage(time.Hour), clock, log)
	cfg := &bootstrap.Config{SessionTTL: time.Hour, PageLimitPlayers: 2, PageLimitGames: 10}
	authHandler := auth.NewAuthHandler(authUsecase, cfg, log)

	h := NewProfileHandler(cfg, log,
		profileuc.NewProfileUseCase(profiles, log),
		statsuc.NewStatsUseCase(games, profiles, statsuc.DefaultWeights(), log),
		authHandler, clock)

	r := chi.NewRouter()
	r.Get("/me", h.HandleMe)
	r.Patch("/profile", h.HandleUpdateProfile)
	r.Get("/profiles/{username}", h.HandleGetProfile)
	r.Get("/profiles/{username}/stats", h.HandleStats)
	r.Get("/profiles/{username}/games", h.HandleGames)
	r.Get("/profiles/{username}/report.pdf", h.HandleReport)
	r.Get("/leaderboard", h.HandleLeaderboard)

	return &profileEnv{
		ctx:    context.Background(),
		clock:  clock,
		router: r,
		auth:   authUsecase,
		games:  games,
		ids:    make(map[string]string),
	}
}

func (e *profileEnv) signUp(t *testing.T, username string) *http.Cookie {
	t.Helper()
	sessionID, uid, err := e.auth.RegisterUser(e.ctx, username, username+"@example.com", "secret1")
	require.NoError(t, err)
	e.ids[username] = uid
	return &http.Cookie{Name: "sessionID", Value: sessionID}
}

// finish stores a completed game that host won two rounds to none.
func (e *profileEnv) finish(t *testing.T, host, guest string) {
	t.Helper()
	e.clock.Advance(time.Minute)
	id, err := e.games.CreateGame(e.ctx, game.NewWaiting(e.ids[host], "", e.clock.Now()))
	require.NoError(t, err)
	win := game.TurnResult{Player1Choice: game.Rock, Player2Choice: game.Scissors, Result: game.OutcomePlayer1}
	require.NoError(t, e.games.UpdateGame(e.ctx, id, map[string]any{
		game.FieldPlayer2ID:   e.ids[guest],
		game.FieldStatus:      game.StatusCompleted,
		game.FieldCurrentTurn: 2,
		game.FieldTurnResults: []game.TurnResult{win, win},
		game.FieldWinnerID:    e.ids[host],
	}))
}

func (e *profileEnv) get(t *testing.T, path string, cookie *http.Cookie, body any) int {
	t.Helper()
	return e.send(t, http.MethodGet, path, "", cookie, body)
}

func (e *profileEnv) send(t *testing.T, method, path, payload string, cookie *http.Cookie, body any) int {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code == http.StatusOK && body != nil {
		envelope := struct{ Body any }{Body: body}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	}
	return rec.Code
}

func TestMeAndUpdate(t *testing.T) {
	e := newProfileEnv(t)
	alice := e.signUp(t, "alice")

	var view ProfileView
	require.Equal(t, http.StatusOK, e.get(t, "/me", alice, &view))
	assert.Equal(t, "alice", view.Profile.Username)
	assert.Equal(t, user.DefaultAvatar, view.Profile.Avatar)
	assert.Zero(t, view.Stats.Total)

	var updated user.Profile
	code := e.send(t, http.MethodPatch, "/profile", `{"bio":"rock solid","avatar":"ninja"}`, alice, &updated)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "rock solid", updated.Bio)
	assert.Equal(t, "ninja", updated.Avatar)

	code = e.send(t, http.MethodPatch, "/profile", `{"avatar":"dragon"}`, alice, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code = e.send(t, http.MethodPatch, "/profile", `{"bio":"`+strings.Repeat("x", 201)+`"}`, alice, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	assert.Equal(t, http.StatusUnauthorized, e.get(t, "/me", nil, nil))
}

func TestPublicProfileAndHistory(t *testing.T) {
	e := newProfileEnv(t)
	e.signUp(t, "alice")
	e.signUp(t, "bob")
	e.signUp(t, "carol")
	e.finish(t, "alice", "bob")
	e.finish(t, "alice", "carol")
	e.finish(t, "bob", "carol")

	var view ProfileView
	require.Equal(t, http.StatusOK, e.get(t, "/profiles/Alice", nil, &view))
	assert.Equal(t, e.ids["alice"], view.Profile.ID)
	assert.Equal(t, 2, view.Stats.Wins)

	var stats user.Stats
	require.Equal(t, http.StatusOK, e.get(t, "/profiles/carol/stats", nil, &stats))
	assert.Equal(t, 2, stats.Losses)
	assert.Equal(t, 4, stats.RoundsLost)

	var history []user.RecentGame
	require.Equal(t, http.StatusOK, e.get(t, "/profiles/bob/games?limit=1", nil, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "carol", history[0].OpponentUsername)
	assert.Equal(t, user.ResultWin, history[0].Result)

	assert.Equal(t, http.StatusNotFound, e.get(t, "/profiles/nobody", nil, nil))
}

func TestLeaderboardIsCapped(t *testing.T) {
	e := newProfileEnv(t)
	e.signUp(t, "alice")
	e.signUp(t, "bob")
	e.signUp(t, "carol")
	e.finish(t, "alice", "bob")
	e.finish(t, "alice", "carol")
	e.finish(t, "bob", "carol")

	var board []user.LeaderboardEntry
	require.Equal(t, http.StatusOK, e.get(t, "/leaderboard?limit=50", nil, &board))
	require.Len(t, board, 2)
	assert.Equal(t, "alice", board[0].Username)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, "bob", board[1].Username)
}

func TestReportPDF(t *testing.T) {
	e := newProfileEnv(t)
	e.signUp(t, "alice")
	e.signUp(t, "bob")
	e.finish(t, "alice", "bob")

	req := httptest.NewRequest(http.MethodGet, "/profiles/alice/report.pdf", nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
}
