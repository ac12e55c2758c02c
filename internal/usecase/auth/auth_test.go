package auth

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	errs "rps_arena/internal/errors"
	repo "rps_arena/internal/repository"
	"rps_arena/internal/store"
)

type authEnv struct {
	ctx      context.Context
	accounts *repo.AccountRepository
	profiles *repo.ProfileRepository
	uc       *AuthUsecaseHandler
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	clock := clockwork.NewFakeClock()
	s := store.NewMemoryStore()
	accounts := repo.NewAccountRepository(s, log)
	profiles := repo.NewProfileRepository(s, clock, log)
	return &authEnv{
		ctx:      context.Background(),
		accounts: accounts,
		profiles: profiles,
		uc:       NewUserUsecaseHandler(accounts, profiles, repo.NewSessionMapStorage(time.Hour), clock, log),
	}
}

func TestRegisterAndLogin(t *testing.T) {
	e := newAuthEnv(t)

	sessionID, uid, err := e.uc.RegisterUser(e.ctx, " Alice ", "Alice@Example.com", "secret1")
	require.NoError(t, err)
	assert.Len(t, sessionID, sessionIDLength)

	fromSession, err := e.uc.GetUserIdFromSession(e.ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, uid, fromSession)

	profile, err := e.profiles.GetProfile(e.ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)
	assert.Empty(t, profile.CurrentGameID)

	account, err := e.accounts.GetAccount(e.ctx, uid)
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", account.PasswordHash)

	_, byName, err := e.uc.LoginUser(e.ctx, "ALICE", "secret1")
	require.NoError(t, err)
	assert.Equal(t, uid, byName)

	_, byEmail, err := e.uc.LoginUser(e.ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, uid, byEmail)

	_, _, err = e.uc.LoginUser(e.ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, errs.ErrWrongPassword)

	_, _, err = e.uc.LoginUser(e.ctx, "nobody", "secret1")
	assert.ErrorIs(t, err, errs.ErrUserNotFound)
}

func TestRegister_Validation(t *testing.T) {
	e := newAuthEnv(t)

	_, _, err := e.uc.RegisterUser(e.ctx, "bad name", "a@example.com", "secret1")
	assert.ErrorIs(t, err, errs.ErrInvalidUsername)
	_, _, err = e.uc.RegisterUser(e.ctx, "alice", "not-an-email", "secret1")
	assert.ErrorIs(t, err, errs.ErrInvalidEmail)
	_, _, err = e.uc.RegisterUser(e.ctx, "alice", "a@example.com", "12345")
	assert.ErrorIs(t, err, errs.ErrWeakPassword)
}

func TestRegister_Uniqueness(t *testing.T) {
	e := newAuthEnv(t)

	_, _, err := e.uc.RegisterUser(e.ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	_, _, err = e.uc.RegisterUser(e.ctx, "alice", "other@example.com", "secret1")
	assert.ErrorIs(t, err, errs.ErrUserExists)

	_, _, err = e.uc.RegisterUser(e.ctx, "bob", "alice@example.com", "secret1")
	assert.ErrorIs(t, err, errs.ErrEmailExists)

	_, err = e.profiles.UserIDByUsername(e.ctx, "bob")
	assert.ErrorIs(t, err, errs.ErrUserNotFound, "failed registration releases the username")

	_, _, err = e.uc.RegisterUser(e.ctx, "bob", "bob@example.com", "secret1")
	assert.NoError(t, err)
}

func TestLogout(t *testing.T) {
	e := newAuthEnv(t)

	sessionID, uid, err := e.uc.RegisterUser(e.ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.True(t, e.uc.CheckAuthorized(e.ctx, sessionID))

	loggedOut, err := e.uc.LogoutUser(e.ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, uid, loggedOut)
	assert.False(t, e.uc.CheckAuthorized(e.ctx, sessionID))

	_, err = e.uc.LogoutUser(e.ctx, sessionID)
	assert.ErrorIs(t, err, errs.ErrSessionNotFound)
	_, err = e.uc.GetUserIdFromSession(e.ctx, sessionID)
	assert.ErrorIs(t, err, errs.ErrSessionNotFound)
}
