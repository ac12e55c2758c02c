package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"rps_arena/internal/common"
	userDomain "rps_arena/internal/domain/user"
	errs "rps_arena/internal/errors"
)

const sessionIDLength = 64

type AuthUsecaseHandler struct {
	accountStorage AccountStorage
	profileStorage ProfileStorage
	sessionStorage SessionStorage
	clock          clockwork.Clock
	log            *zap.SugaredLogger
}

func NewUserUsecaseHandler(a AccountStorage, p ProfileStorage, s SessionStorage, clock clockwork.Clock, log *zap.SugaredLogger) *AuthUsecaseHandler {
	return &AuthUsecaseHandler{
		accountStorage: a,
		profileStorage: p,
		sessionStorage: s,
		clock:          clock,
		log:            log,
	}
}

type AccountStorage interface {
	ReserveEmail(ctx context.Context, email, uid string) (bool, error)
	ReleaseEmail(ctx context.Context, email, uid string) error
	UserIDByEmail(ctx context.Context, email string) (string, error)
	CreateAccount(ctx context.Context, account userDomain.Account) error
	GetAccount(ctx context.Context, uid string) (userDomain.Account, error)
	DeleteAccount(ctx context.Context, uid string) error
}

type ProfileStorage interface {
	CreateProfile(ctx context.Context, uid, username string) (userDomain.Profile, error)
	ReserveUsername(ctx context.Context, username, uid string) (bool, error)
	ReleaseUsername(ctx context.Context, username, uid string) error
	UserIDByUsername(ctx context.Context, username string) (string, error)
}

type SessionStorage interface {
	GetUserIdBySession(ctx context.Context, sessionID string) (userID string, ok bool)
	StoreSession(ctx context.Context, sessionID string, userID string) error
	DeleteSession(ctx context.Context, sessionID string) (ok bool)
}

// RegisterUser creates the account and the public profile and opens a
// session. Username and email are claimed first through reservations, and
// everything written so far is rolled back if a later step fails.
func (a *AuthUsecaseHandler) RegisterUser(ctx context.Context, username, email, password string) (sessionID, userID string, err error) {
	username = userDomain.NormalizeUsername(username)
	email = userDomain.NormalizeEmail(email)
	if err := userDomain.ValidateUsername(username); err != nil {
		return "", "", err
	}
	if err := userDomain.ValidateEmail(email); err != nil {
		return "", "", err
	}
	if err := userDomain.ValidatePassword(password); err != nil {
		return "", "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}

	uid := uuid.NewString()
	var undo []func()
	defer func() {
		if err == nil {
			return
		}
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}()
	cleanup := context.WithoutCancel(ctx)

	ok, err := a.profileStorage.ReserveUsername(ctx, username, uid)
	if err != nil {
		return "", "", err
	}
	if !ok {
		return "", "", errs.ErrUserExists
	}
	undo = append(undo, func() {
		if err := a.profileStorage.ReleaseUsername(cleanup, username, uid); err != nil {
			a.log.Errorf("rollback: release username %s: %v", username, err)
		}
	})

	ok, err = a.accountStorage.ReserveEmail(ctx, email, uid)
	if err != nil {
		return "", "", err
	}
	if !ok {
		return "", "", errs.ErrEmailExists
	}
	undo = append(undo, func() {
		if err := a.accountStorage.ReleaseEmail(cleanup, email, uid); err != nil {
			a.log.Errorf("rollback: release email: %v", err)
		}
	})

	err = a.accountStorage.CreateAccount(ctx, userDomain.Account{
		ID:           uid,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    a.clock.Now(),
	})
	if err != nil {
		return "", "", err
	}
	undo = append(undo, func() {
		if err := a.accountStorage.DeleteAccount(cleanup, uid); err != nil {
			a.log.Errorf("rollback: delete account %s: %v", uid, err)
		}
	})

	if _, err = a.profileStorage.CreateProfile(ctx, uid, username); err != nil {
		return "", "", err
	}

	sessionID, err = a.openSession(ctx, uid)
	if err != nil {
		return "", "", err
	}
	a.log.Infof("user %s registered as %s", uid, username)
	return sessionID, uid, nil
}

// LoginUser accepts either the username or the email as login.
func (a *AuthUsecaseHandler) LoginUser(ctx context.Context, login, password string) (sessionID, userID string, err error) {
	if strings.Contains(login, "@") {
		userID, err = a.accountStorage.UserIDByEmail(ctx, userDomain.NormalizeEmail(login))
	} else {
		userID, err = a.profileStorage.UserIDByUsername(ctx, userDomain.NormalizeUsername(login))
	}
	if err != nil {
		return "", "", err
	}

	account, err := a.accountStorage.GetAccount(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return "", "", errs.ErrWrongPassword
		}
		return "", "", err
	}

	sessionID, err = a.openSession(ctx, userID)
	if err != nil {
		return "", "", err
	}
	return sessionID, userID, nil
}

func (a *AuthUsecaseHandler) openSession(ctx context.Context, uid string) (string, error) {
	sessionID := common.RandString(sessionIDLength)
	if err := a.sessionStorage.StoreSession(ctx, sessionID, uid); err != nil {
		return "", err
	}
	return sessionID, nil
}

// LogoutUser returns the id of the user the session belonged to, or
// ErrSessionNotFound.
func (a *AuthUsecaseHandler) LogoutUser(ctx context.Context, sessionID string) (string, error) {
	uid, ok := a.sessionStorage.GetUserIdBySession(ctx, sessionID)
	if !ok {
		return "", errs.ErrSessionNotFound
	}
	if !a.sessionStorage.DeleteSession(ctx, sessionID) {
		return "", errs.ErrSessionNotFound
	}
	return uid, nil
}

func (a *AuthUsecaseHandler) GetUserIdFromSession(ctx context.Context, sessionID string) (string, error) {
	uid, ok := a.sessionStorage.GetUserIdBySession(ctx, sessionID)
	if !ok {
		return "", errs.ErrSessionNotFound
	}
	return uid, nil
}

func (a *AuthUsecaseHandler) CheckAuthorized(ctx context.Context, sessionID string) bool {
	_, ok := a.sessionStorage.GetUserIdBySession(ctx, sessionID)
	return ok
}
