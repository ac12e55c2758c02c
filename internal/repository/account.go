package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rps_arena/internal/domain/user"
	errs "rps_arena/internal/errors"
	"rps_arena/internal/store"
)

type AccountRepository struct {
	store store.Store
	log   *zap.SugaredLogger
}

func NewAccountRepository(s store.Store, log *zap.SugaredLogger) *AccountRepository {
	return &AccountRepository{
		store: s,
		log:   log,
	}
}

func (a *AccountRepository) ReserveEmail(ctx context.Context, email, uid string) (bool, error) {
	ok, err := a.store.CreateIfAbsent(ctx, store.Key(user.EmailCollection, email), store.Fields{"user_id": uid})
	if err != nil {
		return false, fmt.Errorf("reserve email: %w", err)
	}
	return ok, nil
}

func (a *AccountRepository) ReleaseEmail(ctx context.Context, email, uid string) error {
	if _, err := a.store.DeleteIf(ctx, store.Key(user.EmailCollection, email), store.Fields{"user_id": uid}); err != nil {
		return fmt.Errorf("release email: %w", err)
	}
	return nil
}

func (a *AccountRepository) UserIDByEmail(ctx context.Context, email string) (string, error) {
	return lookupReservation(ctx, a.store, store.Key(user.EmailCollection, email))
}

func (a *AccountRepository) CreateAccount(ctx context.Context, account user.Account) error {
	created, err := a.store.CreateIfAbsent(ctx, store.Key(user.AccountCollection, account.ID), store.Fields{
		"email":         account.Email,
		"password_hash": account.PasswordHash,
		"created_at":    account.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	if !created {
		return errs.ErrUserExists
	}
	return nil
}

func (a *AccountRepository) GetAccount(ctx context.Context, uid string) (user.Account, error) {
	raw, err := a.store.Get(ctx, store.Key(user.AccountCollection, uid))
	if errors.Is(err, store.ErrNotFound) {
		return user.Account{}, errs.ErrUserNotFound
	}
	if err != nil {
		return user.Account{}, fmt.Errorf("get account: %w", err)
	}
	var account user.Account
	if err := json.Unmarshal(raw, &account); err != nil {
		return user.Account{}, err
	}
	account.ID = uid
	return account, nil
}

func (a *AccountRepository) DeleteAccount(ctx context.Context, uid string) error {
	return a.store.Delete(ctx, store.Key(user.AccountCollection, uid))
}
