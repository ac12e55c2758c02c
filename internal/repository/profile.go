package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"rps_arena/internal/domain/user"
	errs "rps_arena/internal/errors"
	"rps_arena/internal/store"
)

type ProfileRepository struct {
	store store.Store
	clock clockwork.Clock
	log   *zap.SugaredLogger
}

func NewProfileRepository(s store.Store, clock clockwork.Clock, log *zap.SugaredLogger) *ProfileRepository {
	return &ProfileRepository{
		store: s,
		clock: clock,
		log:   log,
	}
}

func profileKey(uid string) string {
	return store.Key(user.ProfileCollection, uid)
}

func (p *ProfileRepository) CreateProfile(ctx context.Context, uid, username string) (user.Profile, error) {
	now := p.clock.Now()
	profile := user.Profile{
		ID:        uid,
		Username:  username,
		Avatar:    user.DefaultAvatar,
		LastSeen:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := p.store.CreateIfAbsent(ctx, profileKey(uid), store.Fields{
		user.FieldUsername:  username,
		user.FieldOnline:    false,
		user.FieldLastSeen:  now,
		user.FieldAvatar:    user.DefaultAvatar,
		user.FieldBio:       "",
		user.FieldCreatedAt: now,
		user.FieldUpdatedAt: now,
	})
	if err != nil {
		return user.Profile{}, fmt.Errorf("create profile %s: %w", uid, err)
	}
	if !created {
		return user.Profile{}, errs.ErrUserExists
	}
	return profile, nil
}

func (p *ProfileRepository) GetProfile(ctx context.Context, uid string) (user.Profile, error) {
	raw, err := p.store.Get(ctx, profileKey(uid))
	if errors.Is(err, store.ErrNotFound) {
		return user.Profile{}, errs.ErrProfileNotFound
	}
	if err != nil {
		return user.Profile{}, fmt.Errorf("get profile %s: %w", uid, err)
	}
	return decodeProfile(uid, raw)
}

func decodeProfile(uid string, raw []byte) (user.Profile, error) {
	var profile user.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return user.Profile{}, err
	}
	profile.ID = uid
	return profile, nil
}

func (p *ProfileRepository) AllProfiles(ctx context.Context) ([]user.Profile, error) {
	snaps, err := p.store.List(ctx, user.ProfileCollection)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	out := make([]user.Profile, 0, len(snaps))
	for _, snap := range snaps {
		profile, err := decodeProfile(snap.ID, snap.Value)
		if err != nil {
			p.log.Warnf("skipping malformed profile %s: %v", snap.ID, err)
			continue
		}
		out = append(out, profile)
	}
	return out, nil
}

func (p *ProfileRepository) UpdateProfile(ctx context.Context, uid string, fields map[string]any) error {
	update := make(store.Fields, len(fields)+1)
	for k, v := range fields {
		update[k] = v
	}
	update[user.FieldUpdatedAt] = p.clock.Now()
	if err := p.store.Update(ctx, profileKey(uid), update); err != nil {
		return fmt.Errorf("update profile %s: %w", uid, err)
	}
	return nil
}

func (p *ProfileRepository) SetCurrentGame(ctx context.Context, uid, gameID string) error {
	var value any
	if gameID != "" {
		value = gameID
	}
	return p.UpdateProfile(ctx, uid, map[string]any{user.FieldCurrentGameID: value})
}

// ClearCurrentGame clears the pointer only while it still names gameID, so a
// newer game recorded in between is left alone.
func (p *ProfileRepository) ClearCurrentGame(ctx context.Context, uid, gameID string) error {
	_, err := p.store.UpdateIf(ctx, profileKey(uid),
		store.Fields{user.FieldCurrentGameID: gameID},
		store.Fields{user.FieldCurrentGameID: nil, user.FieldUpdatedAt: p.clock.Now()},
	)
	if err != nil {
		return fmt.Errorf("clear current game of %s: %w", uid, err)
	}
	return nil
}

func (p *ProfileRepository) SetPresence(ctx context.Context, uid string, online bool) error {
	now := p.clock.Now()
	_, err := p.store.UpdateIf(ctx, profileKey(uid), nil, store.Fields{
		user.FieldOnline:   online,
		user.FieldLastSeen: now,
	})
	if err != nil {
		return fmt.Errorf("set presence of %s: %w", uid, err)
	}
	return nil
}

func (p *ProfileRepository) ReserveUsername(ctx context.Context, username, uid string) (bool, error) {
	ok, err := p.store.CreateIfAbsent(ctx, store.Key(user.UsernameCollection, username), store.Fields{"user_id": uid})
	if err != nil {
		return false, fmt.Errorf("reserve username %s: %w", username, err)
	}
	return ok, nil
}

func (p *ProfileRepository) ReleaseUsername(ctx context.Context, username, uid string) error {
	if _, err := p.store.DeleteIf(ctx, store.Key(user.UsernameCollection, username), store.Fields{"user_id": uid}); err != nil {
		return fmt.Errorf("release username %s: %w", username, err)
	}
	return nil
}

func (p *ProfileRepository) UserIDByUsername(ctx context.Context, username string) (string, error) {
	return lookupReservation(ctx, p.store, store.Key(user.UsernameCollection, username))
}

func lookupReservation(ctx context.Context, s store.Store, key string) (string, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrBadKey) {
		return "", errs.ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", key, err)
	}
	var res user.Reservation
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", err
	}
	if res.UserID == "" {
		return "", errs.ErrUserNotFound
	}
	return res.UserID, nil
}
