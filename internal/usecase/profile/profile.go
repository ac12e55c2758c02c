package profile

import (
	"context"

	"go.uber.org/zap"

	"rps_arena/internal/domain/user"
	errs "rps_arena/internal/errors"
)

type ProfileStore interface {
	GetProfile(ctx context.Context, uid string) (user.Profile, error)
	UserIDByUsername(ctx context.Context, username string) (string, error)
	UpdateProfile(ctx context.Context, uid string, fields map[string]any) error
	SetPresence(ctx context.Context, uid string, online bool) error
}

// Update is a partial profile edit; nil fields are left alone.
type Update struct {
	Bio    *string `json:"bio,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
}

type ProfileUseCase struct {
	profiles ProfileStore
	log      *zap.SugaredLogger
}

func NewProfileUseCase(profiles ProfileStore, log *zap.SugaredLogger) *ProfileUseCase {
	return &ProfileUseCase{
		profiles: profiles,
		log:      log,
	}
}

func (p *ProfileUseCase) Get(ctx context.Context, uid string) (user.Profile, error) {
	return p.profiles.GetProfile(ctx, uid)
}

func (p *ProfileUseCase) GetByUsername(ctx context.Context, username string) (user.Profile, error) {
	uid, err := p.profiles.UserIDByUsername(ctx, user.NormalizeUsername(username))
	if err != nil {
		return user.Profile{}, err
	}
	return p.profiles.GetProfile(ctx, uid)
}

func (p *ProfileUseCase) Update(ctx context.Context, uid string, upd Update) (user.Profile, error) {
	fields := make(map[string]any, 2)
	if upd.Bio != nil {
		if err := user.ValidateBio(*upd.Bio); err != nil {
			return user.Profile{}, err
		}
		fields[user.FieldBio] = *upd.Bio
	}
	if upd.Avatar != nil {
		if !user.IsAvatar(*upd.Avatar) {
			return user.Profile{}, errs.ErrUnknownAvatar
		}
		fields[user.FieldAvatar] = *upd.Avatar
	}

	if _, err := p.profiles.GetProfile(ctx, uid); err != nil {
		return user.Profile{}, err
	}
	if len(fields) > 0 {
		if err := p.profiles.UpdateProfile(ctx, uid, fields); err != nil {
			return user.Profile{}, err
		}
	}
	return p.profiles.GetProfile(ctx, uid)
}

func (p *ProfileUseCase) UpdateBio(ctx context.Context, uid, bio string) (user.Profile, error) {
	return p.Update(ctx, uid, Update{Bio: &bio})
}

func (p *ProfileUseCase) SetAvatar(ctx context.Context, uid, avatar string) (user.Profile, error) {
	return p.Update(ctx, uid, Update{Avatar: &avatar})
}

// SetPresence marks the user online or offline and stamps last_seen.
func (p *ProfileUseCase) SetPresence(ctx context.Context, uid string, online bool) error {
	if err := p.profiles.SetPresence(ctx, uid, online); err != nil {
		p.log.Warnf("presence update for %s failed: %v", uid, err)
		return err
	}
	return nil
}
