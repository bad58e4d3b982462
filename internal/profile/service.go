package profile

import (
	"context"
	"errors"
	"strings"

	"profilehub/internal/account"
	"profilehub/internal/apperr"
	"profilehub/internal/media"
)

// ObjectStorage is the collaborator contract for hosted image assets.
type ObjectStorage interface {
	UploadImage(ctx context.Context, imageSource string) (string, error)
	DeleteImage(ctx context.Context, publicID string) error
}

// Service mutates profile fields for an already-authenticated account. Image
// fields are only updated after the asset is durably in object storage, so a
// failed upload never leaves a dangling reference.
type Service struct {
	store   account.Store
	storage ObjectStorage
}

func NewService(store account.Store, storage ObjectStorage) *Service {
	return &Service{store: store, storage: storage}
}

func (s *Service) UpdateDetails(ctx context.Context, accountID, displayName, username string) (account.Identity, error) {
	displayName = strings.TrimSpace(displayName)
	username = strings.ToLower(strings.TrimSpace(username))

	if displayName == "" && username == "" {
		return account.Identity{}, apperr.New(apperr.KindValidation, "display name or username is required")
	}

	var displayNamePtr, usernamePtr *string
	if displayName != "" {
		displayNamePtr = &displayName
	}
	if username != "" {
		usernamePtr = &username
	}

	acc, err := s.store.UpdateDetails(ctx, accountID, displayNamePtr, usernamePtr)
	if err != nil {
		if errors.Is(err, account.ErrDuplicate) {
			return account.Identity{}, apperr.New(apperr.KindConflict, "username already taken")
		}
		if errors.Is(err, account.ErrNotFound) {
			return account.Identity{}, apperr.New(apperr.KindNotFound, "account not found")
		}
		return account.Identity{}, err
	}

	return acc.Identity(), nil
}

func (s *Service) UpdateAvatar(ctx context.Context, accountID, imageSource string) (account.Identity, error) {
	return s.updateImage(ctx, accountID, imageSource, "avatar", s.store.SetAvatarURL)
}

func (s *Service) UpdateCoverImage(ctx context.Context, accountID, imageSource string) (account.Identity, error) {
	return s.updateImage(ctx, accountID, imageSource, "cover image", s.store.SetCoverImageURL)
}

func (s *Service) updateImage(
	ctx context.Context,
	accountID, imageSource, label string,
	set func(context.Context, string, *string) (account.Account, error),
) (account.Identity, error) {
	if strings.TrimSpace(imageSource) == "" {
		return account.Identity{}, apperr.New(apperr.KindValidation, label+" file is required")
	}

	uploaded, err := s.storage.UploadImage(ctx, imageSource)
	if err != nil {
		return account.Identity{}, apperr.Wrap(apperr.KindDependency, "failed to upload "+label, err)
	}

	acc, err := set(ctx, accountID, &uploaded)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return account.Identity{}, apperr.New(apperr.KindNotFound, "account not found")
		}
		return account.Identity{}, err
	}

	return acc.Identity(), nil
}

// DeleteAvatar removes the account's avatar: the hosted asset first, then the
// stored reference. An account without an avatar has nothing to delete.
func (s *Service) DeleteAvatar(ctx context.Context, accountID string) (account.Identity, error) {
	acc, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return account.Identity{}, apperr.New(apperr.KindNotFound, "account not found")
		}
		return account.Identity{}, err
	}

	if acc.AvatarURL == nil || *acc.AvatarURL == "" {
		return account.Identity{}, apperr.New(apperr.KindValidation, "account does not have an avatar to delete")
	}

	if publicID := media.PublicIDFromURL(*acc.AvatarURL); publicID != "" {
		if err := s.storage.DeleteImage(ctx, publicID); err != nil {
			return account.Identity{}, apperr.Wrap(apperr.KindDependency, "failed to delete avatar", err)
		}
	}

	updated, err := s.store.SetAvatarURL(ctx, accountID, nil)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return account.Identity{}, apperr.New(apperr.KindNotFound, "account not found")
		}
		return account.Identity{}, err
	}

	return updated.Identity(), nil
}
