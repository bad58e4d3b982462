package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"profilehub/internal/account"
	"profilehub/internal/apperr"
)

// ImageUploader is the slice of the object-storage collaborator registration
// needs: upload a file and get back its URL.
type ImageUploader interface {
	UploadImage(ctx context.Context, imageSource string) (string, error)
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
	// AvatarSource and CoverSource are uploadable image sources (data URIs).
	// Avatar is mandatory, cover is optional.
	AvatarSource string
	CoverSource  string
}

type LoginResult struct {
	Identity account.Identity
	Tokens   TokenPair
}

// Service owns the session lifecycle: registration, login, refresh rotation,
// logout, and password change. At most one refresh token is live per account;
// login and refresh overwrite it, logout and password change clear it.
type Service struct {
	store    account.Store
	hasher   *PasswordHasher
	issuer   *TokenIssuer
	uploader ImageUploader
}

func NewService(store account.Store, hasher *PasswordHasher, issuer *TokenIssuer, uploader ImageUploader) *Service {
	return &Service{store: store, hasher: hasher, issuer: issuer, uploader: uploader}
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (account.Identity, error) {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Password = strings.TrimSpace(in.Password)
	in.DisplayName = strings.TrimSpace(in.DisplayName)

	if in.Username == "" || in.Email == "" || in.Password == "" || in.DisplayName == "" {
		return account.Identity{}, apperr.New(apperr.KindValidation, "all fields are required")
	}
	if strings.TrimSpace(in.AvatarSource) == "" {
		return account.Identity{}, apperr.New(apperr.KindValidation, "avatar image is required")
	}

	// Cheap duplicate check before touching object storage. The insert below
	// still catches races through the unique constraints.
	for _, identifier := range []string{in.Username, in.Email} {
		if _, err := s.store.FindByUsernameOrEmail(ctx, identifier); err == nil {
			return account.Identity{}, apperr.New(apperr.KindConflict, "username or email already exists")
		} else if !errors.Is(err, account.ErrNotFound) {
			return account.Identity{}, err
		}
	}

	avatarURL, err := s.uploader.UploadImage(ctx, in.AvatarSource)
	if err != nil {
		return account.Identity{}, apperr.Wrap(apperr.KindDependency, "failed to upload avatar", err)
	}

	var coverURL *string
	if strings.TrimSpace(in.CoverSource) != "" {
		uploaded, err := s.uploader.UploadImage(ctx, in.CoverSource)
		if err != nil {
			return account.Identity{}, apperr.Wrap(apperr.KindDependency, "failed to upload cover image", err)
		}
		coverURL = &uploaded
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return account.Identity{}, apperr.Wrap(apperr.KindInternal, "something went wrong", err)
	}

	created, err := s.store.Create(ctx, account.Account{
		Username:      in.Username,
		Email:         in.Email,
		DisplayName:   in.DisplayName,
		PasswordHash:  hash,
		AvatarURL:     &avatarURL,
		CoverImageURL: coverURL,
	})
	if err != nil {
		if errors.Is(err, account.ErrDuplicate) {
			return account.Identity{}, apperr.New(apperr.KindConflict, "username or email already exists")
		}
		return account.Identity{}, err
	}

	return created.Identity(), nil
}

func (s *Service) Login(ctx context.Context, identifier, password string) (LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	password = strings.TrimSpace(password)

	if identifier == "" || password == "" {
		return LoginResult{}, apperr.New(apperr.KindValidation, "username or email and password are required")
	}

	acc, err := s.store.FindByUsernameOrEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return LoginResult{}, apperr.New(apperr.KindNotFound, "account not found")
		}
		return LoginResult{}, err
	}

	if !s.hasher.Verify(password, acc.PasswordHash) {
		return LoginResult{}, apperr.New(apperr.KindAuth, "invalid credentials")
	}

	tokens, err := s.issueTokenPair(ctx, acc.ID)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{Identity: acc.Identity(), Tokens: tokens}, nil
}

// Refresh rotates the presented refresh token. The stored value is the source
// of truth: a verified token whose value no longer matches it has already
// been rotated or revoked, which is treated as a reuse signal and kills the
// live session outright.
func (s *Service) Refresh(ctx context.Context, presented string) (TokenPair, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return TokenPair{}, apperr.New(apperr.KindAuth, "missing refresh token")
	}

	claims, err := s.issuer.VerifyRefresh(presented)
	if err != nil {
		return TokenPair{}, apperr.Wrap(apperr.KindAuth, "invalid refresh token", err)
	}

	acc, err := s.store.FindByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return TokenPair{}, apperr.New(apperr.KindAuth, "invalid refresh token")
		}
		return TokenPair{}, err
	}

	if acc.RefreshToken == nil || *acc.RefreshToken != presented {
		// Token reuse: the presented value was already superseded, so someone
		// is replaying an old token. Revoke whatever session is live.
		_ = s.store.ClearRefreshToken(ctx, acc.ID)
		return TokenPair{}, apperr.New(apperr.KindAuth, "invalid refresh token")
	}

	newRefresh, err := s.issuer.IssueRefresh(acc.ID)
	if err != nil {
		return TokenPair{}, apperr.Wrap(apperr.KindInternal, "something went wrong", err)
	}

	rotated, err := s.store.RotateRefreshToken(ctx, acc.ID, presented, newRefresh, time.Now().UTC().Add(s.issuer.RefreshTTL()))
	if err != nil {
		return TokenPair{}, err
	}
	if !rotated {
		// Lost the rotation race to a concurrent refresh. The presented value
		// is spent either way.
		return TokenPair{}, apperr.New(apperr.KindAuth, "invalid refresh token")
	}

	access, err := s.issuer.IssueAccess(acc.ID)
	if err != nil {
		return TokenPair{}, apperr.Wrap(apperr.KindInternal, "something went wrong", err)
	}

	return TokenPair{AccessToken: access, RefreshToken: newRefresh}, nil
}

// Logout clears the stored refresh token. Logging out an already-logged-out
// account is not an error.
func (s *Service) Logout(ctx context.Context, accountID string) error {
	return s.store.ClearRefreshToken(ctx, accountID)
}

// ChangePassword replaces the password hash after verifying the old password.
// It also revokes the stored refresh token, so any other live session has to
// authenticate again with the new password.
func (s *Service) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	oldPassword = strings.TrimSpace(oldPassword)
	newPassword = strings.TrimSpace(newPassword)
	if oldPassword == "" || newPassword == "" {
		return apperr.New(apperr.KindValidation, "old and new password are required")
	}

	acc, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return apperr.New(apperr.KindAuth, "account not found")
		}
		return err
	}

	if !s.hasher.Verify(oldPassword, acc.PasswordHash) {
		return apperr.New(apperr.KindAuth, "invalid old password")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "something went wrong", err)
	}

	if err := s.store.UpdatePassword(ctx, accountID, hash); err != nil {
		return err
	}

	return s.store.ClearRefreshToken(ctx, accountID)
}

func (s *Service) issueTokenPair(ctx context.Context, accountID string) (TokenPair, error) {
	access, err := s.issuer.IssueAccess(accountID)
	if err != nil {
		return TokenPair{}, apperr.Wrap(apperr.KindInternal, "something went wrong", err)
	}

	refresh, err := s.issuer.IssueRefresh(accountID)
	if err != nil {
		return TokenPair{}, apperr.Wrap(apperr.KindInternal, "something went wrong", err)
	}

	if err := s.store.SetRefreshToken(ctx, accountID, refresh, time.Now().UTC().Add(s.issuer.RefreshTTL())); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
