package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"profilehub/internal/account"
	"profilehub/internal/apperr"
)

func newTestService() (*Service, *memStore, *fakeUploader) {
	store := newMemStore()
	uploader := &fakeUploader{}
	service := NewService(store, NewPasswordHasher(bcrypt.MinCost), testIssuer(), uploader)
	return service, store, uploader
}

func validRegisterInput() RegisterInput {
	return RegisterInput{
		Username:     "ana",
		Email:        "ana@x.com",
		Password:     "p@ss1234",
		DisplayName:  "Ana",
		AvatarSource: "data:image/png;base64,aGk=",
	}
}

func TestRegisterThenLogin(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	identity, err := service.Register(ctx, validRegisterInput())
	require.NoError(t, err)
	assert.Equal(t, "ana", identity.Username)
	assert.Equal(t, "ana@x.com", identity.Email)
	require.NotNil(t, identity.AvatarURL)

	for _, identifier := range []string{"ana", "ana@x.com"} {
		result, err := service.Login(ctx, identifier, "p@ss1234")
		require.NoError(t, err, "identifier %q", identifier)
		assert.NotEmpty(t, result.Tokens.AccessToken)
		assert.NotEmpty(t, result.Tokens.RefreshToken)
		assert.Equal(t, identity.ID, result.Identity.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*RegisterInput)
	}{
		{"blank username", func(in *RegisterInput) { in.Username = "   " }},
		{"blank email", func(in *RegisterInput) { in.Email = "" }},
		{"blank password", func(in *RegisterInput) { in.Password = "  " }},
		{"blank display name", func(in *RegisterInput) { in.DisplayName = "" }},
		{"missing avatar", func(in *RegisterInput) { in.AvatarSource = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validRegisterInput()
			tt.mutate(&in)

			_, err := service.Register(ctx, in)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestRegisterDuplicateConflicts(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	_, err := service.Register(ctx, validRegisterInput())
	require.NoError(t, err)

	sameUsername := validRegisterInput()
	sameUsername.Email = "other@x.com"
	_, err = service.Register(ctx, sameUsername)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	sameEmail := validRegisterInput()
	sameEmail.Username = "other"
	_, err = service.Register(ctx, sameEmail)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestRegisterAvatarUploadFailure(t *testing.T) {
	service, store, uploader := newTestService()
	uploader.fail = errUploadDown

	_, err := service.Register(context.Background(), validRegisterInput())
	assert.Equal(t, apperr.KindDependency, apperr.KindOf(err))

	_, err = store.FindByUsernameOrEmail(context.Background(), "ana")
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestRegisterCoverImageIsOptional(t *testing.T) {
	service, _, _ := newTestService()

	in := validRegisterInput()
	identity, err := service.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, identity.CoverImageURL)

	in.Username = "bob"
	in.Email = "bob@x.com"
	in.CoverSource = "data:image/png;base64,aGk="
	identity, err = service.Register(context.Background(), in)
	require.NoError(t, err)
	assert.NotNil(t, identity.CoverImageURL)
}

func TestLoginFailures(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	_, err := service.Register(ctx, validRegisterInput())
	require.NoError(t, err)

	_, err = service.Login(ctx, "", "p@ss1234")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = service.Login(ctx, "nobody", "p@ss1234")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = service.Login(ctx, "ana", "wrong-password")
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
}

func TestLoginReplacesStoredRefreshToken(t *testing.T) {
	service, store, _ := newTestService()
	ctx := context.Background()

	identity, err := service.Register(ctx, validRegisterInput())
	require.NoError(t, err)

	first, err := service.Login(ctx, "ana", "p@ss1234")
	require.NoError(t, err)
	second, err := service.Login(ctx, "ana", "p@ss1234")
	require.NoError(t, err)

	acc, err := store.FindByID(ctx, identity.ID)
	require.NoError(t, err)
	require.NotNil(t, acc.RefreshToken)
	assert.Equal(t, second.Tokens.RefreshToken, *acc.RefreshToken)

	// The first session's refresh token was overwritten and is now dead.
	_, err = service.Refresh(ctx, first.Tokens.RefreshToken)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
}

func TestRefreshRotatesExactlyOnce(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	_, err := service.Register(ctx, validRegisterInput())
	require.NoError(t, err)
	result, err := service.Login(ctx, "ana", "p@ss1234")
	require.NoError(t, err)

	rotated, err := service.Refresh(ctx, result.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEqual(t, result.Tokens.RefreshToken, rotated.RefreshToken)

	// The superseded value is permanently unusable.
	_, err = service.Refresh(ctx, result.Tokens.RefreshToken)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
}

func TestRefreshReuseRevokesLiveSession(t *testing.T) {
	service, store, _ := newTestService()
	ctx := context.Background()

	identity, err := service.Register(ctx, validRegisterInput())
	require.NoError(t, err)
	result, err := service.Login(ctx, "ana", "p@ss1234")
	require.NoError(t, err)

	rotated, err := service.Refresh(ctx, result.Tokens.RefreshToken)
	require.NoError(t, err)

	// Replaying the old value is a theft signal: it kills the rotated
	// session too.
	_, err = service.Refresh(ctx, result.Tokens.RefreshToken)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))

	acc, err := store.FindByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.Nil(t, acc.RefreshToken)

	_, err = service.Refresh(ctx, rotated.RefreshToken)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
}

func TestRefreshRejectsForgedAndEmptyTokens(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	_, err := service.Refresh(ctx, "")
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))

	forger := NewTokenIssuer("other-access", "other-refresh")
	forged, err := forger.IssueRefresh("acc-1")
	require.NoError(t, err)

	_, err = service.Refresh(ctx, forged)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
}

func TestLogoutKillsRefreshAndIsIdempotent(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	identity, err := service.Register(ctx, validRegisterInput())
	require.NoError(t, err)
	result, err := service.Login(ctx, "ana", "p@ss1234")
	require.NoError(t, err)

	require.NoError(t, service.Logout(ctx, identity.ID))
	require.NoError(t, service.Logout(ctx, identity.ID))

	_, err = service.Refresh(ctx, result.Tokens.RefreshToken)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
}

func TestChangePassword(t *testing.T) {
	service, store, _ := newTestService()
	ctx := context.Background()

	identity, err := service.Register(ctx, validRegisterInput())
	require.NoError(t, err)
	result, err := service.Login(ctx, "ana", "p@ss1234")
	require.NoError(t, err)

	before, err := store.FindByID(ctx, identity.ID)
	require.NoError(t, err)

	// Wrong old password: nothing changes.
	err = service.ChangePassword(ctx, identity.ID, "wrong", "newp@ss123")
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))

	after, err := store.FindByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, before.PasswordHash, after.PasswordHash)

	// Correct old password: hash replaced, session revoked.
	require.NoError(t, service.ChangePassword(ctx, identity.ID, "p@ss1234", "newp@ss123"))

	_, err = service.Login(ctx, "ana", "p@ss1234")
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
	_, err = service.Login(ctx, "ana", "newp@ss123")
	assert.NoError(t, err)

	_, err = service.Refresh(ctx, result.Tokens.RefreshToken)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	_, err := service.Register(ctx, validRegisterInput())
	require.NoError(t, err)
	result, err := service.Login(ctx, "ana", "p@ss1234")
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	outcomes := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, outcomes[slot] = service.Refresh(ctx, result.Tokens.RefreshToken)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range outcomes {
		if err == nil {
			winners++
		} else {
			assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent refresh may rotate")
}
