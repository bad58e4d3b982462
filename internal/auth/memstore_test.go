package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"profilehub/internal/account"
)

// memStore is an in-memory account.Store. RotateRefreshToken holds the lock
// across compare and swap, matching the conditional UPDATE the Postgres
// repository runs.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*account.Account
	nextID   int
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[string]*account.Account)}
}

func (m *memStore) Create(_ context.Context, acc account.Account) (account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.accounts {
		if existing.Username == acc.Username || existing.Email == acc.Email {
			return account.Account{}, account.ErrDuplicate
		}
	}

	m.nextID++
	acc.ID = "acc-" + strconv.Itoa(m.nextID)
	acc.CreatedAt = time.Now().UTC()
	acc.UpdatedAt = acc.CreatedAt
	stored := acc
	m.accounts[acc.ID] = &stored

	return acc, nil
}

func (m *memStore) FindByID(_ context.Context, id string) (account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return *acc, nil
}

func (m *memStore) FindByUsernameOrEmail(_ context.Context, identifier string) (account.Account, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, acc := range m.accounts {
		if acc.Username == identifier || acc.Email == identifier {
			return *acc, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (m *memStore) SetRefreshToken(_ context.Context, id, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	acc.RefreshToken = &token
	acc.RefreshExpiresAt = &expiresAt
	return nil
}

func (m *memStore) RotateRefreshToken(_ context.Context, id, current, next string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return false, nil
	}
	if acc.RefreshToken == nil || *acc.RefreshToken != current {
		return false, nil
	}
	acc.RefreshToken = &next
	acc.RefreshExpiresAt = &expiresAt
	return true, nil
}

func (m *memStore) ClearRefreshToken(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acc, ok := m.accounts[id]; ok {
		acc.RefreshToken = nil
		acc.RefreshExpiresAt = nil
	}
	return nil
}

func (m *memStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	acc.PasswordHash = passwordHash
	return nil
}

func (m *memStore) UpdateDetails(_ context.Context, id string, displayName, username *string) (account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	if username != nil {
		for otherID, other := range m.accounts {
			if otherID != id && other.Username == *username {
				return account.Account{}, account.ErrDuplicate
			}
		}
		acc.Username = *username
	}
	if displayName != nil {
		acc.DisplayName = *displayName
	}
	return *acc, nil
}

func (m *memStore) SetAvatarURL(_ context.Context, id string, url *string) (account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	acc.AvatarURL = url
	return *acc, nil
}

func (m *memStore) SetCoverImageURL(_ context.Context, id string, url *string) (account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	acc.CoverImageURL = url
	return *acc, nil
}

// fakeUploader returns deterministic URLs and can be told to fail.
type fakeUploader struct {
	mu      sync.Mutex
	fail    error
	uploads int
}

func (f *fakeUploader) UploadImage(_ context.Context, imageSource string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail != nil {
		return "", f.fail
	}
	f.uploads++
	return "https://assets.example.com/img-" + strconv.Itoa(f.uploads) + ".png", nil
}

func (f *fakeUploader) DeleteImage(_ context.Context, publicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail
}

var errUploadDown = errors.New("object storage unavailable")
