package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound  = errors.New("account not found")
	ErrDuplicate = errors.New("username or email already taken")
)

// Store is the credential store contract the session and profile services run
// against. RotateRefreshToken is the conditional variant required for safe
// refresh rotation: it succeeds only while the stored token still equals
// current, so concurrent rotations cannot both win.
type Store interface {
	Create(ctx context.Context, acc Account) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
	FindByUsernameOrEmail(ctx context.Context, identifier string) (Account, error)
	SetRefreshToken(ctx context.Context, id, token string, expiresAt time.Time) error
	RotateRefreshToken(ctx context.Context, id, current, next string, expiresAt time.Time) (bool, error)
	ClearRefreshToken(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateDetails(ctx context.Context, id string, displayName, username *string) (Account, error)
	SetAvatarURL(ctx context.Context, id string, url *string) (Account, error)
	SetCoverImageURL(ctx context.Context, id string, url *string) (Account, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const accountColumns = `id, username, email, display_name, password_hash, refresh_token, refresh_expires_at, avatar_url, cover_image_url, created_at, updated_at`

func scanAccount(row *sql.Row) (Account, error) {
	var acc Account
	err := row.Scan(
		&acc.ID, &acc.Username, &acc.Email, &acc.DisplayName, &acc.PasswordHash,
		&acc.RefreshToken, &acc.RefreshExpiresAt, &acc.AvatarURL, &acc.CoverImageURL,
		&acc.CreatedAt, &acc.UpdatedAt,
	)
	return acc, err
}

func (r *Repository) Create(ctx context.Context, acc Account) (Account, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Account{}, fmt.Errorf("generate account id: %w", err)
	}

	now := time.Now().UTC()
	acc.ID = id.String()
	acc.CreatedAt = now
	acc.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, email, display_name, password_hash, avatar_url, cover_image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, acc.ID, acc.Username, acc.Email, acc.DisplayName, acc.PasswordHash, acc.AvatarURL, acc.CoverImageURL, now)
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, ErrDuplicate
		}
		return Account{}, fmt.Errorf("insert account: %w", err)
	}

	return acc, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (Account, error) {
	acc, err := scanAccount(r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("query account by id: %w", err)
	}

	return acc, nil
}

func (r *Repository) FindByUsernameOrEmail(ctx context.Context, identifier string) (Account, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))

	acc, err := scanAccount(r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE username = $1 OR email = $1
	`, identifier))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("query account by identifier: %w", err)
	}

	return acc, nil
}

func (r *Repository) SetRefreshToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET refresh_token = $2, refresh_expires_at = $3, updated_at = $4
		WHERE id = $1
	`, id, token, expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}

	return requireRow(res)
}

// RotateRefreshToken swaps the stored refresh token for next only while the
// stored value still equals current. Returns false when another rotation or a
// logout got there first.
func (r *Repository) RotateRefreshToken(ctx context.Context, id, current, next string, expiresAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET refresh_token = $3, refresh_expires_at = $4, updated_at = $5
		WHERE id = $1 AND refresh_token = $2
	`, id, current, next, expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("rotate refresh token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rotate refresh token rows affected: %w", err)
	}

	return affected == 1, nil
}

func (r *Repository) ClearRefreshToken(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET refresh_token = NULL, refresh_expires_at = NULL, updated_at = $2
		WHERE id = $1
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}

	return nil
}

func (r *Repository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return requireRow(res)
}

func (r *Repository) UpdateDetails(ctx context.Context, id string, displayName, username *string) (Account, error) {
	acc, err := scanAccount(r.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET display_name = COALESCE($2, display_name),
		    username = COALESCE($3, username),
		    updated_at = $4
		WHERE id = $1
		RETURNING `+accountColumns+`
	`, id, displayName, username, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		if isUniqueViolation(err) {
			return Account{}, ErrDuplicate
		}
		return Account{}, fmt.Errorf("update account details: %w", err)
	}

	return acc, nil
}

func (r *Repository) SetAvatarURL(ctx context.Context, id string, url *string) (Account, error) {
	return r.setImage(ctx, id, "avatar_url", url)
}

func (r *Repository) SetCoverImageURL(ctx context.Context, id string, url *string) (Account, error) {
	return r.setImage(ctx, id, "cover_image_url", url)
}

func (r *Repository) setImage(ctx context.Context, id, column string, url *string) (Account, error) {
	acc, err := scanAccount(r.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET `+column+` = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+accountColumns+`
	`, id, url, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("update %s: %w", column, err)
	}

	return acc, nil
}

// ClearExpiredRefreshTokens nulls stored refresh tokens whose expiry has
// passed, in batches, so abandoned sessions do not linger in the table.
func (r *Repository) ClearExpiredRefreshTokens(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM accounts
			WHERE refresh_token IS NOT NULL AND refresh_expires_at < NOW()
			ORDER BY refresh_expires_at ASC
			LIMIT $1
		)
		UPDATE accounts a
		SET refresh_token = NULL, refresh_expires_at = NULL
		FROM stale
		WHERE a.id = stale.id
	`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("clear expired refresh tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired refresh tokens rows affected: %w", err)
	}

	return affected, nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
