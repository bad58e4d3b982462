package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 10 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("token invalid")
	ErrTokenMalformed = errors.New("token malformed")
)

// TokenClaims is what verification yields back to callers.
type TokenClaims struct {
	AccountID string
	ExpiresAt time.Time
}

// TokenIssuer mints and verifies the two token classes. Each class has its
// own signing secret, so compromise of one cannot forge the other.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenIssuer(accessSecret, refreshSecret string) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
	}
}

func (t *TokenIssuer) WithTTLs(accessTTL, refreshTTL time.Duration) *TokenIssuer {
	if accessTTL > 0 {
		t.accessTTL = accessTTL
	}
	if refreshTTL > 0 {
		t.refreshTTL = refreshTTL
	}
	return t
}

func (t *TokenIssuer) AccessTTL() time.Duration  { return t.accessTTL }
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }

func (t *TokenIssuer) IssueAccess(accountID string) (string, error) {
	return sign(accountID, tokenTypeAccess, t.accessSecret, t.accessTTL)
}

func (t *TokenIssuer) IssueRefresh(accountID string) (string, error) {
	return sign(accountID, tokenTypeRefresh, t.refreshSecret, t.refreshTTL)
}

func (t *TokenIssuer) VerifyAccess(token string) (TokenClaims, error) {
	return verify(token, tokenTypeAccess, t.accessSecret)
}

func (t *TokenIssuer) VerifyRefresh(token string) (TokenClaims, error) {
	return verify(token, tokenTypeRefresh, t.refreshSecret)
}

func sign(accountID, tokenType string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	// jti keeps two tokens minted within the same second from colliding,
	// which matters for rotation: the new refresh value must differ.
	claims := jwt.MapClaims{
		"sub": accountID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"typ": tokenType,
		"jti": uuid.NewString(),
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}

	return encoded, nil
}

func verify(token, tokenType string, secret []byte) (TokenClaims, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return TokenClaims{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return TokenClaims{}, ErrTokenMalformed
		default:
			return TokenClaims{}, ErrTokenInvalid
		}
	}
	if !parsed.Valid {
		return TokenClaims{}, ErrTokenInvalid
	}
	if claimed, _ := claims["typ"].(string); claimed != tokenType {
		return TokenClaims{}, ErrTokenInvalid
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return TokenClaims{}, ErrTokenInvalid
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return TokenClaims{}, ErrTokenInvalid
	}

	return TokenClaims{AccountID: sub, ExpiresAt: exp.Time}, nil
}
