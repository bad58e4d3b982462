package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIssuer() *TokenIssuer {
	return NewTokenIssuer("access-secret", "refresh-secret")
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	issuer := testIssuer()

	token, err := issuer.IssueAccess("acc-1")
	require.NoError(t, err)

	claims, err := issuer.VerifyAccess(token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.AccountID)
	assert.WithinDuration(t, time.Now().Add(issuer.AccessTTL()), claims.ExpiresAt, 5*time.Second)
}

func TestIssueAndVerifyRefreshToken(t *testing.T) {
	issuer := testIssuer()

	token, err := issuer.IssueRefresh("acc-1")
	require.NoError(t, err)

	claims, err := issuer.VerifyRefresh(token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.AccountID)
}

func TestTokenClassesDoNotCrossVerify(t *testing.T) {
	issuer := testIssuer()

	access, err := issuer.IssueAccess("acc-1")
	require.NoError(t, err)
	refresh, err := issuer.IssueRefresh("acc-1")
	require.NoError(t, err)

	_, err = issuer.VerifyRefresh(access)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = issuer.VerifyAccess(refresh)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyExpiredToken(t *testing.T) {
	issuer := testIssuer()
	issuer.accessTTL = -time.Minute

	token, err := issuer.IssueAccess("acc-1")
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyMalformedToken(t *testing.T) {
	issuer := testIssuer()

	for _, input := range []string{"", "garbage", "a.b", "a.b.c.d"} {
		_, err := issuer.VerifyAccess(input)
		assert.ErrorIs(t, err, ErrTokenMalformed, "input %q", input)
	}
}

func TestVerifyTokenSignedWithWrongSecret(t *testing.T) {
	issuer := testIssuer()
	forger := NewTokenIssuer("other-access", "other-refresh")

	forged, err := forger.IssueAccess("acc-1")
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(forged)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestIssuedTokensAreUnique(t *testing.T) {
	issuer := testIssuer()

	first, err := issuer.IssueRefresh("acc-1")
	require.NoError(t, err)
	second, err := issuer.IssueRefresh("acc-1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}
