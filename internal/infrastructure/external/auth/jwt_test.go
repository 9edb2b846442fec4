package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superheroes-club/luz-engine/internal/application/access"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestVerifier(t *testing.T, now time.Time) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{Secret: testSecret, Issuer: "club-id", Audience: "luz"})
	require.NoError(t, err)
	v.now = func() time.Time { return now }
	return v
}

func TestVerifier_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(t, now)

	token, err := v.Issue(Principal{UserID: "g-1", Email: "ana@example.com", Language: "en", Role: access.RoleAdmin},
		time.Hour, "club-id", "luz")
	require.NoError(t, err)

	p, err := v.VerifyHeader("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "g-1", p.UserID)
	assert.Equal(t, "ana@example.com", p.Email)
	assert.Equal(t, "en", p.Language)
	assert.Equal(t, access.RoleAdmin, p.Role)
	assert.True(t, p.Actor().IsAdmin())
}

func TestVerifier_Rejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(t, now)
	parent := Principal{UserID: "g-1", Role: access.RoleParent}

	expired, err := v.Issue(parent, time.Hour, "club-id", "luz")
	require.NoError(t, err)
	v.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
	v.now = func() time.Time { return now }

	wrongAud, err := v.Issue(parent, time.Hour, "club-id", "other")
	require.NoError(t, err)
	_, err = v.Verify(wrongAud)
	assert.ErrorIs(t, err, ErrInvalidToken)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "g-1",
			Issuer:    "club-id",
			Audience:  jwt.ClaimStrings{"luz"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte("another-secret-another-secret-xx"))
	require.NoError(t, err)
	_, err = v.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "g-1", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken)

	system, err := v.Issue(Principal{UserID: "g-1", Role: access.RoleSystem}, time.Hour, "club-id", "luz")
	require.NoError(t, err)
	_, err = v.Verify(system)
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, err = v.VerifyHeader("Basic abc")
	assert.ErrorIs(t, err, ErrMissingToken)
	_, err = v.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestNewVerifier_ShortSecret(t *testing.T) {
	_, err := NewVerifier(Config{Secret: "short"})
	assert.Error(t, err)
}
