package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/PromptPanel/internal/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testAdmin() models.PanelAdmin {
	return models.PanelAdmin{ID: "adm_1", Name: "Root", Email: "root@example.com", Role: models.AdminRoleSuperAdmin}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.NoError(t, CheckPassword(hash, "correct horse"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong horse"), ErrInvalidCredentials)
	assert.ErrorIs(t, CheckPassword("not-a-bcrypt-hash", "correct horse"), ErrInvalidCredentials)
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	issuer, err := NewTokenIssuer(testSecret, WithTTL(time.Hour), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	token, expires, err := issuer.Issue(testAdmin())
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expires)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "adm_1", claims.Subject)
	assert.Equal(t, models.AdminRoleSuperAdmin, claims.Role)
	assert.Equal(t, "root@example.com", claims.Email)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenIssuer_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	issuer, err := NewTokenIssuer(testSecret, WithTTL(time.Minute), WithClock(clock))
	require.NoError(t, err)

	token, _, err := issuer.Issue(testAdmin())
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenIssuer_ForeignSecret(t *testing.T) {
	mine, err := NewTokenIssuer(testSecret)
	require.NoError(t, err)
	theirs, err := NewTokenIssuer("another-secret-that-is-long-enough")
	require.NoError(t, err)

	token, _, err := theirs.Issue(testAdmin())
	require.NoError(t, err)
	_, err = mine.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RejectsOtherAlgorithms(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret)
	require.NoError(t, err)

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "adm_1",
		Issuer:    Issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = issuer.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = issuer.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokenIssuer_WeakSecret(t *testing.T) {
	_, err := NewTokenIssuer("short")
	assert.ErrorIs(t, err, ErrWeakSecret)
}
