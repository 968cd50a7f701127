package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/internal/domain"
)

func TestManager_IssueAndParse(t *testing.T) {
	m := NewManager("secret", time.Hour)
	user := &domain.User{ID: "u-1", Role: domain.RoleDriver}

	token, issued, err := m.Issue(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, issued.ID, claims.ID)
	assert.Equal(t, Issuer, claims.Issuer)

	actor, err := claims.Actor()
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{ID: "u-1", Role: domain.RoleDriver}, actor)
}

func TestManager_RejectsWrongSecret(t *testing.T) {
	token, _, err := NewManager("one", time.Hour).Issue(&domain.User{ID: "u-1", Role: domain.RolePassenger})
	require.NoError(t, err)

	_, err = NewManager("two", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_RejectsExpired(t *testing.T) {
	m := NewManager("secret", time.Minute)
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err := m.Issue(&domain.User{ID: "u-1", Role: domain.RolePassenger})
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_RejectsOtherAlgorithms(t *testing.T) {
	claims := &Claims{
		UserID: "u-1",
		Role:   "driver",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "t-1",
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewManager("secret", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestClaims_ActorUnknownRole(t *testing.T) {
	c := &Claims{UserID: "u-1", Role: "admin"}
	_, err := c.Actor()
	assert.ErrorIs(t, err, domain.ErrUnknownRole)
}
