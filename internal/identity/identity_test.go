package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
)

var (
	service = NewService("test-signing-key", "test-issuer", "test-audience")
	admin   = domain.Actor{ID: "admin-1", Roles: []domain.Role{domain.RoleAdmin, domain.RoleVerifier}}
)

func Test_IssueAndVerifyActor(t *testing.T) {
	token, err := service.Issue(admin, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	actor, err := service.VerifyActor(token)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, actor.ID)
	assert.True(t, actor.IsAdmin())
	assert.True(t, actor.HasRole(domain.RoleVerifier))

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := service.ValidateToken("invalid-token-string")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Equal(t, "invalid token", dErrors.MessageOf(err))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := service.Issue(admin, -time.Hour)
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, "token has expired", dErrors.MessageOf(err))
}

func Test_ValidateToken_WrongKey(t *testing.T) {
	other := NewService("another-key", "test-issuer", "test-audience")
	token, err := other.Issue(admin, time.Hour)
	require.NoError(t, err)

	_, err = service.VerifyActor(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_WrongAudience(t *testing.T) {
	other := NewService("test-signing-key", "test-issuer", "someone-else")
	token, err := other.Issue(admin, time.Hour)
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
