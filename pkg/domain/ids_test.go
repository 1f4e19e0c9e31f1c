package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "curaledger/pkg/domain-errors"
)

func TestParseCaseID(t *testing.T) {
	t.Run("accepts counter format", func(t *testing.T) {
		id, err := ParseCaseID(" CASE0001 ")
		require.NoError(t, err)
		assert.Equal(t, CaseID("CASE0001"), id)
	})

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"too long", strings.Repeat("a", 33)},
		{"path traversal", "../CASE1"},
		{"sql meta", "CASE'1"},
	}
	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, err := ParseCaseID(tt.input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestFormatCaseNumber(t *testing.T) {
	assert.Equal(t, CaseID("CASE0001"), FormatCaseNumber(1))
	assert.Equal(t, CaseID("CASE0042"), FormatCaseNumber(42))
	assert.Equal(t, CaseID("CASE12345"), FormatCaseNumber(12345))
}

func TestParseAssetID(t *testing.T) {
	id, err := ParseAssetID("")
	require.NoError(t, err)
	assert.True(t, id.IsNative())

	id, err = ParseAssetID("NATIVE")
	require.NoError(t, err)
	assert.Equal(t, NativeAsset, id)

	id, err = ParseAssetID("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	require.NoError(t, err)
	assert.False(t, id.IsNative())

	_, err = ParseAssetID("usdc token")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestParseActorID(t *testing.T) {
	_, err := ParseActorID("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = ParseActorID("verifier one")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	id, err := ParseActorID("verifier-1")
	require.NoError(t, err)
	assert.Equal(t, ActorID("verifier-1"), id)
}

func TestActorRoles(t *testing.T) {
	admin := Actor{ID: "ops", Roles: []Role{RoleVerifier, RoleAdmin}}
	assert.True(t, admin.IsAdmin())
	assert.True(t, admin.HasRole(RoleVerifier))
	assert.False(t, admin.HasRole(RoleDonor))
	assert.True(t, Actor{}.IsZero())
}
