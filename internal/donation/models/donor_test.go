package models

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
)

func TestApplyContribution(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("repeat donations to one case are listed once", func(t *testing.T) {
		d := NewDonor("donor-1", now)
		require.NoError(t, d.ApplyContribution("CASE0001", 100, 20, now))
		require.NoError(t, d.ApplyContribution("CASE0001", 50, 20, now))
		require.NoError(t, d.ApplyContribution("CASE0002", 5, 20, now))
		assert.Equal(t, uint64(155), d.TotalDonated)
		assert.Len(t, d.Cases, 2)
	})

	t.Run("full case list still counts the contribution", func(t *testing.T) {
		d := NewDonor("donor-1", now)
		require.NoError(t, d.ApplyContribution("CASE0001", 10, 1, now))
		err := d.ApplyContribution("CASE0002", 10, 1, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeCapacityExceeded))
		assert.Equal(t, uint64(20), d.TotalDonated)
		assert.Equal(t, []domain.CaseID{"CASE0001"}, d.Cases)
	})

	t.Run("listed case is accepted when the list is full", func(t *testing.T) {
		d := NewDonor("donor-1", now)
		require.NoError(t, d.ApplyContribution("CASE0001", 10, 1, now))
		require.NoError(t, d.ApplyContribution("CASE0001", 5, 1, now))
		assert.Equal(t, uint64(15), d.TotalDonated)
	})

	t.Run("overflow", func(t *testing.T) {
		d := NewDonor("donor-1", now)
		d.TotalDonated = math.MaxUint64
		err := d.ApplyContribution("CASE0001", 1, 20, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeOverflow))
	})
}

func TestRecognize(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	d := NewDonor("donor-1", now)
	require.NoError(t, d.ApplyContribution("CASE0001", 10, 20, now))

	_, err := d.Recognize("CASE0002", "Gold", "admin", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	r, err := d.Recognize("CASE0001", "Gold", "admin", now)
	require.NoError(t, err)
	assert.Equal(t, "Gold", r.Label)

	_, err = d.Recognize("CASE0001", "Platinum", "admin", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestNormalizeLabel(t *testing.T) {
	label, err := NormalizeLabel("  Founding donor ")
	require.NoError(t, err)
	assert.Equal(t, "Founding donor", label)

	_, err = NormalizeLabel("   ")
	assert.Error(t, err)

	_, err = NormalizeLabel(strings.Repeat("é", 50))
	assert.NoError(t, err)

	_, err = NormalizeLabel(strings.Repeat("x", 51))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
