package reference

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/repository/memory"
	apperrors "github.com/jwalitptl/citizen-registry/pkg/errors"
)

func TestChecker(t *testing.T) {
	ctx := context.Background()
	institutions := memory.NewInstitutionRepository()
	checker := NewChecker(memory.NewCitizenRepository(), institutions, memory.NewStaffRepository(), DefaultConfig())

	inst := &model.Institution{Name: "City Hall", Type: model.InstitutionCityHall}
	require.NoError(t, institutions.Create(ctx, inst))

	t.Run("existing record", func(t *testing.T) {
		assert.NoError(t, checker.Require(ctx, Institution, "institution", inst.ID))
	})

	t.Run("missing record", func(t *testing.T) {
		err := checker.Require(ctx, Staff, "staff", uuid.New())
		require.Error(t, err)
		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.KindValidation, appErr.Kind)
		assert.Equal(t, "staff", appErr.Field)
	})

	t.Run("forget drops the cached entry", func(t *testing.T) {
		require.NoError(t, institutions.Delete(ctx, inst.ID))

		ok, err := checker.Exists(ctx, Institution, inst.ID)
		require.NoError(t, err)
		assert.True(t, ok, "positive lookup is served from cache")

		checker.Forget(Institution, inst.ID)
		ok, err = checker.Exists(ctx, Institution, inst.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("entries expire", func(t *testing.T) {
		short := NewChecker(memory.NewCitizenRepository(), institutions, memory.NewStaffRepository(),
			Config{TTL: 10 * time.Millisecond, CleanupInterval: time.Minute})
		id := uuid.New()
		short.Remember(Citizen, id)

		ok, _ := short.Exists(ctx, Citizen, id)
		assert.True(t, ok)

		time.Sleep(20 * time.Millisecond)
		ok, _ = short.Exists(ctx, Citizen, id)
		assert.False(t, ok)
	})
}
