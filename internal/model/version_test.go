package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionStatus(t *testing.T) {
	t.Parallel()

	t.Run("running wins", func(t *testing.T) {
		t.Parallel()
		v := Version{Running: true, PendingConflicts: []Conflict{{ID: "c1"}}}
		assert.Equal(t, VersionProcessing, v.Status())
	})

	t.Run("pending conflicts", func(t *testing.T) {
		t.Parallel()
		v := Version{PendingConflicts: []Conflict{{ID: "c1"}}}
		assert.Equal(t, VersionHasConflicts, v.Status())
	})

	t.Run("errors with no model means failed", func(t *testing.T) {
		t.Parallel()
		v := Version{ProcessingErrors: []string{"chunk 1: boom"}}
		assert.Equal(t, VersionFailed, v.Status())
	})

	t.Run("errors with a model still completed", func(t *testing.T) {
		t.Parallel()
		v := Version{
			ProcessingErrors: []string{"chunk 3: rate limited"},
			RequirementModel: []UseCase{{ID: "UC1", Name: "Login"}},
		}
		assert.Equal(t, VersionCompleted, v.Status())
	})

	t.Run("empty version completed", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, VersionCompleted, Version{}.Status())
	})
}

func TestProcessingStatusIsTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusExtracted.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
}
