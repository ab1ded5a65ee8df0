package database

import (
	"testing"

	modelspkg "loop/internal/models"

	"github.com/stretchr/testify/require"
)

func TestPersistentModels_IncludesCounterTables(t *testing.T) {
	var hasStats, hasInteractions bool
	for _, model := range PersistentModels() {
		switch model.(type) {
		case *modelspkg.LoopStats:
			hasStats = true
		case *modelspkg.Interaction:
			hasInteractions = true
		}
	}
	require.True(t, hasStats, "PersistentModels should include LoopStats")
	require.True(t, hasInteractions, "PersistentModels should include Interaction")
}
