package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	t.Run("Test Development", func(t *testing.T) {
		require.NoError(t, Init(Config{Development: true, Level: "debug"}))
		assert.NotNil(t, Log())
		assert.NotNil(t, S())
		assert.True(t, Log().Core().Enabled(-1))
	})

	t.Run("Test Production Level", func(t *testing.T) {
		require.NoError(t, Init(Config{Level: "WARN"}))
		assert.False(t, Log().Core().Enabled(0))
		assert.NotNil(t, Named("engine"))
	})

	t.Run("Test Bad Level", func(t *testing.T) {
		assert.Error(t, Init(Config{Level: "loud"}))
	})

	Sync()
}
