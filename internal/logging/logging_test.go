package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docvault/internal/logging"
)

func TestApplyDefaults(t *testing.T) {
	cfg := logging.Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg := logging.Config{Level: "debug", Format: "console"}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("bad format", func(t *testing.T) {
		cfg := logging.Config{Level: "info", Format: "xml"}
		assert.ErrorContains(t, cfg.Validate(), "unknown format")
	})

	t.Run("bad level", func(t *testing.T) {
		cfg := logging.Config{Level: "verbose", Format: "json"}
		assert.ErrorContains(t, cfg.Validate(), "invalid level")
	})
}

func TestNew(t *testing.T) {
	logger, err := logging.New(logging.Config{
		Level:  "debug",
		Format: "console",
		Fields: map[string]string{"service": "docvault"},
	})
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Debug("configured")

	_, err = logging.New(logging.Config{Level: "nope"})
	require.Error(t, err)
}
