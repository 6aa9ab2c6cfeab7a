package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vectoradmin/internal/config"
	"github.com/fyrsmithlabs/vectoradmin/internal/logging"
)

func TestNew_JSON(t *testing.T) {
	logger, err := logging.New(config.LoggingConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
	logger.Info("hello")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := logging.New(config.LoggingConfig{Level: "verbose", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}
