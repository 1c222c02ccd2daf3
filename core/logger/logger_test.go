package logger_test

import (
	"net/http/httptest"
	"testing"

	"idm-reconciler/core/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  logger.Config
	}{
		{"Debug console", logger.Config{Level: "debug", Format: "console"}},
		{"Info json", logger.Config{Level: "info", Format: "json"}},
		{"Warn", logger.Config{Level: "warn"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := logger.New(&tt.cfg)
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}

	t.Run("Warn disables info", func(t *testing.T) {
		l, err := logger.New(&logger.Config{Level: "warn"})
		require.NoError(t, err)
		assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
	})

	t.Run("Invalid level", func(t *testing.T) {
		_, err := logger.New(&logger.Config{Level: "loud"})
		assert.Error(t, err)
	})
}

func TestWithRequest(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		c.Locals("ray_id", "ray-1")
		logger.WithRequest(base, c, "Master", "admin").Info("hello")
		logger.WithRayID(base, c).Info("bare")
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	entries := logs.All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "ray-1", fields["ray_id"])
	assert.Equal(t, "Master", fields["domain"])
	assert.Equal(t, "admin", fields["user"])
	assert.NotContains(t, entries[1].ContextMap(), "domain")
}
