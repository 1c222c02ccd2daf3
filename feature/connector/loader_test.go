package connector

import (
	"testing"

	"idm-reconciler/core/engine/enginetest"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestLoader(t *testing.T) {
	feature := NewFeature(enginetest.New(t).Core)

	assert.Equal(t, "connector", feature.Name())
	assert.True(t, feature.IsEnabled())
	assert.NotNil(t, feature.Service())

	app := fiber.New()
	assert.NoError(t, feature.Load(app))
}
