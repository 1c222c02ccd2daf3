package integrity

import (
	"testing"

	"idm-reconciler/core/engine/enginetest"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestLoader(t *testing.T) {
	f := enginetest.New(t)
	feature := NewFeature(f.Core, f.DB)

	assert.Equal(t, "integrity", feature.Name())
	assert.True(t, feature.IsEnabled())
	assert.NotNil(t, feature.Service())

	app := fiber.New()
	assert.NoError(t, feature.Load(app))
}
