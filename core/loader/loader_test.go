package loader_test

import (
	"errors"
	"net/http/httptest"
	"testing"

	"idm-reconciler/core/loader"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFeature struct {
	name    string
	enabled bool
	err     error
	loaded  bool
}

func (f *fakeFeature) Name() string    { return f.name }
func (f *fakeFeature) IsEnabled() bool { return f.enabled }
func (f *fakeFeature) Load(app fiber.Router) error {
	if f.err != nil {
		return f.err
	}
	f.loaded = true
	app.Get("/"+f.name, func(c *fiber.Ctx) error { return c.SendString(f.name) })
	return nil
}

func TestManager_LoadAll(t *testing.T) {
	on := &fakeFeature{name: "on", enabled: true}
	off := &fakeFeature{name: "off"}

	mgr := loader.NewManager(zap.NewNop())
	mgr.Register(on)
	mgr.Register(off)
	assert.Len(t, mgr.Features(), 2)

	app := fiber.New()
	require.NoError(t, mgr.LoadAll(app))
	assert.True(t, on.loaded)
	assert.False(t, off.loaded)

	resp, err := app.Test(httptest.NewRequest("GET", "/on", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/off", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestManager_LoadAllFailure(t *testing.T) {
	mgr := loader.NewManager(zap.NewNop())
	mgr.Register(&fakeFeature{name: "broken", enabled: true, err: errors.New("no database")})
	after := &fakeFeature{name: "after", enabled: true}
	mgr.Register(after)

	err := mgr.LoadAll(fiber.New())
	assert.ErrorContains(t, err, "failed to load feature broken: no database")
	assert.False(t, after.loaded)
}
