package auth_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"idm-reconciler/core/middleware/auth"
	"idm-reconciler/core/reqctx"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupApp(cfg auth.Config) *fiber.App {
	app := fiber.New()
	app.Use(auth.New(cfg))
	app.Get("/metrics", func(c *fiber.Ctx) error {
		return c.SendString("public")
	})
	app.Get("/whoami", func(c *fiber.Ctx) error {
		rc, err := reqctx.From(c.UserContext())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
		}
		return c.SendString(rc.Domain + "/" + rc.Username + "/" + rc.Locale.String())
	})
	return app
}

func TestNew(t *testing.T) {
	app := setupApp(auth.Config{ApiKey: "secret", Domain: "Master", Public: []string{"/metrics"}})

	tests := []struct {
		name    string
		path    string
		headers map[string]string
		status  int
		body    string
	}{
		{"Missing key", "/whoami", nil, 401, ""},
		{"Wrong key", "/whoami", map[string]string{auth.Header: "nope"}, 401, ""},
		{"Header key", "/whoami", map[string]string{auth.Header: "secret"}, 200, "Master/admin/en"},
		{"Bearer key", "/whoami", map[string]string{"Authorization": "Bearer secret", "Accept-Language": "it-IT"}, 200, "Master/admin/it-IT"},
		{"Public path", "/metrics", nil, 200, "public"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.body != "" {
				raw, _ := io.ReadAll(resp.Body)
				assert.Equal(t, tt.body, string(raw))
			}
		})
	}
}

func TestNew_NoKeyConfigured(t *testing.T) {
	app := setupApp(auth.Config{Domain: "Master", Username: "ops"})

	resp, err := app.Test(httptest.NewRequest("GET", "/whoami", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "Master/ops/en", string(raw))
}
