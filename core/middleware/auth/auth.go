package auth

import (
	"crypto/subtle"
	"strings"

	"idm-reconciler/core/reqctx"

	"github.com/gofiber/fiber/v2"
)

// Header carries the API key.
const Header = "X-API-Key"

// Config configures the API key middleware.
type Config struct {
	// ApiKey is the expected key. Empty disables the check.
	ApiKey string
	// Domain and Username identify the caller bound to authenticated requests.
	Domain   string
	Username string
	// Public lists path prefixes served without authentication.
	Public []string
}

// New returns a middleware validating the API key and binding the caller to the
// request context. The caller owns every entitlement on the root realm.
func New(cfg Config) fiber.Handler {
	if cfg.Username == "" {
		cfg.Username = "admin"
	}
	return func(c *fiber.Ctx) error {
		for _, p := range cfg.Public {
			if strings.HasPrefix(c.Path(), p) {
				return c.Next()
			}
		}

		if cfg.ApiKey != "" && !validKey(keyOf(c), cfg.ApiKey) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or missing API key"})
		}

		rc := reqctx.New(cfg.Domain, cfg.Username, reqctx.ParseLocale(c.Get(fiber.HeaderAcceptLanguage))).
			Grant(reqctx.AnyEntitlement, reqctx.RootRealm)
		ctx, release := reqctx.Acquire(c.UserContext(), rc)
		defer release()

		c.SetUserContext(ctx)
		return c.Next()
	}
}

func keyOf(c *fiber.Ctx) string {
	if key := c.Get(Header); key != "" {
		return key
	}
	return strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
}

func validKey(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
