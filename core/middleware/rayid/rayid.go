package rayid

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Header carries the ray id on requests and responses.
const Header = "X-Ray-ID"

// LocalKey is the fiber local holding the ray id.
const LocalKey = "ray_id"

// New returns a middleware tagging every request with a ray id. An id sent by the
// client is kept so that calls can be traced across services.
func New() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(Header)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Locals(LocalKey, id)
		c.Set(Header, id)
		return c.Next()
	}
}
