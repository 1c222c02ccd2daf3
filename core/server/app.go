package server

import (
	"errors"

	"idm-reconciler/core/clienterr"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// NewApp creates the fiber application with the JSON error handler.
func NewApp(cfg Config, logger *zap.Logger) *fiber.App {
	limit := cfg.BodyLimitMB
	if limit <= 0 {
		limit = 16
	}
	return fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             limit * 1024 * 1024,
		ErrorHandler:          ErrorHandler(logger),
	})
}

// ErrorHandler renders errors escaping handlers with the status of their type.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}
		status := clienterr.Status(err)
		if status >= fiber.StatusInternalServerError {
			logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
		}
		return Error(c, err)
	}
}

// Error writes err as a JSON body. Typed errors carry their type and elements.
func Error(c *fiber.Ctx, err error) error {
	body := fiber.Map{"error": err.Error()}
	if ce, ok := clienterr.As(err); ok {
		body["type"] = ce.Type
		body["elements"] = ce.Elements
	}
	return c.Status(clienterr.Status(err)).JSON(body)
}
