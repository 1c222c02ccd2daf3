package remediation

import (
	"idm-reconciler/core/logger"
	"idm-reconciler/core/server"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for remediations.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the remediation routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/remediations")
	group.Get("/", h.HandleList)
	group.Get("/:key", h.HandleRead)
	group.Delete("/:key", h.HandleDelete)
	group.Post("/:key/remedy", h.HandleRemedy)
}

// HandleList returns a page of remediations.
func (h *Handler) HandleList(c *fiber.Ctx) error {
	page, err := h.service.List(c.UserContext(), c.QueryInt("page", 1), c.QueryInt("size", 25))
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(page)
}

// HandleRead returns one remediation.
func (h *Handler) HandleRead(c *fiber.Ctx) error {
	r, err := h.service.Read(c.UserContext(), c.Params("key"))
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(r)
}

// HandleDelete drops a remediation.
func (h *Handler) HandleDelete(c *fiber.Ctx) error {
	if _, err := h.service.Delete(c.UserContext(), c.Params("key")); err != nil {
		return server.Error(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleRemedy replays a remediation and returns the resulting entity.
func (h *Handler) HandleRemedy(c *fiber.Ctx) error {
	entity, err := h.service.Remedy(c.UserContext(), c.Params("key"))
	if err != nil {
		logger.WithRayID(h.service.logger, c).Warn("Remedy failed", zap.String("remediation", c.Params("key")), zap.Error(err))
		return server.Error(c, err)
	}
	return c.JSON(entity)
}
