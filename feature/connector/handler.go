package connector

import (
	"idm-reconciler/core/logger"
	"idm-reconciler/core/model"
	"idm-reconciler/core/server"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for connectors.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the connector routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/connectors")
	group.Get("/", h.HandleList)
	group.Post("/", h.HandleCreate)
	group.Get("/bundles", h.HandleBundles)
	group.Post("/check", h.HandleCheck)
	group.Get("/check", h.HandleCheckAll)
	group.Post("/reload", h.HandleReload)
	group.Get("/byResource/:resource", h.HandleReadByResource)
	group.Get("/:key", h.HandleRead)
	group.Put("/:key", h.HandleUpdate)
	group.Delete("/:key", h.HandleDelete)
	group.Get("/:key/schema", h.HandleSchema)
}

// HandleList returns the connectors visible to the caller.
func (h *Handler) HandleList(c *fiber.Ctx) error {
	list, err := h.service.List(c.UserContext())
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(list)
}

// HandleBundles returns the available bundles.
func (h *Handler) HandleBundles(c *fiber.Ctx) error {
	bundles, err := h.service.Bundles(c.UserContext())
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(bundles)
}

// HandleCreate stores the connector in the body.
func (h *Handler) HandleCreate(c *fiber.Ctx) error {
	var ci model.ConnInstance
	if err := c.BodyParser(&ci); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	created, err := h.service.Create(c.UserContext(), &ci)
	if err != nil {
		logger.WithRayID(h.service.logger, c).Warn("Connector create failed", zap.Error(err))
		return server.Error(c, err)
	}
	c.Location("/connectors/" + created.Key)
	return c.Status(fiber.StatusCreated).JSON(created)
}

// HandleRead returns one connector.
func (h *Handler) HandleRead(c *fiber.Ctx) error {
	ci, err := h.service.Read(c.UserContext(), c.Params("key"))
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(ci)
}

// HandleReadByResource returns the connector of a resource.
func (h *Handler) HandleReadByResource(c *fiber.Ctx) error {
	ci, err := h.service.ReadByResource(c.UserContext(), c.Params("resource"))
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(ci)
}

// HandleUpdate replaces a connector; the path key wins over the body.
func (h *Handler) HandleUpdate(c *fiber.Ctx) error {
	var ci model.ConnInstance
	if err := c.BodyParser(&ci); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	ci.Key = c.Params("key")

	updated, err := h.service.Update(c.UserContext(), &ci)
	if err != nil {
		logger.WithRayID(h.service.logger, c).Warn("Connector update failed", zap.Error(err))
		return server.Error(c, err)
	}
	return c.JSON(updated)
}

// HandleDelete removes a connector.
func (h *Handler) HandleDelete(c *fiber.Ctx) error {
	if _, err := h.service.Delete(c.UserContext(), c.Params("key")); err != nil {
		return server.Error(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleCheck tests the connector in the body without storing it.
func (h *Handler) HandleCheck(c *fiber.Ctx) error {
	var ci model.ConnInstance
	if err := c.BodyParser(&ci); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := h.service.Check(c.UserContext(), &ci); err != nil {
		return server.Error(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleCheckAll tests every visible connector.
func (h *Handler) HandleCheckAll(c *fiber.Ctx) error {
	results, err := h.service.CheckAll(c.UserContext())
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(results)
}

// HandleReload drops the cached connectors.
func (h *Handler) HandleReload(c *fiber.Ctx) error {
	n, err := h.service.Reload(c.UserContext())
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(fiber.Map{"dropped": n})
}

// HandleSchema lists the object classes of a connector.
func (h *Handler) HandleSchema(c *fiber.Ctx) error {
	infos, err := h.service.Schema(c.UserContext(), c.Params("key"))
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(infos)
}
