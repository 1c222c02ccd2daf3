package resource

import (
	"strings"

	"idm-reconciler/core/connid"
	"idm-reconciler/core/logger"
	"idm-reconciler/core/model"
	"idm-reconciler/core/server"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for resources.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the resource routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/resources")
	group.Get("/", h.HandleList)
	group.Post("/", h.HandleCreate)
	group.Post("/check", h.HandleCheck)
	group.Get("/:key", h.HandleRead)
	group.Put("/:key", h.HandleUpdate)
	group.Delete("/:key", h.HandleDelete)

	objects := group.Group("/:key/:anyType")
	objects.Post("/syncToken", h.HandleSetSyncToken)
	objects.Delete("/syncToken", h.HandleRemoveSyncToken)
	objects.Get("/connObjects", h.HandleSearch)
	objects.Get("/connObjects/byAny/:anyKey", h.HandleReadByAny)
	objects.Get("/connObjects/byValue/:value", h.HandleReadByValue)
	objects.Get("/connObjectKeyValue/:anyKey", h.HandleConnObjectKeyValue)
}

// HandleList returns the resources visible to the caller.
func (h *Handler) HandleList(c *fiber.Ctx) error {
	list, err := h.service.List(c.UserContext())
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(list)
}

// HandleCreate stores the resource in the body.
func (h *Handler) HandleCreate(c *fiber.Ctx) error {
	var res model.ExternalResource
	if err := c.BodyParser(&res); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	created, err := h.service.Create(c.UserContext(), &res)
	if err != nil {
		logger.WithRayID(h.service.logger, c).Warn("Resource create failed", zap.Error(err))
		return server.Error(c, err)
	}
	c.Location("/resources/" + created.Key)
	return c.Status(fiber.StatusCreated).JSON(created)
}

// HandleRead returns one resource.
func (h *Handler) HandleRead(c *fiber.Ctx) error {
	res, err := h.service.Read(c.UserContext(), c.Params("key"))
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(res)
}

// HandleUpdate replaces a resource; the path key wins over the body.
func (h *Handler) HandleUpdate(c *fiber.Ctx) error {
	var res model.ExternalResource
	if err := c.BodyParser(&res); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	res.Key = c.Params("key")

	updated, err := h.service.Update(c.UserContext(), &res)
	if err != nil {
		logger.WithRayID(h.service.logger, c).Warn("Resource update failed", zap.Error(err))
		return server.Error(c, err)
	}
	return c.JSON(updated)
}

// HandleDelete removes a resource.
func (h *Handler) HandleDelete(c *fiber.Ctx) error {
	if _, err := h.service.Delete(c.UserContext(), c.Params("key")); err != nil {
		return server.Error(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleCheck tests the connector of the resource in the body.
func (h *Handler) HandleCheck(c *fiber.Ctx) error {
	var res model.ExternalResource
	if err := c.BodyParser(&res); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := h.service.Check(c.UserContext(), &res); err != nil {
		return server.Error(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleSetSyncToken stores the latest sync token.
func (h *Handler) HandleSetSyncToken(c *fiber.Ctx) error {
	token, err := h.service.SetLatestSyncToken(c.UserContext(), c.Params("key"), c.Params("anyType"))
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(fiber.Map{"syncToken": token})
}

// HandleRemoveSyncToken clears the sync token.
func (h *Handler) HandleRemoveSyncToken(c *fiber.Ctx) error {
	if err := h.service.RemoveSyncToken(c.UserContext(), c.Params("key"), c.Params("anyType")); err != nil {
		return server.Error(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleSearch pages through connector objects.
// Query: size, cookie, orderBy=field[ desc][,field...].
func (h *Handler) HandleSearch(c *fiber.Ctx) error {
	opts := SearchOptions{
		Size:    c.QueryInt("size", 0),
		Cookie:  c.Query("cookie"),
		OrderBy: parseOrderBy(c.Query("orderBy")),
	}
	page, err := h.service.SearchConnObjects(c.UserContext(), c.Params("key"), c.Params("anyType"), opts)
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(page)
}

// HandleReadByAny returns the object an any is bound to.
func (h *Handler) HandleReadByAny(c *fiber.Ctx) error {
	obj, err := h.service.ReadConnObjectByAny(c.UserContext(), c.Params("key"), c.Params("anyType"), c.Params("anyKey"))
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(obj)
}

// HandleReadByValue returns the object with the given connObjectKey value.
func (h *Handler) HandleReadByValue(c *fiber.Ctx) error {
	obj, err := h.service.ReadConnObjectByKeyValue(c.UserContext(), c.Params("key"), c.Params("anyType"), c.Params("value"))
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(obj)
}

// HandleConnObjectKeyValue returns the connObjectKey value of an any.
func (h *Handler) HandleConnObjectKeyValue(c *fiber.Ctx) error {
	value, err := h.service.ConnObjectKeyValue(c.UserContext(), c.Params("key"), c.Params("anyType"), c.Params("anyKey"))
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(fiber.Map{"value": value})
}

func parseOrderBy(raw string) []connid.SortKey {
	var keys []connid.SortKey
	for _, clause := range strings.Split(raw, ",") {
		fields := strings.Fields(clause)
		if len(fields) == 0 {
			continue
		}
		keys = append(keys, connid.SortKey{
			Field:     fields[0],
			Ascending: len(fields) < 2 || !strings.EqualFold(fields[1], "desc"),
		})
	}
	return keys
}
