package integrity

import (
	"idm-reconciler/core/logger"
	"idm-reconciler/core/server"
	"idm-reconciler/feature/connector"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for integrity checks.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the integrity routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/integrity")
	group.Get("/", h.HandleIntegrityCheck)
	group.Get("/schema", h.HandleSchemaCheck)
	group.Get("/storage", h.HandleStorageCheck)
	group.Get("/connectors", h.HandleConnectorCheck)
}

// HandleIntegrityCheck runs every check. A failing check is reported in place
// instead of failing the whole request.
func (h *Handler) HandleIntegrityCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	l.Info("Triggering all integrity checks")

	ctx := c.UserContext()
	report := make(map[string]any)

	if schema, err := h.service.CheckSchema(ctx); err != nil {
		report["schema"] = fiber.Map{"status": "error", "error": err.Error()}
	} else {
		report["schema"] = schema
	}

	if st, err := h.service.CheckStorage(ctx); err != nil {
		report["storage"] = fiber.Map{"status": "error", "error": err.Error()}
	} else {
		report["storage"] = st
	}

	if results, err := h.service.CheckConnectors(ctx); err != nil {
		report["connectors"] = fiber.Map{"status": "error", "error": err.Error()}
	} else {
		report["connectors"] = results
	}

	return c.JSON(report)
}

// HandleSchemaCheck checks and, with ?fix=true, migrates the database schema.
func (h *Handler) HandleSchemaCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	if c.QueryBool("fix") {
		l.Info("Attempting to fix schema drift")
		report, err := h.service.FixSchema(c.UserContext())
		if err != nil {
			l.Error("Schema fix failed", zap.Error(err))
			return server.Error(c, err)
		}
		return c.JSON(fiber.Map{"status": "fixed", "fixed": report.Tables})
	}

	report, err := h.service.CheckSchema(c.UserContext())
	if err != nil {
		l.Error("Schema check failed", zap.Error(err))
		return server.Error(c, err)
	}
	if !report.Matched {
		l.Warn("Schema drift detected", zap.Int("tables", len(report.Tables)))
	}
	return c.JSON(report)
}

// HandleStorageCheck checks and, with ?fix=true, creates the stream bucket.
func (h *Handler) HandleStorageCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	if c.QueryBool("fix") {
		if err := h.service.FixStorage(c.UserContext()); err != nil {
			l.Error("Storage fix failed", zap.Error(err))
			return server.Error(c, err)
		}
	}

	report, err := h.service.CheckStorage(c.UserContext())
	if err != nil {
		l.Error("Storage check failed", zap.Error(err))
		return server.Error(c, err)
	}
	return c.JSON(report)
}

// HandleConnectorCheck tests every connector.
func (h *Handler) HandleConnectorCheck(c *fiber.Ctx) error {
	results, err := h.service.CheckConnectors(c.UserContext())
	if err != nil {
		return server.Error(c, err)
	}
	failed := 0
	for _, r := range results {
		if r.Status != connector.Reachable {
			failed++
		}
	}
	if failed > 0 {
		logger.WithRayID(h.service.logger, c).Warn("Unreachable connectors", zap.Int("failed", failed))
	}
	return c.JSON(results)
}
