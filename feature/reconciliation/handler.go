package reconciliation

import (
	"bytes"
	"strconv"
	"strings"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/connid/csvstream"
	"idm-reconciler/core/logger"
	"idm-reconciler/core/provisioning"
	"idm-reconciler/core/reconcile"
	"idm-reconciler/core/server"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Header carrying the number of failed reports of a CSV push.
const HeaderFailures = "X-Push-Failures"

// Handler handles HTTP requests for reconciliation.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the reconciliation routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/reconciliation")
	group.Get("/status", h.HandleStatus)
	group.Post("/push", h.HandlePush)
	group.Post("/pull", h.HandlePull)
	group.Post("/pull/:resource/:anyType", h.HandlePullAll)
	group.Post("/stream/push", h.HandlePushStream)
	group.Post("/stream/pull", h.HandlePullStream)
	group.Post("/plan", h.HandlePlan)
}

func parseQuery(c *fiber.Ctx) (reconcile.ReconQuery, error) {
	var query reconcile.ReconQuery
	if err := c.QueryParser(&query); err != nil {
		return query, clienterr.New(clienterr.InvalidValues, err.Error())
	}
	return query, nil
}

// HandleStatus returns the reconciliation status of the query.
func (h *Handler) HandleStatus(c *fiber.Ctx) error {
	query, err := parseQuery(c)
	if err != nil {
		return server.Error(c, err)
	}
	status, err := h.service.Status(c.UserContext(), query)
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(status)
}

// HandlePush pushes the entity the query resolves to; the body is the push task.
func (h *Handler) HandlePush(c *fiber.Ctx) error {
	query, err := parseQuery(c)
	if err != nil {
		return server.Error(c, err)
	}
	task := provisioning.DefaultPushTask()
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&task); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}

	reports, err := h.service.Push(c.UserContext(), query, task)
	return h.reports(c, reports, err)
}

// HandlePull pulls the objects the query resolves to; the body is the pull task.
func (h *Handler) HandlePull(c *fiber.Ctx) error {
	query, err := parseQuery(c)
	if err != nil {
		return server.Error(c, err)
	}
	task, err := pullTask(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	reports, err := h.service.Pull(c.UserContext(), query, task)
	return h.reports(c, reports, err)
}

// HandlePullAll pulls every object of a provision.
func (h *Handler) HandlePullAll(c *fiber.Ctx) error {
	task, err := pullTask(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	reports, err := h.service.PullAll(c.UserContext(), c.Params("resource"), c.Params("anyType"), task)
	return h.reports(c, reports, err)
}

func pullTask(c *fiber.Ctx) (provisioning.PullTask, error) {
	task := provisioning.DefaultPullTask("/")
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&task); err != nil {
			return task, err
		}
	}
	return task, nil
}

// HandlePushStream writes entities as CSV. With ?object= the CSV is stored in the
// bucket and the reports are returned instead.
func (h *Handler) HandlePushStream(c *fiber.Ctx) error {
	req := StreamPushRequest{Task: provisioning.DefaultPushTask()}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if object := c.Query("object"); object != "" {
		reports, err := h.service.PushStreamToObject(c.UserContext(), req, object)
		return h.reports(c, reports, err)
	}

	var buf bytes.Buffer
	reports, err := h.service.PushStream(c.UserContext(), req, &buf)
	if err != nil {
		return server.Error(c, err)
	}
	failures := 0
	for _, r := range reports {
		if r.Status == provisioning.StatusFailure {
			failures++
		}
	}
	c.Set(HeaderFailures, strconv.Itoa(failures))
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	return c.Send(buf.Bytes())
}

// HandlePullStream imports the CSV body, or the bucket object named by ?object=.
// The stream layout and the task come from the query string.
func (h *Handler) HandlePullStream(c *fiber.Ctx) error {
	req := StreamPullRequest{
		AnyType: c.Query("anyType"),
		Spec: csvstream.Spec{
			KeyColumn:             c.Query("keyColumn"),
			IgnoreColumns:         splitList(c.Query("ignoreColumns")),
			ColumnSeparator:       c.Query("columnSeparator"),
			ArrayElementSeparator: c.Query("arrayElementSeparator"),
			QuoteChar:             c.Query("quoteChar"),
			EscapeChar:            c.Query("escapeChar"),
			NullValue:             c.Query("nullValue"),
			AllowComments:         c.QueryBool("allowComments"),
		},
		Task: provisioning.DefaultPullTask(c.Query("destinationRealm", "/")),
	}
	if v := c.Query("matchingRule"); v != "" {
		rule, err := provisioning.ParseMatchingRule(v)
		if err != nil {
			return server.Error(c, err)
		}
		req.Task.MatchingRule = rule
	}
	if v := c.Query("unmatchingRule"); v != "" {
		rule, err := provisioning.ParseUnmatchingRule(v)
		if err != nil {
			return server.Error(c, err)
		}
		req.Task.UnmatchingRule = rule
	}
	req.Task.Remediation = c.QueryBool("remediation")
	req.Task.DryRun = c.QueryBool("dryRun")
	req.Task.Actions = splitList(c.Query("actions"))

	if object := c.Query("object"); object != "" {
		reports, err := h.service.PullStreamFromObject(c.UserContext(), req, object)
		return h.reports(c, reports, err)
	}
	reports, err := h.service.PullStream(c.UserContext(), req, bytes.NewReader(c.Body()))
	return h.reports(c, reports, err)
}

// HandlePlan reconciles a whole provision. With ?confirm=true the planned actions
// are applied unless the request is a dry run.
func (h *Handler) HandlePlan(c *fiber.Ctx) error {
	var req PlanRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	run, err := h.service.Plan(c.UserContext(), req)
	if err != nil {
		return server.Error(c, err)
	}
	executed := 0
	if c.QueryBool("confirm") {
		if executed, err = h.service.Apply(c.UserContext(), run, req.Options(true)); err != nil {
			logger.WithRayID(h.service.logger, c).Warn("Reconciliation apply failed", zap.Error(err))
			return server.Error(c, err)
		}
	}
	return c.JSON(fiber.Map{"plan": run.Plan, "executed": executed})
}

// reports answers with the reports. A Reconciliation error only flags FAILURE
// reports, so those still come back with 200.
func (h *Handler) reports(c *fiber.Ctx, reports []provisioning.ProvisioningReport, err error) error {
	if err != nil && (reports == nil || !clienterr.Is(err, clienterr.Reconciliation)) {
		logger.WithRayID(h.service.logger, c).Warn("Provisioning failed", zap.Error(err))
		return server.Error(c, err)
	}
	if reports == nil {
		reports = []provisioning.ProvisioningReport{}
	}
	return c.JSON(reports)
}

func splitList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
