package api

import (
	"context"
	"net/http"
	"time"

	"PriceAgent/internal/domain/models"
	"PriceAgent/internal/service/ratelimit"
	"PriceAgent/internal/usecase"
	xhttp "PriceAgent/pkg/http"
	xlogger "PriceAgent/pkg/logger"
	"PriceAgent/pkg/util"

	"github.com/labstack/echo/v4"
)

// Agent is the scheduler surface the handlers drive.
type Agent interface {
	TriggerTraining() bool
	Status(ctx context.Context) models.AgentStatus
	Subscribe() (<-chan models.AgentStatus, func())
}

// HealthChecker reports state store reachability.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// AgentEchoHandler serves the training trigger, status and reports.
type AgentEchoHandler struct {
	logger  *xlogger.Logger
	agent   Agent
	reports *usecase.ReportsUseCase
	health  HealthChecker
	rl      *ratelimit.Limiter
}

func NewAgentEchoHandler(logger *xlogger.Logger, agent Agent, reports *usecase.ReportsUseCase, health HealthChecker) *AgentEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &AgentEchoHandler{
		logger:  logger,
		agent:   agent,
		reports: reports,
		health:  health,
		rl:      ratelimit.PerMinute(6),
	}
}

func (h *AgentEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/train", h.Train)
	g.GET("/status", h.Status)
	g.GET("/results", h.Results)
	g.GET("/errors", h.Errors)
	g.GET("/history", h.History)
	g.GET("/indicators", h.Indicators)
	g.GET("/price", h.Price)
	e.GET("/healthz", h.Healthz)
	e.GET("/ws/status", h.StatusStream)
}

// Train starts a cycle in the background. 202 started, 409 already_training.
func (h *AgentEchoHandler) Train(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}
	if !h.agent.TriggerTraining() {
		return xhttp.DataResponse(c, http.StatusConflict, models.TrainResponse{Status: "already_training"})
	}
	h.logger.Info("training triggered", xlogger.String("remote", c.RealIP()))
	return xhttp.AcceptedResponse(c, models.TrainResponse{Status: "started"})
}

func (h *AgentEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.agent.Status(c.Request().Context()))
}

func (h *AgentEchoHandler) Results(c echo.Context) error {
	req := &models.ListRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.reports.Results(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("results usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("results unavailable").WithError(err))
	}
	if rows == nil {
		rows = []models.TrainingResult{}
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *AgentEchoHandler) Errors(c echo.Context) error {
	req := &models.ErrorLogsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.reports.Errors(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("errors usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("error logs unavailable").WithError(err))
	}
	if rows == nil {
		rows = []models.ErrorLogEntry{}
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *AgentEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	since := util.ParseTimeDefault(req.Since, time.Time{})
	res, err := h.reports.History(c.Request().Context(), req.Days, since)
	if err != nil {
		h.logger.Error("history usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("history unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AgentEchoHandler) Indicators(c echo.Context) error {
	res, err := h.reports.Indicators(c.Request().Context())
	if err != nil {
		h.logger.Error("indicators usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("indicators unavailable").WithError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, res)
}

func (h *AgentEchoHandler) Price(c echo.Context) error {
	res, err := h.reports.PriceSummary(c.Request().Context())
	if err != nil {
		h.logger.Error("price usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("price unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AgentEchoHandler) Healthz(c echo.Context) error {
	if err := h.health.Health(c.Request().Context()); err != nil {
		h.logger.Warn("health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("state store unreachable"))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}
