// Package api serves the dashboard's JSON routes.
package api

import (
	"context"
	"net/http"
	"strconv"

	"labjobs/internal/errors"
	"labjobs/internal/models"
	"labjobs/internal/query"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type QueryService interface {
	ActivePostings(ctx context.Context) ([]models.Posting, error)
	NewPostings(ctx context.Context, windowDays int) ([]models.Posting, error)
	RemovedPostings(ctx context.Context, windowDays int) ([]models.Posting, error)
	HistorySeries(ctx context.Context) ([]models.HistoryRecord, error)
	CountsByField(ctx context.Context, field string) ([]models.FieldCount, error)
	Sources(ctx context.Context) ([]models.Source, error)
	Trends(ctx context.Context) ([]models.TrendRecord, error)
}

// SyncStatus reports whether a sync cycle is in progress.
type SyncStatus interface {
	Running() bool
}

type APIHandler struct {
	queries QueryService
	sync    SyncStatus
	logger  *zap.Logger
}

func SetupRoutes(r *gin.Engine, queries QueryService, sync SyncStatus, logger *zap.Logger) *APIHandler {
	handler := &APIHandler{
		queries: queries,
		sync:    sync,
		logger:  logger,
	}

	r.GET("/health", handler.Health)

	api := r.Group("/api")
	{
		api.GET("/labs", handler.GetLabs)
		api.GET("/jobs", handler.GetJobs)
		api.GET("/new-jobs", handler.GetNewJobs)
		api.GET("/removed-jobs", handler.GetRemovedJobs)
		api.GET("/history", handler.GetHistory)
		api.GET("/trends", handler.GetTrends)
		api.GET("/locations", handler.countsBy("location"))
		api.GET("/teams", handler.countsBy("team"))
	}

	return handler
}

func (h *APIHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "syncing": h.sync.Running()})
}

func (h *APIHandler) GetLabs(c *gin.Context) {
	labs, err := h.queries.Sources(c.Request.Context())
	h.respond(c, labs, err)
}

func (h *APIHandler) GetJobs(c *gin.Context) {
	jobs, err := h.queries.ActivePostings(c.Request.Context())
	h.respond(c, jobs, err)
}

func (h *APIHandler) GetNewJobs(c *gin.Context) {
	days, err := windowDays(c, query.DefaultNewWindowDays)
	if err != nil {
		h.fail(c, err)
		return
	}
	jobs, err := h.queries.NewPostings(c.Request.Context(), days)
	h.respond(c, jobs, err)
}

func (h *APIHandler) GetRemovedJobs(c *gin.Context) {
	days, err := windowDays(c, query.DefaultRemovedWindowDays)
	if err != nil {
		h.fail(c, err)
		return
	}
	jobs, err := h.queries.RemovedPostings(c.Request.Context(), days)
	h.respond(c, jobs, err)
}

func (h *APIHandler) GetHistory(c *gin.Context) {
	history, err := h.queries.HistorySeries(c.Request.Context())
	h.respond(c, history, err)
}

func (h *APIHandler) GetTrends(c *gin.Context) {
	trends, err := h.queries.Trends(c.Request.Context())
	h.respond(c, trends, err)
}

func (h *APIHandler) countsBy(field string) gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := h.queries.CountsByField(c.Request.Context(), field)
		h.respond(c, counts, err)
	}
}

func (h *APIHandler) respond(c *gin.Context, body any, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *APIHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{
		"error": gin.H{
			"type":    errors.TypeOf(err),
			"message": message(err),
		},
	})
}

func statusFor(err error) int {
	switch errors.TypeOf(err) {
	case errors.ErrTypeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrTypeNotFound:
		return http.StatusNotFound
	case errors.ErrTypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// message hides wrapped causes of server-side failures from clients.
func message(err error) string {
	var de *errors.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

func windowDays(c *gin.Context, fallback int) (int, error) {
	raw, ok := c.GetQuery("days")
	if !ok || raw == "" {
		return fallback, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.InvalidInput("days must be an integer", err)
	}
	return days, nil
}
