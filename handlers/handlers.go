package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"signal-store/apperrors"
	"signal-store/executor"
	"signal-store/ingestion"
	"signal-store/store"
)

// Handlers serves the HTTP API over the store, the ingestion writer and the
// query executor. store is nil when the structured layer is disabled.
type Handlers struct {
	store    *store.Store
	writer   *ingestion.Writer
	executor *executor.Executor
	log      *zap.Logger
}

func New(st *store.Store, w *ingestion.Writer, ex *executor.Executor, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{store: st, writer: w, executor: ex, log: log.Named("http")}
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	{
		api.POST("/documents", h.IngestDocument)
		api.POST("/documents/batch", h.IngestDocuments)
		api.POST("/reconcile", h.Reconcile)
		api.POST("/query", h.Query)

		api.GET("/ratings/:ticker/latest", h.LatestRating)
		api.GET("/ratings/:ticker/history", h.RatingHistory)
		api.GET("/price-targets/:ticker/latest", h.LatestPriceTarget)
		api.GET("/price-targets/:ticker/history", h.PriceTargetHistory)
		api.GET("/metrics/:ticker/latest", h.LatestMetric)
		api.GET("/metrics/:ticker/history", h.MetricHistory)
		api.GET("/metrics/:ticker/compare", h.CompareMetric)
		api.GET("/screen", h.ScreenMetrics)
		api.GET("/entities", h.FindEntity)
		api.GET("/entities/:id/relationships", h.Relationships)
		api.GET("/stats", h.GetStats)
	}
}

func (h *Handlers) Health(c *gin.Context) {
	status := gin.H{"status": "ok", "structured_store": h.store != nil}
	if h.store != nil {
		sqlDB, err := h.store.DB().DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, status)
}

// fail writes err with the status its kind maps to.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsValidation(err):
		status = http.StatusBadRequest
	case apperrors.IsUnitMismatch(err):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrStoreDisabled):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	default:
		h.log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func notFound(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
}

// requireStore fails the request when the structured layer is disabled.
func (h *Handlers) requireStore(c *gin.Context) bool {
	if h.store == nil {
		h.fail(c, apperrors.ErrStoreDisabled)
		return false
	}
	return true
}

func queryLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.Validation("", "limit", "must be a non-negative integer")
	}
	return n, nil
}

func queryTime(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperrors.Validation("", name, "must be an RFC 3339 timestamp")
	}
	return ts, nil
}
