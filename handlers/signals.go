package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"signal-store/apperrors"
	"signal-store/models"
	"signal-store/store"
)

// historyFilter reads the shared history parameters: since, until, source.
func historyFilter(c *gin.Context) (store.Filter, int, error) {
	var f store.Filter
	var err error
	if f.Since, err = queryTime(c, "since"); err != nil {
		return f, 0, err
	}
	if f.Until, err = queryTime(c, "until"); err != nil {
		return f, 0, err
	}
	f.SourceDocumentID = c.Query("source")
	limit, err := queryLimit(c)
	return f, limit, err
}

func (h *Handlers) LatestRating(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	r, found, err := h.store.LatestRating(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !found {
		notFound(c, "rating")
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handlers) RatingHistory(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	f, limit, err := historyFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	rows, err := h.store.RatingHistory(c.Request.Context(), c.Param("ticker"), f, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handlers) LatestPriceTarget(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	p, found, err := h.store.LatestPriceTarget(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !found {
		notFound(c, "price target")
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handlers) PriceTargetHistory(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	f, limit, err := historyFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	rows, err := h.store.PriceTargetHistory(c.Request.Context(), c.Param("ticker"), f, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handlers) LatestMetric(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	m, found, err := h.store.LatestMetric(c.Request.Context(), c.Param("ticker"),
		models.MetricType(c.Query("metric_type")), c.Query("period"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !found {
		notFound(c, "metric")
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handlers) MetricHistory(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	f, limit, err := historyFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	f.MetricType = models.MetricType(c.Query("metric_type"))
	f.Period = c.Query("period")
	rows, err := h.store.MetricHistory(c.Request.Context(), c.Param("ticker"), f, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// CompareMetric diffs one metric between period_a and period_b.
func (h *Handlers) CompareMetric(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	d, found, err := h.store.Compare(c.Request.Context(), c.Param("ticker"),
		models.MetricType(c.Query("metric_type")), c.Query("period_a"), c.Query("period_b"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !found {
		notFound(c, "metric for one of the periods")
		return
	}
	c.JSON(http.StatusOK, d)
}

// ScreenMetrics lists the latest metric per ticker matching op and value,
// e.g. ?metric_type=operating_margin&op=>&value=50&percent=true.
func (h *Handlers) ScreenMetrics(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	v, err := strconv.ParseFloat(c.Query("value"), 64)
	if err != nil {
		h.fail(c, apperrors.Validation(models.TableMetrics, "value", "must be a number"))
		return
	}
	limit, err := queryLimit(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	cmp := models.Comparator{Op: c.DefaultQuery("op", ">"), Value: v, Percent: c.Query("percent") == "true"}
	rows, err := h.store.ScreenMetrics(c.Request.Context(), models.MetricType(c.Query("metric_type")), cmp, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handlers) FindEntity(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	e, found, err := h.store.FindEntity(c.Request.Context(), models.EntityType(c.Query("type")), c.Query("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !found {
		notFound(c, "entity")
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handlers) Relationships(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	limit, err := queryLimit(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	rows, err := h.store.RelationshipsFrom(c.Request.Context(), c.Param("id"),
		models.RelationshipType(c.Query("type")), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// GetStats summarizes the store, optionally for one ticker.
func (h *Handlers) GetStats(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	stats, err := h.store.Stats(c.Request.Context(), c.Query("ticker"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
