package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"signal-store/apperrors"
	"signal-store/executor"
	"signal-store/ingestion"
)

type QueryRequest struct {
	Query string `json:"query" binding:"required"`
}

// Query routes and answers a natural-language question. A response with
// status "failed" means neither layer could answer and maps to 503.
func (h *Handlers) Query(c *gin.Context) {
	var request QueryRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.fail(c, apperrors.Validation("", "query", "is required"))
		return
	}

	resp, err := h.executor.Execute(c.Request.Context(), request.Query)
	if err != nil {
		h.fail(c, err)
		return
	}
	if resp.Status == executor.StatusFailed {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type ingestResponse struct {
	*ingestion.Result
	Divergence string `json:"divergence,omitempty"`
}

func wrapResult(res *ingestion.Result) ingestResponse {
	out := ingestResponse{Result: res}
	if res != nil && res.Divergence != nil {
		out.Divergence = res.Divergence.Error()
	}
	return out
}

// IngestDocument writes one extracted document. 201 when both layers took it,
// 202 when only the structured store did and the divergence was journaled.
func (h *Handlers) IngestDocument(c *gin.Context) {
	var doc ingestion.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		h.fail(c, apperrors.Validation("", "body", err.Error()))
		return
	}

	res, err := h.writer.Ingest(c.Request.Context(), &doc)
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusCreated
	if !res.SemanticIndexed && res.Divergence != nil {
		status = http.StatusAccepted
	}
	c.JSON(status, wrapResult(res))
}

type batchRequest struct {
	Documents []*ingestion.Document `json:"documents" binding:"required"`
}

// IngestDocuments ingests several documents concurrently. Each succeeds or
// fails on its own; the response lists every result.
func (h *Handlers) IngestDocuments(c *gin.Context) {
	var request batchRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.fail(c, apperrors.Validation("", "documents", err.Error()))
		return
	}

	results, err := h.writer.IngestAll(c.Request.Context(), request.Documents)
	out := make([]ingestResponse, len(results))
	for i := range results {
		out[i] = wrapResult(&results[i])
	}
	status := http.StatusOK
	if err != nil {
		h.log.Warn("batch ingestion had failures", zap.Error(err))
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{"results": out})
}

// Reconcile replays journaled divergences to the semantic engine.
func (h *Handlers) Reconcile(c *gin.Context) {
	res, err := h.writer.Replay(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
