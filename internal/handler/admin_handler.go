package handler

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mfolio/internal/pkg/errcode"
	"github.com/xxxsen/mfolio/internal/pkg/response"
	"github.com/xxxsen/mfolio/internal/service"
)

type indexer interface {
	IndexAll(ctx context.Context, force bool) (*service.IndexReport, error)
	Prune(ctx context.Context) (int64, error)
}

type AdminHandler struct {
	indexer indexer
}

func NewAdminHandler(indexer indexer) *AdminHandler {
	return &AdminHandler{indexer: indexer}
}

type indexRequest struct {
	Force bool `json:"force"`
}

// Index runs a full indexing pass synchronously and returns its report.
func (h *AdminHandler) Index(c *gin.Context) {
	var req indexRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	report, err := h.indexer.IndexAll(c.Request.Context(), req.Force)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, report)
}

func (h *AdminHandler) Prune(c *gin.Context) {
	removed, err := h.indexer.Prune(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"removed": removed})
}
