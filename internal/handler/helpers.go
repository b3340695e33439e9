package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mfolio/internal/pkg/errcode"
	appErr "github.com/xxxsen/mfolio/internal/pkg/errors"
	"github.com/xxxsen/mfolio/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, errcode.ErrTooMany, "too many requests")
	case errors.Is(err, appErr.ErrUnavailable):
		response.Error(c, errcode.ErrAIUnavailable, "ai unavailable")
	case errors.Is(err, appErr.ErrEmbeddingFailure):
		response.Error(c, errcode.ErrEmbedding, "embedding failed")
	case errors.Is(err, appErr.ErrSearchFailure):
		response.Error(c, errcode.ErrSearch, "search failed")
	case errors.Is(err, appErr.ErrPersistenceFailure):
		response.Error(c, errcode.ErrPersistence, "storage failed")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
