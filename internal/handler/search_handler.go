package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mfolio/internal/model"
	"github.com/xxxsen/mfolio/internal/pkg/errcode"
	"github.com/xxxsen/mfolio/internal/pkg/response"
	"github.com/xxxsen/mfolio/internal/service"
)

const maxSearchCount = 50

type searcher interface {
	Search(ctx context.Context, query string, opts service.SearchOptions) (*service.SearchResponse, error)
}

type contextFormatter interface {
	FormatContext(results []model.SearchResult) string
}

type SearchHandler struct {
	search    searcher
	formatter contextFormatter
	defaults  service.SearchOptions
}

func NewSearchHandler(search searcher, formatter contextFormatter, defaults service.SearchOptions) *SearchHandler {
	return &SearchHandler{search: search, formatter: formatter, defaults: defaults}
}

type searchResponse struct {
	Items   []model.SearchResult `json:"items"`
	Context string               `json:"context"`
	Mode    model.SearchMode     `json:"mode"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		response.Error(c, errcode.ErrInvalid, "missing query")
		return
	}
	opts := h.defaults
	if raw := c.Query("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			response.Error(c, errcode.ErrInvalid, "invalid threshold")
			return
		}
		opts.MatchThreshold = v
	}
	if raw := c.Query("count"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			response.Error(c, errcode.ErrInvalid, "invalid count")
			return
		}
		opts.MatchCount = min(v, maxSearchCount)
	}
	if raw := c.Query("types"); raw != "" {
		types, err := parseContentTypes(raw)
		if err != nil {
			response.Error(c, errcode.ErrInvalid, err.Error())
			return
		}
		opts.ContentTypes = types
	}
	opts.LexicalFallback = c.Query("fallback") == string(model.SearchModeLexical)

	resp, err := h.search.Search(c.Request.Context(), query, opts)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, searchResponse{
		Items:   resp.Results,
		Context: h.formatter.FormatContext(resp.Results),
		Mode:    resp.Mode,
	})
}

func parseContentTypes(raw string) ([]model.ContentType, error) {
	var types []model.ContentType
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, err := model.ParseContentType(part)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}
