// Web search HTTP handler.
//
// This file exposes the quota-checked search endpoint:
//   - POST /search  (query + optional category, vendor chain behind it)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SearchRequest is the JSON payload for one web search.
type SearchRequest struct {
	// Query is the search text (1-200 chars after trimming).
	Query string `json:"query" binding:"required" example:"mejores ejercicios de espalda"`
	// Category optionally biases the query: fitness, nutrition, products, or
	// general (default).
	Category string `json:"category,omitempty" example:"fitness"`
}

// Search godoc
// @ID          search
// @Summary     Web search
// @Description Runs one quota-checked web search for the current user. The query is enriched with category terms and results are normalized (at most 5, snippets clipped).
// @Tags        Search
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.SearchRequest  true  "Search payload"
//
// @Success     200  {object} services.SearchResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     429  {object} handlers.ErrorResponse "Hourly search quota spent"
// @Failure     500  {object} handlers.ErrorResponse "All vendors failed"
// @Router      /search [post]
func (h *Handlers) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query required")
		return
	}

	resp, err := h.searchSvc.Search(c.Request.Context(), userID(c), req.Query, req.Category)
	if err != nil {
		failService(c, err, ErrCodeSearchFailed)
		return
	}
	ok(c, http.StatusOK, resp)
}
