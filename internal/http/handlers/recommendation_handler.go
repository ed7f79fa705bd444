// Product recommendation HTTP handlers.
//
// This file exposes the recommendation endpoints:
//   - POST /recommendations          (generate, JSON-mode model call)
//   - GET  /recommendations/history  (recent exchanges)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fitbot/fitbot-backend/internal/services"
)

// RecommendRequest is the JSON payload for requesting product suggestions.
type RecommendRequest struct {
	// Goals optionally narrows the suggestions to specific objectives.
	Goals []string `json:"goals,omitempty" example:"ganar músculo,perder grasa"`
	// Message optionally carries the user's own words about what they need.
	Message string `json:"message,omitempty" example:"busco algo para recuperarme mejor"`
}

// Recommend godoc
// @ID          recommend
// @Summary     Get product recommendations
// @Description Asks the model for up to three product suggestions tailored to the user's profile, goals, and message, matched against the local catalog and recorded in history.
// @Tags        Recommendations
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.RecommendRequest  true  "Recommendation payload"
//
// @Success     200  {object} services.RecommendationResult
// @Failure     429  {object} handlers.ErrorResponse "Hourly recommendation quota spent"
// @Failure     503  {object} handlers.ErrorResponse "Model backend unavailable"
// @Router      /recommendations [post]
func (h *Handlers) Recommend(c *gin.Context) {
	var req RecommendRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.recSvc.Recommend(c.Request.Context(), userID(c), req.Goals, req.Message)
	if err != nil {
		if errors.Is(err, services.ErrRecommendationUnavailable) {
			fail(c, http.StatusServiceUnavailable, ErrCodeRecommendFailed, err.Error())
			return
		}
		failService(c, err, ErrCodeRecommendFailed)
		return
	}
	ok(c, http.StatusOK, res)
}

// RecommendationHistory godoc
// @ID          recommendationHistory
// @Summary     List recent recommendations
// @Description Returns the current user's most recent recommendation exchanges, newest first.
// @Tags        Recommendations
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {array}  domain.Recommendation
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /recommendations/history [get]
func (h *Handlers) RecommendationHistory(c *gin.Context) {
	items, err := h.recSvc.History(c.Request.Context(), userID(c))
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, items)
}
