// Fitness profile HTTP handlers.
//
// This file exposes the questionnaire endpoints:
//   - GET /profile  (read, empty profile when never filled in)
//   - PUT /profile  (partial update, absent fields untouched)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fitbot/fitbot-backend/internal/services"
)

// GetProfile godoc
// @ID          getProfile
// @Summary     Get the fitness profile
// @Description Returns the current user's fitness questionnaire. A user who never completed it gets an empty profile, not a 404.
// @Tags        Profile
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {object} domain.FitnessProfile
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /profile [get]
func (h *Handlers) GetProfile(c *gin.Context) {
	p, err := h.profSvc.Get(c.Request.Context(), userID(c))
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, p)
}

// UpdateProfile godoc
// @ID          updateProfile
// @Summary     Update the fitness profile
// @Description Applies a partial update to the current user's questionnaire. Omitted fields keep their stored value; set fields are validated against their allowed ranges.
// @Tags        Profile
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    services.ProfileUpdate  true  "Partial profile change"
//
// @Success     200  {object} domain.FitnessProfile
// @Failure     400  {object} handlers.ErrorResponse "Value out of range"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /profile [put]
func (h *Handlers) UpdateProfile(c *gin.Context) {
	var upd services.ProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	p, err := h.profSvc.Update(c.Request.Context(), userID(c), upd)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, p)
}
