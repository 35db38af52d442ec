package api

import (
	"net/http"

	"SpotFactory-server/models"
	"SpotFactory-server/service"

	"github.com/gin-gonic/gin"
)

type validateContinuityRequest struct {
	Previous []models.TrackedElement `json:"previous_elements"`
	Current  []models.TrackedElement `json:"current_elements"`
}

// ValidateContinuity compares two consecutive element sets on demand,
// without touching any project. Same validator production runs through.
func ValidateContinuity(c *gin.Context) {
	var req validateContinuityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, service.ValidateContinuity(req.Previous, req.Current))
}
