package timeline

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for timeline queries.
type Handler struct {
	recorder *Recorder
	logger   *slog.Logger
}

// NewHandler creates a new timeline handler
func NewHandler(recorder *Recorder, logger *slog.Logger) *Handler {
	return &Handler{recorder: recorder, logger: logger}
}

// RegisterRoutes sets up timeline routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/rifts/:id/timeline", h.List)
}

// List handles GET /v1/rifts/:id/timeline
func (h *Handler) List(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be between 1 and 500",
			})
			return
		}
		limit = n
	}

	events, err := h.recorder.ListByRift(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.logger.Error("list timeline failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An internal error occurred",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}
