package dispute

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/riftworks/riftpay/internal/rift"
)

// Handler provides HTTP endpoints for dispute operations.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new dispute handler
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes sets up dispute routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/rifts/:id/dispute", h.Open)
	r.POST("/rifts/:id/dispute/review", h.Review)
	r.POST("/rifts/:id/dispute/resolve", h.Resolve)
	r.GET("/rifts/:id/disputes", h.List)
}

// OpenRequest contains the parameters for opening a dispute.
type OpenRequest struct {
	BuyerID string `json:"buyerId" binding:"required"`
	Reason  string `json:"reason" binding:"required"`
}

// ReviewRequest contains the parameters for marking a dispute under review.
type ReviewRequest struct {
	AdminID string `json:"adminId" binding:"required"`
}

// ResolveRequest contains the parameters for resolving a dispute.
type ResolveRequest struct {
	AdminID string  `json:"adminId" binding:"required"`
	Outcome Outcome `json:"outcome" binding:"required"`
}

// Open handles POST /v1/rifts/:id/dispute
func (h *Handler) Open(c *gin.Context) {
	var req OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	d, err := h.service.Open(c.Request.Context(), c.Param("id"), req.BuyerID, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// Review handles POST /v1/rifts/:id/dispute/review
func (h *Handler) Review(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	d, err := h.service.MarkUnderReview(c.Request.Context(), c.Param("id"), req.AdminID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Resolve handles POST /v1/rifts/:id/dispute/resolve
func (h *Handler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	d, err := h.service.Resolve(c.Request.Context(), c.Param("id"), req.AdminID, req.Outcome)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// List handles GET /v1/rifts/:id/disputes
func (h *Handler) List(c *gin.Context) {
	disputes, err := h.service.ListByRift(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"disputes": disputes,
		"count":    len(disputes),
	})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var trErr *rift.TransitionError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, rift.ErrRiftNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": err.Error(),
		})
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnknownAction):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": err.Error(),
		})
	case errors.As(err, &trErr):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden_transition",
			"message": err.Error(),
		})
	case errors.Is(err, rift.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unauthorized",
			"message": err.Error(),
		})
	case errors.Is(err, ErrDisputeOpen), errors.Is(err, ErrResolved):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "dispute_conflict",
			"message": err.Error(),
		})
	case errors.Is(err, rift.ErrInvalidStatus):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "conflict",
			"message": err.Error(),
		})
	case errors.Is(err, rift.ErrPayoutIndeterminate):
		c.JSON(http.StatusAccepted, gin.H{
			"status":  "processing",
			"message": "payout outcome pending reconciliation",
		})
	case errors.Is(err, rift.ErrPayoutFailed):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "payout_failed",
			"message": err.Error(),
		})
	default:
		h.logger.Error("dispute handler error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An internal error occurred",
		})
	}
}
