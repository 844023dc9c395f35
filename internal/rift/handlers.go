package rift

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for rift operations.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new rift handler
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes sets up rift routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/rifts", h.Create)
	r.GET("/rifts/:id", h.Get)
	r.GET("/rifts", h.List)
	r.POST("/rifts/:id/transition", h.Transition)
	r.POST("/rifts/:id/release", h.Release)
	r.POST("/rifts/:id/milestones/:index/release", h.ReleaseMilestone)
	r.POST("/rifts/:id/milestones/:index/proof", h.SubmitMilestoneProof)
}

// RegisterAdminRoutes sets up admin-only rift routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/sweep", h.Sweep)
}

// Create handles POST /v1/rifts
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	r, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, r)
}

// Get handles GET /v1/rifts/:id
func (h *Handler) Get(c *gin.Context) {
	r, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// List handles GET /v1/rifts?party=<userId>
func (h *Handler) List(c *gin.Context) {
	party := c.Query("party")
	if party == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_party",
			"message": "party query parameter is required",
		})
		return
	}

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	rifts, err := h.service.ListByParty(c.Request.Context(), party, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rifts": rifts,
		"count": len(rifts),
	})
}

// Transition handles POST /v1/rifts/:id/transition
func (h *Handler) Transition(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	r, err := h.service.Transition(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": r.Status,
		"rift":   r,
	})
}

// ReleaseRequest identifies the actor releasing funds.
type ReleaseRequest struct {
	ActorID   string `json:"actorId" binding:"required"`
	ActorRole Role   `json:"actorRole" binding:"required"`
}

// Release handles POST /v1/rifts/:id/release
func (h *Handler) Release(c *gin.Context) {
	var req ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	outcome, err := h.service.ReleaseWhole(c.Request.Context(), c.Param("id"), req.ActorID, req.ActorRole)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// ReleaseMilestone handles POST /v1/rifts/:id/milestones/:index/release
func (h *Handler) ReleaseMilestone(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_index",
			"message": "Milestone index must be an integer",
		})
		return
	}

	var req ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	outcome, err := h.service.ReleaseMilestone(c.Request.Context(), c.Param("id"), index, req.ActorID, req.ActorRole)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// MilestoneProofRequest carries seller proof for one milestone.
type MilestoneProofRequest struct {
	ActorID  string `json:"actorId" binding:"required"`
	ProofRef string `json:"proofRef" binding:"required"`
}

// SubmitMilestoneProof handles POST /v1/rifts/:id/milestones/:index/proof
func (h *Handler) SubmitMilestoneProof(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_index",
			"message": "Milestone index must be an integer",
		})
		return
	}

	var req MilestoneProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	r, err := h.service.SubmitMilestoneProof(c.Request.Context(), c.Param("id"), index, req.ActorID, req.ProofRef)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

// Sweep handles POST /v1/admin/sweep — manual auto-release sweep trigger.
func (h *Handler) Sweep(c *gin.Context) {
	released, err := h.service.SweepAutoReleases(c.Request.Context(), time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "sweep_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"released": released,
		"count":    len(released),
	})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var te *TransitionError
	switch {
	case errors.Is(err, ErrRiftNotFound), errors.Is(err, ErrReleaseNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "rift_not_found", "message": "Rift not found"})
	case errors.Is(err, ErrMilestoneOutOfRange):
		c.JSON(http.StatusNotFound, gin.H{"error": "milestone_not_found", "message": err.Error()})
	case errors.As(err, &te):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden_transition", "message": te.Error()})
	case errors.Is(err, ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "unauthorized", "message": err.Error()})
	case errors.Is(err, ErrValidation), errors.Is(err, ErrProofRequired),
		errors.Is(err, ErrNoMilestones), errors.Is(err, ErrMilestonesOnly):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
	case errors.Is(err, ErrFrozen):
		c.JSON(http.StatusConflict, gin.H{"error": "dispute_frozen", "message": err.Error()})
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrReleaseInProgress), errors.Is(err, ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
	case errors.Is(err, ErrPayoutIndeterminate):
		c.JSON(http.StatusAccepted, gin.H{"status": "processing", "message": "Payout outcome pending reconciliation"})
	case errors.Is(err, ErrPayoutFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "payout_failed", "message": "External payout failed, funds not moved"})
	default:
		h.logger.Error("rift handler error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Internal error"})
	}
}
