package payout

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/riftworks/riftpay/internal/ledger"
)

// Handler provides HTTP endpoints for withdrawals.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new payout handler
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes sets up payout routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/wallets/:userId/withdraw", h.Withdraw)
	r.GET("/wallets/:userId/payouts", h.List)
	r.GET("/payouts/:id", h.Get)
}

// WithdrawRequest contains the parameters for a withdrawal.
type WithdrawRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// Withdraw handles POST /v1/wallets/:userId/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	p, err := h.service.Withdraw(c.Request.Context(), c.Param("userId"), req.Amount)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, p)
	case errors.Is(err, ErrValidation), errors.Is(err, ledger.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": err.Error(),
		})
	case errors.Is(err, ledger.ErrInsufficientBalance):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "insufficient_balance",
			"message": err.Error(),
		})
	case errors.Is(err, ledger.ErrWalletNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "wallet_not_found",
			"message": err.Error(),
		})
	case errors.Is(err, ErrNoDestination):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "no_destination",
			"message": "no payout destination configured",
		})
	case errors.Is(err, ErrIndeterminate):
		c.JSON(http.StatusAccepted, gin.H{
			"status":  "processing",
			"payout":  p,
			"message": "transfer outcome pending reconciliation",
		})
	case errors.Is(err, ErrPayoutFailed):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "payout_failed",
			"message": err.Error(),
		})
	default:
		h.logger.Error("withdraw failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An internal error occurred",
		})
	}
}

// List handles GET /v1/wallets/:userId/payouts
func (h *Handler) List(c *gin.Context) {
	payouts, err := h.service.ListByUser(c.Request.Context(), c.Param("userId"), 100)
	if err != nil {
		h.logger.Error("list payouts failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An internal error occurred",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payouts": payouts,
		"count":   len(payouts),
	})
}

// Get handles GET /v1/payouts/:id
func (h *Handler) Get(c *gin.Context) {
	p, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": err.Error(),
			})
			return
		}
		h.logger.Error("get payout failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An internal error occurred",
		})
		return
	}
	c.JSON(http.StatusOK, p)
}
