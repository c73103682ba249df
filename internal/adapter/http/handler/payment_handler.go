package handler

import (
	"pieat-payments/internal/adapter/http/dto"
	"pieat-payments/internal/core/domain"
	"pieat-payments/internal/core/ports"
	"pieat-payments/pkg/apperror"
	"pieat-payments/pkg/response"

	"github.com/gin-gonic/gin"
)

// PaymentHandler handles payment lifecycle endpoints.
type PaymentHandler struct {
	orchestrator ports.PaymentOrchestrator
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(orchestrator ports.PaymentOrchestrator) *PaymentHandler {
	return &PaymentHandler{orchestrator: orchestrator}
}

// Pay handles POST /api/v1/payments.
func (h *PaymentHandler) Pay(c *gin.Context) {
	var req dto.PayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	attempt, err := h.orchestrator.Pay(c.Request.Context(), domain.PaymentIntent{
		Amount: req.Amount,
		Memo:   req.Memo,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toAttemptResponse(attempt))
}

// Current handles GET /api/v1/payments/current.
func (h *PaymentHandler) Current(c *gin.Context) {
	attempt := h.orchestrator.Current()
	if attempt.State == domain.AttemptStateIdle {
		response.Error(c, apperror.ErrNoActivePayment())
		return
	}
	response.OK(c, toAttemptResponse(attempt))
}

// Cancel handles POST /api/v1/payments/cancel.
func (h *PaymentHandler) Cancel(c *gin.Context) {
	attempt, err := h.orchestrator.Cancel(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toAttemptResponse(attempt))
}

// Refresh handles POST /api/v1/payments/refresh.
func (h *PaymentHandler) Refresh(c *gin.Context) {
	remote, err := h.orchestrator.RefreshStatus(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.RemotePaymentResponse{
		ID:     remote.ID,
		Status: string(remote.Status),
		Amount: remote.Amount,
		Memo:   remote.Memo,
	})
}

// Retry handles POST /api/v1/payments/retry.
func (h *PaymentHandler) Retry(c *gin.Context) {
	attempt, err := h.orchestrator.Retry(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toAttemptResponse(attempt))
}

// toAttemptResponse converts domain.PaymentAttempt to DTO.
func toAttemptResponse(a domain.PaymentAttempt) dto.AttemptResponse {
	resp := dto.AttemptResponse{
		ID:           a.ID.String(),
		RemoteID:     a.RemoteID,
		Amount:       a.Intent.Amount,
		Memo:         a.Intent.Memo,
		State:        string(a.State),
		RemoteStatus: string(a.RemoteStatus),
		Reason:       string(a.Reason),
		Credited:     a.Credited,
		Reconciled:   a.Reconciled,
	}
	if !a.CreatedAt.IsZero() {
		resp.CreatedAt = a.CreatedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}
