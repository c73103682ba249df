package handler

import (
	"net/http"
	"strconv"

	"pieat-payments/internal/adapter/http/dto"
	"pieat-payments/internal/core/domain"
	"pieat-payments/internal/core/ports"
	"pieat-payments/pkg/apperror"
	"pieat-payments/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler handles the dashboard login and reporting endpoints.
type AdminHandler struct {
	authSvc      ports.AdminAuthService
	reportingSvc ports.ReportingService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(authSvc ports.AdminAuthService, reportingSvc ports.ReportingService) *AdminHandler {
	return &AdminHandler{authSvc: authSvc, reportingSvc: reportingSvc}
}

// Login handles POST /api/v1/admin/login.
func (h *AdminHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	token, expiry, err := h.authSvc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.LoginResponse{
		Token:  token,
		Expiry: expiry.Unix(),
	})
}

// GetStats handles GET /api/v1/admin/stats.
func (h *AdminHandler) GetStats(c *gin.Context) {
	period := c.DefaultQuery("period", "all")

	stats, err := h.reportingSvc.GetDashboardStats(c.Request.Context(), period)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.StatsResponse{
		TotalTransactions: stats.TotalTransactions,
		Completed:         stats.Completed,
		Pending:           stats.Pending,
		Failed:            stats.Failed,
		TotalSent:         stats.TotalSent,
		TotalReceived:     stats.TotalReceived,
		TotalRewarded:     stats.TotalRewarded,
	})
}

// ListTransactions handles GET /api/v1/admin/transactions.
func (h *AdminHandler) ListTransactions(c *gin.Context) {
	params, ok := parseListParams(c)
	if !ok {
		return
	}

	txns, total, err := h.reportingSvc.ListTransactions(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(txns))
	for i := range txns {
		items = append(items, toTransactionResponse(&txns[i]))
	}

	response.OK(c, dto.TransactionListResponse{
		Items:    items,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

// parseListParams reads filter and pagination query params. Writes the error
// response itself and returns ok=false on invalid input.
func parseListParams(c *gin.Context) (ports.TransactionListParams, bool) {
	params := ports.TransactionListParams{Page: 1, PageSize: 20}

	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			response.Error(c, apperror.Validation("page must be a positive integer"))
			return params, false
		}
		params.Page = page
	}
	if raw := c.Query("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 || size > 100 {
			response.Error(c, apperror.Validation("page_size must be between 1 and 100"))
			return params, false
		}
		params.PageSize = size
	}
	if raw := c.Query("currency"); raw != "" {
		currency := domain.Currency(raw)
		if !currency.Valid() {
			response.Error(c, apperror.Validation("currency must be PI or PTM"))
			return params, false
		}
		params.Currency = &currency
	}
	if raw := c.Query("direction"); raw != "" {
		direction := domain.Direction(raw)
		if !direction.Valid() {
			response.Error(c, apperror.Validation("direction must be SEND, RECEIVE or REWARD"))
			return params, false
		}
		params.Direction = &direction
	}
	if raw := c.Query("status"); raw != "" {
		status := domain.TransactionStatus(raw)
		switch status {
		case domain.TransactionStatusCompleted, domain.TransactionStatusPending, domain.TransactionStatusFailed:
			params.Status = &status
		default:
			response.Error(c, apperror.Validation("status must be COMPLETED, PENDING or FAILED"))
			return params, false
		}
	}
	if raw := c.Query("from"); raw != "" {
		from, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, apperror.Validation("from must be a unix timestamp"))
			return params, false
		}
		params.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, apperror.Validation("to must be a unix timestamp"))
			return params, false
		}
		params.To = &to
	}

	return params, true
}

// HealthCheck handles GET /health — deep health check verifying all dependencies.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
