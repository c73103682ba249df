package handler

import (
	"strconv"
	"strings"

	"pieat-payments/internal/adapter/http/dto"
	"pieat-payments/internal/core/domain"
	"pieat-payments/internal/core/ports"
	"pieat-payments/pkg/apperror"
	"pieat-payments/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler handles wallet and ledger endpoints.
type WalletHandler struct {
	ledger ports.WalletLedger
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledger ports.WalletLedger) *WalletHandler {
	return &WalletHandler{ledger: ledger}
}

// GetBalance handles GET /api/v1/wallets/:currency/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	currency, ok := parseCurrency(c)
	if !ok {
		return
	}

	balance, err := h.ledger.BalanceOf(c.Request.Context(), currency)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		Currency: string(currency),
		Balance:  balance,
	})
}

// GetHistory handles GET /api/v1/wallets/:currency/history.
func (h *WalletHandler) GetHistory(c *gin.Context) {
	currency, ok := parseCurrency(c)
	if !ok {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			response.Error(c, apperror.Validation("limit must be an integer between 1 and 200"))
			return
		}
		limit = parsed
	}

	history, err := h.ledger.History(c.Request.Context(), currency, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(history))
	for i := range history {
		items = append(items, toTransactionResponse(&history[i]))
	}
	response.OK(c, items)
}

// Send handles POST /api/v1/transfers/send.
func (h *WalletHandler) Send(c *gin.Context) {
	var req dto.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	txn, err := h.ledger.SendPi(c.Request.Context(), req.Amount, req.Recipient, req.Memo)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toTransactionResponse(txn))
}

// Receive handles POST /api/v1/transfers/receive.
func (h *WalletHandler) Receive(c *gin.Context) {
	var req dto.ReceiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	txn, err := h.ledger.Receive(c.Request.Context(), req.Amount, req.Sender, req.Memo)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toTransactionResponse(txn))
}

// Reward handles POST /api/v1/rewards.
func (h *WalletHandler) Reward(c *gin.Context) {
	var req dto.RewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	txn, err := h.ledger.Reward(c.Request.Context(), req.Amount, req.Description)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toTransactionResponse(txn))
}

// parseCurrency reads the :currency path param. Writes the error response
// itself and returns ok=false on an unknown currency.
func parseCurrency(c *gin.Context) (domain.Currency, bool) {
	currency := domain.Currency(strings.ToUpper(c.Param("currency")))
	if !currency.Valid() {
		response.Error(c, apperror.Validation("currency must be PI or PTM"))
		return "", false
	}
	return currency, true
}

// toTransactionResponse converts domain.Transaction to DTO.
func toTransactionResponse(t *domain.Transaction) dto.TransactionResponse {
	return dto.TransactionResponse{
		ID:          t.ID.String(),
		ReferenceID: t.ReferenceID,
		Currency:    string(t.Currency),
		Direction:   string(t.Direction),
		Status:      string(t.Status),
		Amount:      t.Amount,
		Description: t.Description,
		CreatedAt:   t.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
