package dto

// PayRequest is the request body for starting a payment.
// Amounts are in micro-Pi (1 Pi = 1,000,000 micro-Pi).
type PayRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Memo   string `json:"memo" binding:"required,min=1,max=200"`
}

// AttemptResponse is the response body for payment attempt state.
type AttemptResponse struct {
	ID           string `json:"id"`
	RemoteID     string `json:"remote_id,omitempty"`
	Amount       int64  `json:"amount"`
	Memo         string `json:"memo"`
	State        string `json:"state"`
	RemoteStatus string `json:"remote_status,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Credited     bool   `json:"credited"`
	Reconciled   bool   `json:"reconciled"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// RemotePaymentResponse is the response body for a gateway status probe.
type RemotePaymentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
	Memo   string `json:"memo,omitempty"`
}

// SendRequest is the request body for an outbound Pi transfer.
type SendRequest struct {
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	Recipient string `json:"recipient" binding:"required,min=1,max=100"`
	Memo      string `json:"memo" binding:"max=200"`
}

// ReceiveRequest is the request body for recording an inbound Pi transfer.
type ReceiveRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Sender string `json:"sender" binding:"required,min=1,max=100"`
	Memo   string `json:"memo" binding:"max=200"`
}

// RewardRequest is the request body for crediting a PTM reward.
type RewardRequest struct {
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Description string `json:"description" binding:"max=200"`
}

// BalanceResponse is the response body for a wallet balance query.
type BalanceResponse struct {
	Currency string `json:"currency"`
	Balance  int64  `json:"balance"`
}

// TransactionResponse is the response body for a ledger entry.
type TransactionResponse struct {
	ID          string `json:"id"`
	ReferenceID string `json:"reference_id,omitempty"`
	Currency    string `json:"currency"`
	Direction   string `json:"direction"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

// LoginRequest is the request body for admin login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// StatsResponse is the response body for dashboard statistics.
type StatsResponse struct {
	TotalTransactions int64 `json:"total_transactions"`
	Completed         int64 `json:"completed"`
	Pending           int64 `json:"pending"`
	Failed            int64 `json:"failed"`
	TotalSent         int64 `json:"total_sent"`
	TotalReceived     int64 `json:"total_received"`
	TotalRewarded     int64 `json:"total_rewarded"`
}

// TransactionListResponse is the paginated response body for ledger listings.
type TransactionListResponse struct {
	Items    []TransactionResponse `json:"items"`
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}
