package pinet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"time"

	"pieat-payments/config"
	"pieat-payments/internal/core/domain"
	"pieat-payments/pkg/apperror"

	"github.com/rs/zerolog"
)

const (
	paymentsPath = "/v2/payments"
	mePath       = "/v2/me"

	microPerPi = 1_000_000
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements ports.PaymentGateway against the Pi platform API.
// All requests are authenticated with the server API key sent as
// "Authorization: Key <api-key>".
type Client struct {
	baseURL string
	apiKey  string
	sandbox bool
	http    HTTPClient
	log     zerolog.Logger
}

// NewClient creates a Pi platform API client.
func NewClient(cfg config.PiConfig, httpClient HTTPClient, log zerolog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		sandbox: cfg.Sandbox,
		http:    httpClient,
		log:     log,
	}
}

// User is the authenticated Pi account behind the API key.
type User struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
}

// piPayment is the wire shape of a payment record on the Pi API.
type piPayment struct {
	Identifier string  `json:"identifier"`
	Status     string  `json:"status"`
	Amount     float64 `json:"amount"` // Whole Pi, not micro-Pi
	Memo       string  `json:"memo"`
}

func (p *piPayment) toRemote() *domain.RemotePayment {
	return &domain.RemotePayment{
		ID:     p.Identifier,
		Status: domain.ParseRemoteStatus(p.Status),
		Amount: piToMicro(p.Amount),
		Memo:   p.Memo,
	}
}

// Me verifies the API credential by fetching the account it belongs to.
func (c *Client) Me(ctx context.Context) (*User, error) {
	body, err := c.do(ctx, http.MethodGet, mePath, nil)
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("decode me response: %w", err))
	}
	return &u, nil
}

// CreatePayment constructs a remote payment record.
func (c *Client) CreatePayment(ctx context.Context, amount int64, memo string) (*domain.RemotePayment, error) {
	payload := map[string]any{
		"amount": microToPi(amount),
		"memo":   memo,
		"metadata": map[string]any{
			"appName":   "PiEat-Me",
			"sandbox":   c.sandbox,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}
	return c.doPayment(ctx, http.MethodPost, paymentsPath, payload)
}

// CompletePayment drives a created payment to completion.
func (c *Client) CompletePayment(ctx context.Context, remoteID string) (*domain.RemotePayment, error) {
	return c.doPayment(ctx, http.MethodPost, paymentsPath+"/"+remoteID+"/complete", struct{}{})
}

// CancelPayment requests cancellation. The Pi API answers a cancel of an
// already-terminal payment with the current record, so this is idempotent.
func (c *Client) CancelPayment(ctx context.Context, remoteID string) (*domain.RemotePayment, error) {
	return c.doPayment(ctx, http.MethodPost, paymentsPath+"/"+remoteID+"/cancel", struct{}{})
}

// FetchPayment is a read-only status probe.
func (c *Client) FetchPayment(ctx context.Context, remoteID string) (*domain.RemotePayment, error) {
	return c.doPayment(ctx, http.MethodGet, paymentsPath+"/"+remoteID, nil)
}

func (c *Client) doPayment(ctx context.Context, method, path string, payload any) (*domain.RemotePayment, error) {
	body, err := c.do(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	var p piPayment
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("decode payment response: %w", err))
	}
	return p.toRemote(), nil
}

// do executes one API request and normalizes transport and status failures
// into the gateway error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c.apiKey == "" {
		return nil, apperror.ErrGatewayNotInitialized()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("marshal request: %w", err))
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, apperror.ErrGatewayTimeout(err)
		}
		return nil, apperror.InternalError(fmt.Errorf("pi api request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.log.Error().Int("status", resp.StatusCode).Str("path", path).Msg("pi api rejected credentials")
		return nil, apperror.ErrGatewayNotInitialized()
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return nil, apperror.ErrGatewayTimeout(fmt.Errorf("pi api status %d", resp.StatusCode))
	default:
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("pi api error response")
		return nil, apperror.ErrGatewayRejected(fmt.Sprintf("status %d", resp.StatusCode))
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// piToMicro converts a whole-Pi amount from the API into micro-Pi.
func piToMicro(pi float64) int64 {
	return int64(math.Round(pi * microPerPi))
}

// microToPi converts a micro-Pi amount into the whole-Pi unit the API expects.
func microToPi(micro int64) float64 {
	return float64(micro) / microPerPi
}
