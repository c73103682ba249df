package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pieat-payments/config"
	"pieat-payments/internal/adapter/gateway/pinet"
	httpHandler "pieat-payments/internal/adapter/http/handler"
	redisStorage "pieat-payments/internal/adapter/storage/redis"
	"pieat-payments/internal/core/domain"
	"pieat-payments/internal/core/ports"
	"pieat-payments/internal/service"
	"pieat-payments/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey        = "test-pi-api-key"
	testAdminPassword = "integration-test-pw"
)

// fakePiServer emulates the Pi platform payments API.
type fakePiServer struct {
	mu       sync.Mutex
	payments map[string]*piRecord
	nextID   int

	// completeLeavesPending makes POST .../complete answer with a PENDING
	// record, pushing the client into polling.
	completeLeavesPending bool
	// cancelReturnsCompleted emulates a completion racing the cancel call.
	cancelReturnsCompleted bool

	server *httptest.Server
}

type piRecord struct {
	Identifier string  `json:"identifier"`
	Status     string  `json:"status"`
	Amount     float64 `json:"amount"`
	Memo       string  `json:"memo"`
}

func newFakePiServer() *fakePiServer {
	f := &fakePiServer{payments: make(map[string]*piRecord)}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakePiServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Key "+testAPIKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.URL.Path == "/v2/me":
		json.NewEncoder(w).Encode(map[string]string{"uid": "u-1", "username": "pieat-dev"})

	case r.URL.Path == "/v2/payments" && r.Method == http.MethodPost:
		var req struct {
			Amount float64 `json:"amount"`
			Memo   string  `json:"memo"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		f.nextID++
		rec := &piRecord{
			Identifier: fmt.Sprintf("pay_%d", f.nextID),
			Status:     "PENDING",
			Amount:     req.Amount,
			Memo:       req.Memo,
		}
		f.payments[rec.Identifier] = rec
		f.mu.Unlock()
		json.NewEncoder(w).Encode(rec)

	case strings.HasSuffix(r.URL.Path, "/complete"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v2/payments/"), "/complete")
		f.mu.Lock()
		rec, ok := f.payments[id]
		if ok && !f.completeLeavesPending {
			rec.Status = "COMPLETED"
		}
		f.mu.Unlock()
		f.respond(w, id)

	case strings.HasSuffix(r.URL.Path, "/cancel"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v2/payments/"), "/cancel")
		f.mu.Lock()
		rec, ok := f.payments[id]
		if ok {
			if f.cancelReturnsCompleted {
				rec.Status = "COMPLETED"
			} else if rec.Status == "PENDING" {
				rec.Status = "CANCELLED"
			}
		}
		f.mu.Unlock()
		f.respond(w, id)

	case strings.HasPrefix(r.URL.Path, "/v2/payments/") && r.Method == http.MethodGet:
		id := strings.TrimPrefix(r.URL.Path, "/v2/payments/")
		f.respond(w, id)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakePiServer) respond(w http.ResponseWriter, id string) {
	f.mu.Lock()
	rec, ok := f.payments[id]
	var cp piRecord
	if ok {
		cp = *rec
	}
	f.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(cp)
}

func (f *fakePiServer) setCompleteLeavesPending(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeLeavesPending = v
}

func (f *fakePiServer) setCancelReturnsCompleted(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelReturnsCompleted = v
}

func (f *fakePiServer) setStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.payments[id]; ok {
		rec.Status = status
	}
}

// testApp wires the full stack: real HTTP layer, services, Pi client against
// the fake platform, miniredis-backed stores and in-memory repos.
type testApp struct {
	server *httptest.Server
	pi     *fakePiServer
	txRepo *inMemoryTransactionRepo
	ledger ports.WalletLedger
	orch   *service.OrchestratorImpl
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	pi := newFakePiServer()
	t.Cleanup(pi.server.Close)

	walletRepo := newInMemoryWalletRepo()
	txRepo := newInMemoryTransactionRepo()
	creditLogRepo := newInMemoryCreditLogRepo()
	transactor := newInMemoryTransactor()

	now := time.Now().UTC()
	for _, c := range []domain.Currency{domain.CurrencyPi, domain.CurrencyPTM} {
		require.NoError(t, walletRepo.Create(context.Background(), &domain.Wallet{Currency: c, CreatedAt: now, UpdatedAt: now}))
	}

	log := logger.NewWithWriter("error", bytes.NewBuffer(nil))

	piClient := pinet.NewClient(config.PiConfig{
		BaseURL: pi.server.URL,
		APIKey:  testAPIKey,
		Timeout: 2 * time.Second,
	}, &http.Client{Timeout: 2 * time.Second}, log)

	ledgerSvc := service.NewLedgerService(txRepo, walletRepo, creditLogRepo, transactor, log)
	orchestrator := service.NewOrchestrator(piClient, ledgerSvc, redisStorage.NewCreditGuard(rdb), config.PollerConfig{
		Interval:       20 * time.Millisecond,
		MaxWindow:      2 * time.Second,
		MaxFetchErrors: 3,
	}, log)

	hashSvc := service.NewArgon2HashService()
	passwordHash, err := hashSvc.Hash(testAdminPassword)
	require.NoError(t, err)

	tokenSvc := service.NewJWTTokenService("integration-jwt-secret", time.Hour, "pieat-payments")
	authSvc := service.NewAdminAuthService(config.AdminConfig{
		Username:     "admin",
		PasswordHash: passwordHash,
	}, hashSvc, tokenSvc, log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Orchestrator:   orchestrator,
		Ledger:         ledgerSvc,
		AuthSvc:        authSvc,
		ReportingSvc:   service.NewReportingService(txRepo),
		TokenSvc:       tokenSvc,
		RateLimitStore: redisStorage.NewRateLimitStore(rdb),
		Logger:         log,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = orchestrator.Shutdown(ctx)
	})

	return &testApp{server: srv, pi: pi, txRepo: txRepo, ledger: ledgerSvc, orch: orchestrator}
}

func (a *testApp) post(t *testing.T, path string, body interface{}, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(http.MethodPost, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (a *testApp) get(t *testing.T, path string, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, a.server.URL+path, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var parsed map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return parsed
}

func (a *testApp) fund(t *testing.T, amount int64) {
	t.Helper()
	resp, _ := a.post(t, "/api/v1/transfers/receive", map[string]interface{}{
		"amount": amount,
		"sender": "faucet",
		"memo":   "seed funds",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func (a *testApp) adminToken(t *testing.T) string {
	t.Helper()
	resp, body := a.post(t, "/api/v1/admin/login", map[string]string{
		"username": "admin",
		"password": testAdminPassword,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return body["data"].(map[string]interface{})["token"].(string)
}

func TestFullPaymentFlow(t *testing.T) {
	app := newTestApp(t)
	app.fund(t, 10_000_000)

	resp, body := app.post(t, "/api/v1/payments", map[string]interface{}{
		"amount": 4_000_000,
		"memo":   "Order #1042",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "SUCCEEDED", data["state"])
	assert.Equal(t, true, data["credited"])

	// Balance reflects exactly one debit.
	resp, body = app.get(t, "/api/v1/wallets/PI/balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(6_000_000), body["data"].(map[string]interface{})["balance"])

	// The attempt stays visible as the last one.
	resp, body = app.get(t, "/api/v1/payments/current", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "SUCCEEDED", body["data"].(map[string]interface{})["state"])

	// History shows the seed credit and the payment debit.
	resp, body = app.get(t, "/api/v1/wallets/PI/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"].([]interface{}), 2)
}

func TestPaymentRejectedWhenUnderfunded(t *testing.T) {
	app := newTestApp(t)
	app.fund(t, 1_000_000)

	resp, body := app.post(t, "/api/v1/payments", map[string]interface{}{
		"amount": 5_000_000,
		"memo":   "Order #9",
	}, nil)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "PAY_001", body["error_code"])
}

func TestCancelFlow(t *testing.T) {
	app := newTestApp(t)
	app.fund(t, 10_000_000)
	app.pi.setCompleteLeavesPending(true)

	resp, body := app.post(t, "/api/v1/payments", map[string]interface{}{
		"amount": 2_000_000,
		"memo":   "Order #2",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "POLLING", body["data"].(map[string]interface{})["state"])

	resp, body = app.post(t, "/api/v1/payments/cancel", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "CANCELLED", body["data"].(map[string]interface{})["state"])

	// No debit happened.
	resp, body = app.get(t, "/api/v1/wallets/PI/balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(10_000_000), body["data"].(map[string]interface{})["balance"])
}

func TestPollingPicksUpRemoteCompletion(t *testing.T) {
	app := newTestApp(t)
	app.fund(t, 10_000_000)
	app.pi.setCompleteLeavesPending(true)

	resp, body := app.post(t, "/api/v1/payments", map[string]interface{}{
		"amount": 3_000_000,
		"memo":   "Order #3",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	remoteID := body["data"].(map[string]interface{})["remote_id"].(string)

	// The user approves in the Pi app; the platform flips the status.
	app.pi.setStatus(remoteID, "COMPLETED")

	require.Eventually(t, func() bool {
		return app.orch.Current().State == domain.AttemptStateSucceeded
	}, 2*time.Second, 20*time.Millisecond)

	resp, body = app.get(t, "/api/v1/wallets/PI/balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(7_000_000), body["data"].(map[string]interface{})["balance"])
}

func TestAdminDashboard(t *testing.T) {
	app := newTestApp(t)
	app.fund(t, 10_000_000)

	// One completed payment and one reward for the stats to pick up.
	resp, _ := app.post(t, "/api/v1/payments", map[string]interface{}{
		"amount": 4_000_000,
		"memo":   "Order #5",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = app.post(t, "/api/v1/rewards", map[string]interface{}{
		"amount":      500_000,
		"description": "First order bonus",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	t.Run("stats require auth", func(t *testing.T) {
		resp, body := app.get(t, "/api/v1/admin/stats", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "AUTH_003", body["error_code"])
	})

	t.Run("login rejects bad credentials", func(t *testing.T) {
		resp, body := app.post(t, "/api/v1/admin/login", map[string]string{
			"username": "admin",
			"password": "wrong",
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "AUTH_001", body["error_code"])
	})

	token := app.adminToken(t)
	auth := map[string]string{"Authorization": "Bearer " + token}

	t.Run("stats", func(t *testing.T) {
		resp, body := app.get(t, "/api/v1/admin/stats?period=day", auth)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		data := body["data"].(map[string]interface{})
		assert.Equal(t, float64(3), data["total_transactions"])
		assert.Equal(t, float64(4_000_000), data["total_sent"])
		assert.Equal(t, float64(10_000_000), data["total_received"])
		assert.Equal(t, float64(500_000), data["total_rewarded"])
	})

	t.Run("transaction listing with filters", func(t *testing.T) {
		resp, body := app.get(t, "/api/v1/admin/transactions?direction=SEND", auth)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		data := body["data"].(map[string]interface{})
		assert.Equal(t, float64(1), data["total"])
		items := data["items"].([]interface{})
		require.Len(t, items, 1)
		assert.Equal(t, "SEND", items[0].(map[string]interface{})["direction"])
	})
}

func TestHealthEndpoint(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.get(t, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestLoginRateLimit(t *testing.T) {
	app := newTestApp(t)

	// The admin_login group allows 10 requests per minute per client.
	var lastCode int
	for i := 0; i < 11; i++ {
		resp, _ := app.post(t, "/api/v1/admin/login", map[string]string{
			"username": "admin",
			"password": "wrong",
		}, nil)
		lastCode = resp.StatusCode
	}
	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}
