package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearbrook/clinic-engine/api"
	"github.com/clearbrook/clinic-engine/auth"
	"github.com/clearbrook/clinic-engine/billing"
	"github.com/clearbrook/clinic-engine/config"
	"github.com/clearbrook/clinic-engine/notify"
	"github.com/clearbrook/clinic-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testAPI struct {
	server *httptest.Server
	store  *sqlite.Store
	token  string
}

func newTestAPI(t *testing.T) *testAPI {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()

	hash, err := auth.HashPassword("admin-pass-123")
	require.NoError(t, err)
	require.NoError(t, store.SaveAccount(context.Background(), auth.Account{
		Email:          "admin@example.com",
		PasswordHash:   hash,
		Role:           "admin",
		FailedAttempts: auth.AttemptCeiling,
	}))

	queue := notify.NewQueue(notify.LogSender{}, cfg.OrgName)
	queue.Start()
	t.Cleanup(queue.Stop)

	handler := api.NewHandler(store, cfg, queue)
	server := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(server.Close)

	a := &testAPI{server: server, store: store}
	a.token = a.login(t, "admin@example.com", "admin-pass-123")
	return a
}

func (a *testAPI) login(t *testing.T, email, password string) string {
	status, body := a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	require.Equal(t, http.StatusOK, status, "login failed: %s", body)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Token
}

func (a *testAPI) do(t *testing.T, method, path, token string, payload any) (int, []byte) {
	var body *bytes.Buffer = bytes.NewBuffer(nil)
	if payload != nil {
		require.NoError(t, json.NewEncoder(body).Encode(payload))
	}

	req, err := http.NewRequest(method, a.server.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out.Bytes()
}

// =============================================================================
// AUTH BOUNDARY
// =============================================================================

func TestAPI_RequiresBearerToken(t *testing.T) {
	a := newTestAPI(t)

	status, _ := a.do(t, http.MethodGet, "/api/clients/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = a.do(t, http.MethodGet, "/api/clients/", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = a.do(t, http.MethodGet, "/api/clients/", a.token, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestAPI_LockedAccountReportsRemaining(t *testing.T) {
	a := newTestAPI(t)

	hash, err := auth.HashPassword("user-pass-123")
	require.NoError(t, err)
	require.NoError(t, a.store.SaveAccount(context.Background(), auth.Account{
		Email:          "user@example.com",
		PasswordHash:   hash,
		FailedAttempts: auth.AttemptCeiling,
	}))

	for i := 0; i < 2; i++ {
		status, _ := a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "user@example.com", "password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, status)
	}

	status, body := a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "user@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, string(body), "locked")

	// Correct password rejected while locked
	status, _ = a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "user@example.com", "password": "user-pass-123",
	})
	assert.Equal(t, http.StatusForbidden, status)
}

// =============================================================================
// SESSION ENDPOINTS
// =============================================================================

func TestAPI_SessionOverlapRejectedWith409(t *testing.T) {
	a := newTestAPI(t)

	first := map[string]string{
		"employee_id": "emp-1", "client_id": "client-1", "activity": "ABA Therapy",
		"date": "2025-11-03", "start": "09:00", "end": "11:00",
	}
	status, _ := a.do(t, http.MethodPost, "/api/sessions/", a.token, first)
	require.Equal(t, http.StatusCreated, status)

	overlapping := map[string]string{
		"employee_id": "emp-1", "client_id": "client-2", "activity": "ABA Therapy",
		"date": "2025-11-03", "start": "10:00", "end": "12:00",
	}
	status, body := a.do(t, http.MethodPost, "/api/sessions/", a.token, overlapping)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(body), "overlaps")

	backToBack := map[string]string{
		"employee_id": "emp-1", "client_id": "client-2", "activity": "ABA Therapy",
		"date": "2025-11-03", "start": "11:00", "end": "12:00",
	}
	status, _ = a.do(t, http.MethodPost, "/api/sessions/", a.token, backToBack)
	assert.Equal(t, http.StatusCreated, status)
}

// =============================================================================
// INVOICE ENDPOINTS
// =============================================================================

func TestAPI_InvoiceGenerationRoundTrip(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	require.NoError(t, a.store.SaveClient(ctx, billing.Client{
		ID: "client-1", FirstName: "Pat", GuardianEmail: "guardian@example.com",
		TherapyRate:     decimal.RequireFromString("50.00"),
		SupervisionRate: decimal.RequireFromString("80.00"),
	}))
	require.NoError(t, a.store.SaveActivity(ctx, billing.Activity{
		Name: "ABA Therapy", Category: billing.CategoryTherapy,
	}))

	session := map[string]string{
		"employee_id": "emp-1", "client_id": "client-1", "activity": "ABA Therapy",
		"date": "2025-11-03", "start": "09:00", "end": "11:00",
	}
	status, _ := a.do(t, http.MethodPost, "/api/sessions/", a.token, session)
	require.Equal(t, http.StatusCreated, status)

	status, body := a.do(t, http.MethodPost, "/api/invoices/generate", a.token, map[string]string{
		"client_id": "client-1", "from": "2025-11-01", "to": "2025-11-30",
	})
	require.Equal(t, http.StatusCreated, status, "generate failed: %s", body)

	var resp struct {
		Invoice struct {
			Number string `json:"number"`
			Total  string `json:"total"`
		} `json:"invoice"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "100.00", resp.Invoice.Total)
	assert.Contains(t, resp.Invoice.Number, "INV"+time.Now().Format("200601"))

	// Same period again: everything already swept
	status, _ = a.do(t, http.MethodPost, "/api/invoices/generate", a.token, map[string]string{
		"client_id": "client-1", "from": "2025-11-01", "to": "2025-11-30",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodDelete, "/api/invoices/"+resp.Invoice.Number, a.token, nil)
	assert.Equal(t, http.StatusNoContent, status)
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

func TestAPI_AdminRoutesRequireAdminRole(t *testing.T) {
	a := newTestAPI(t)

	hash, err := auth.HashPassword("user-pass-123")
	require.NoError(t, err)
	require.NoError(t, a.store.SaveAccount(context.Background(), auth.Account{
		Email:          "user@example.com",
		PasswordHash:   hash,
		Role:           "user",
		FailedAttempts: auth.AttemptCeiling,
	}))
	userToken := a.login(t, "user@example.com", "user-pass-123")

	status, _ := a.do(t, http.MethodGet, "/api/admin/users/", userToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = a.do(t, http.MethodGet, "/api/admin/users/", a.token, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestAPI_ActivationFlow(t *testing.T) {
	a := newTestAPI(t)

	status, body := a.do(t, http.MethodPost, "/api/admin/users/", a.token, map[string]string{
		"email": "new@example.com",
	})
	require.Equal(t, http.StatusCreated, status)

	var created struct {
		ActivationKey string `json:"activation_key"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.ActivationKey)

	// Cannot log in before activating
	status, _ = a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "new@example.com", "password": "whatever-123",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = a.do(t, http.MethodPost, "/api/auth/activate", "", map[string]string{
		"email": "new@example.com", "activation_key": created.ActivationKey, "password": "fresh-pass-123",
	})
	require.Equal(t, http.StatusNoContent, status)

	a.login(t, "new@example.com", "fresh-pass-123")
}

