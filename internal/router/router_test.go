package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"callcenter-service/internal/domain"
	"callcenter-service/internal/events"
	"callcenter-service/internal/handler"
	authmw "callcenter-service/internal/middleware"
	"callcenter-service/internal/repository"
	"callcenter-service/internal/repository/memory"
	"callcenter-service/internal/usecase"
	"callcenter-service/pkg/id"
	"callcenter-service/pkg/jwtutil"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	adminEmail    = "admin@callcenter.test"
	adminPassword = "admin-password-1"
	agentPassword = "agent-password-1"
)

type appendFailer struct {
	repository.AccountRepository
	fail bool
}

func (a *appendFailer) AppendAssignments(ctx context.Context, accountID string, ids []string, at time.Time) error {
	if a.fail {
		return errors.New("account store timeout")
	}
	return a.AccountRepository.AppendAssignments(ctx, accountID, ids, at)
}

type testServer struct {
	*httptest.Server
	accounts *appendFailer
}

func newTestServer(t *testing.T, production bool) *testServer {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore()
	contacts := store.Contacts()
	accounts := &appendFailer{AccountRepository: store}
	pub := events.NopPublisher{}

	sf, err := id.NewSnowflake(2)
	require.NoError(t, err)
	gen, ver, err := jwtutil.LoadAndBuild(jwtutil.JWTConfig{
		Secret:   strings.Repeat("k", 32),
		Issuer:   "callcenter-test",
		Audience: "callcenter-test-clients",
		TTL:      time.Hour,
	})
	require.NoError(t, err)

	authUC := usecase.NewAuthUsecase(accounts, gen, ver, sf, nil, logger)
	assignUC := usecase.NewAssignmentUsecase(accounts, contacts, pub, logger)
	h := handler.NewHandler(
		authUC,
		assignUC,
		usecase.NewCallStatusUsecase(accounts, contacts, pub, logger),
		usecase.NewQueryUsecase(accounts, contacts, logger),
		usecase.NewContactUsecase(contacts, sf, logger),
		usecase.NewAccountUsecase(accounts, assignUC, authUC, pub, logger),
		usecase.NewReconcileUsecase(accounts, contacts, pub, logger),
		logger,
		production,
	)
	require.NoError(t, authUC.SeedAdmin(context.Background(), adminEmail, adminPassword, "Admin"))

	r := chi.NewRouter()
	SetupRoutes(r, h, authmw.NewAuthMiddleware(authUC, logger), nil, Options{}, logger)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, accounts: accounts}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	} else if len(raw) > 0 && raw[0] == '[' {
		var list []interface{}
		require.NoError(t, json.Unmarshal(raw, &list))
		out["list"] = list
	}
	return resp.StatusCode, out
}

func (s *testServer) login(t *testing.T, email, password string) (string, string) {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, code, body)
	acc := body["account"].(map[string]interface{})
	return body["token"].(string), acc["id"].(string)
}

func (s *testServer) register(t *testing.T, adminToken, name, email string) string {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/auth/register", adminToken, map[string]string{
		"name": name, "email": email, "password": agentPassword,
	})
	require.Equal(t, http.StatusCreated, code, body)
	return body["account"].(map[string]interface{})["id"].(string)
}

func (s *testServer) createContact(t *testing.T, adminToken string, serial int, phone string) string {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/contacts", adminToken, map[string]interface{}{
		"serialNo": serial, "pmNo": "PM-" + phone, "enrollmentNo": "EN-" + phone,
		"name": "Caller " + phone, "phones": []string{phone}, "address": "Nairobi",
	})
	require.Equal(t, http.StatusCreated, code, body)
	return body["id"].(string)
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	s := newTestServer(t, false)

	code, body := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	resp, err := s.Client().Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "callcenter_http_requests_total")
}

func TestLoginErrors(t *testing.T) {
	s := newTestServer(t, false)

	code, body := s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": adminEmail, "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid_credentials", body["code"])

	code, body = s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "nobody@callcenter.test", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid_credentials", body["code"])

	code, _ = s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": adminEmail})
	assert.Equal(t, http.StatusBadRequest, code)

	req, _ := http.NewRequest(http.MethodPost, s.URL+"/auth/login", strings.NewReader("{not json"))
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, false)

	for _, path := range []string{"/auth/me", "/contacts", "/accounts", "/accounts/x/stats"} {
		code, body := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, code, path)
		assert.Equal(t, "unauthenticated", body["code"], path)
	}
	code, _ := s.do(t, http.MethodGet, "/contacts", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAssignmentFlowOverHTTP(t *testing.T) {
	s := newTestServer(t, false)
	admin, adminID := s.login(t, adminEmail, adminPassword)
	aliceID := s.register(t, admin, "Alice", "alice@callcenter.test")
	bobID := s.register(t, admin, "Bob", "bob@callcenter.test")
	alice, _ := s.login(t, "alice@callcenter.test", agentPassword)
	bob, _ := s.login(t, "bob@callcenter.test", agentPassword)

	c1 := s.createContact(t, admin, 1, "+254700000001")
	c2 := s.createContact(t, admin, 2, "+254700000002")
	c3 := s.createContact(t, admin, 3, "+254700000003")

	// users cannot assign
	code, _ := s.do(t, http.MethodPost, "/assignments", alice, map[string]interface{}{"accountId": aliceID, "contactIds": []string{c1}})
	assert.Equal(t, http.StatusForbidden, code)

	code, body := s.do(t, http.MethodPost, "/assignments", admin, map[string]interface{}{
		"accountId": aliceID, "contactIds": []string{c1, c2, "nope"},
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 2, body["assignedCount"])
	assert.EqualValues(t, 1, body["skippedCount"])

	code, body = s.do(t, http.MethodPost, "/assignments", admin, map[string]interface{}{
		"accountId": bobID, "contactIds": []string{c1, c3},
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 1, body["assignedCount"])

	// admins are not assignable
	code, body = s.do(t, http.MethodPost, "/assignments", admin, map[string]interface{}{"accountId": adminID, "contactIds": []string{c2}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", body["code"])

	// alice sees only her contacts whatever filter she sends
	code, body = s.do(t, http.MethodGet, "/contacts?filter=all", alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["pagination"].(map[string]interface{})["total"])

	code, body = s.do(t, http.MethodGet, "/accounts/"+aliceID+"/contacts?page=1&limit=1", alice, nil)
	require.Equal(t, http.StatusOK, code)
	p := body["pagination"].(map[string]interface{})
	assert.EqualValues(t, 2, p["total"])
	assert.EqualValues(t, 2, p["totalPages"])
	assert.Equal(t, true, p["hasMore"])

	code, _ = s.do(t, http.MethodGet, "/accounts/"+aliceID+"/contacts", bob, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, http.MethodGet, "/accounts/"+aliceID+"/contacts?limit=abc", alice, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	// phone status
	code, _ = s.do(t, http.MethodPut, "/contacts/"+c1+"/phone-status", bob, map[string]interface{}{"phoneNumber": "+254700000001", "called": true})
	assert.Equal(t, http.StatusForbidden, code)

	code, body = s.do(t, http.MethodPut, "/contacts/"+c1+"/phone-status", alice, map[string]interface{}{"phoneNumber": "+254700000001", "called": true})
	require.Equal(t, http.StatusOK, code, body)
	statuses := body["phoneStatuses"].([]interface{})
	require.Len(t, statuses, 1)
	assert.Equal(t, true, statuses[0].(map[string]interface{})["called"])

	code, _ = s.do(t, http.MethodPut, "/contacts/"+c1+"/phone-status", alice, map[string]interface{}{"phoneNumber": "+254799999999", "called": true})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPut, "/contacts/"+c1+"/phone-status", alice, map[string]interface{}{"phoneNumber": "+254700000001"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodGet, "/accounts/"+aliceID+"/stats", alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["assignedContacts"])
	assert.EqualValues(t, 1, body["totalCallsMade"])
	assert.EqualValues(t, 1, body["uniqueContactsCalled"])
	assert.EqualValues(t, 1, body["pending"])

	code, body = s.do(t, http.MethodGet, "/accounts?role=user", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["list"], 2)

	// unassign takes the owner from the contact
	code, body = s.do(t, http.MethodPost, "/assignments/remove", admin, map[string]interface{}{"contactIds": []string{c1, c3}})
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 2, body["unassignedCount"])
	assert.EqualValues(t, 2, body["affectedAccountCount"])

	code, body = s.do(t, http.MethodGet, "/contacts/stats", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["assigned"])
}

func TestAccountDeletionOverHTTP(t *testing.T) {
	s := newTestServer(t, false)
	admin, adminID := s.login(t, adminEmail, adminPassword)
	aliceID := s.register(t, admin, "Alice", "alice@callcenter.test")
	alice, _ := s.login(t, "alice@callcenter.test", agentPassword)
	c1 := s.createContact(t, admin, 1, "+254700000001")

	code, _ := s.do(t, http.MethodPost, "/assignments", admin, map[string]interface{}{"accountId": aliceID, "contactIds": []string{c1}})
	require.Equal(t, http.StatusOK, code)

	code, body := s.do(t, http.MethodDelete, "/accounts/"+adminID, admin, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", body["code"])

	code, _ = s.do(t, http.MethodDelete, "/accounts/"+aliceID, alice, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = s.do(t, http.MethodDelete, "/accounts/"+aliceID, admin, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 1, body["releasedContacts"])

	// the deleted account's token no longer authenticates
	code, _ = s.do(t, http.MethodGet, "/auth/me", alice, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = s.do(t, http.MethodGet, "/contacts/"+c1, admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["isAssigned"])

	code, _ = s.do(t, http.MethodGet, "/contacts/does-not-exist", admin, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRegisterConflictAndValidation(t *testing.T) {
	s := newTestServer(t, false)
	admin, _ := s.login(t, adminEmail, adminPassword)
	s.register(t, admin, "Alice", "alice@callcenter.test")

	code, body := s.do(t, http.MethodPost, "/auth/register", admin, map[string]string{
		"name": "Alice Again", "email": "ALICE@callcenter.test", "password": agentPassword,
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", body["code"])

	code, body = s.do(t, http.MethodPost, "/auth/register", admin, map[string]string{
		"name": "Short", "email": "short@callcenter.test", "password": "abc",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, map[string]interface{}{"field": "password"}, body["detail"])
}

func TestProductionHidesErrorDetail(t *testing.T) {
	s := newTestServer(t, true)
	admin, _ := s.login(t, adminEmail, adminPassword)

	code, body := s.do(t, http.MethodPost, "/auth/register", admin, map[string]string{
		"name": "Short", "email": "short@callcenter.test", "password": "abc",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, body["message"])
	_, hasDetail := body["detail"]
	assert.False(t, hasDetail)
}

func TestPartialAssignmentThenReconcile(t *testing.T) {
	s := newTestServer(t, false)
	admin, _ := s.login(t, adminEmail, adminPassword)
	aliceID := s.register(t, admin, "Alice", "alice@callcenter.test")
	c1 := s.createContact(t, admin, 1, "+254700000001")

	s.accounts.fail = true
	code, body := s.do(t, http.MethodPost, "/assignments", admin, map[string]interface{}{"accountId": aliceID, "contactIds": []string{c1}})
	require.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "partial_assignment", body["code"])
	detail := body["detail"].(map[string]interface{})
	assert.Equal(t, []interface{}{c1}, detail["appliedContactIds"])
	s.accounts.fail = false

	code, body = s.do(t, http.MethodPost, "/maintenance/reconcile", admin, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 1, body["entriesRestored"])

	code, body = s.do(t, http.MethodGet, "/accounts/"+aliceID+"/stats", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["assignedContacts"])
}

func TestUsersCannotReachAdminRoutes(t *testing.T) {
	s := newTestServer(t, false)
	admin, _ := s.login(t, adminEmail, adminPassword)
	s.register(t, admin, "Alice", "alice@callcenter.test")
	alice, aliceID := s.login(t, "alice@callcenter.test", agentPassword)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/accounts"},
		{http.MethodPost, "/contacts"},
		{http.MethodGet, "/contacts/stats"},
		{http.MethodPost, "/assignments/remove"},
		{http.MethodPost, "/maintenance/reconcile"},
		{http.MethodPost, "/auth/register"},
	} {
		code, _ := s.do(t, tc.method, tc.path, alice, map[string]string{})
		assert.Equal(t, http.StatusForbidden, code, tc.path)
	}

	code, body := s.do(t, http.MethodGet, "/auth/me", alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, aliceID, body["id"])
	assert.Equal(t, string(domain.RoleUser), body["role"])
}
