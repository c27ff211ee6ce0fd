package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"callcenter-service/internal/domain"
	"callcenter-service/pkg/xerrors"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubAuth map[string]domain.Principal

func (s stubAuth) Authenticate(_ context.Context, token string) (*domain.Principal, error) {
	if token == "store-down" {
		return nil, errors.New("dial tcp 10.0.0.5:5432: connection refused")
	}
	p, ok := s[token]
	if !ok {
		return nil, xerrors.ErrInvalidToken
	}
	return &p, nil
}

func TestRequireAndRequireRole(t *testing.T) {
	am := NewAuthMiddleware(stubAuth{
		"admin-token": {AccountID: "a1", Role: domain.RoleAdmin},
		"user-token":  {AccountID: "u1", Role: domain.RoleUser},
	}, zap.NewNop())

	var seen domain.Principal
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := am.Require(am.RequireRole(domain.RoleAdmin)(inner))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"malformed scheme", "Token admin-token", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"account lookup fails", "Bearer store-down", http.StatusInternalServerError},
		{"wrong role", "Bearer user-token", http.StatusForbidden},
		{"admin", "Bearer admin-token", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
	assert.Equal(t, "a1", seen.AccountID)
}
