package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"callcenter-service/pkg/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type errorBody struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message"`
	Code    string                 `json:"code"`
	Detail  map[string]interface{} `json:"detail"`
}

func writeErrorFor(t *testing.T, production bool, err error) (int, errorBody) {
	t.Helper()
	h := NewHandler(nil, nil, nil, nil, nil, nil, nil, zap.NewNop(), production)
	rec := httptest.NewRecorder()
	h.writeError(rec, httptest.NewRequest(http.MethodPost, "/assignments", nil), err)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestWriteErrorPartialAssignmentWinsOverWrappedCause(t *testing.T) {
	causes := []error{
		xerrors.ErrAccountNotFound,
		xerrors.ErrConflict,
		fmt.Errorf("bump counters: %w", xerrors.ErrForbidden),
		fmt.Errorf("connection reset"),
	}
	for _, cause := range causes {
		t.Run(cause.Error(), func(t *testing.T) {
			code, body := writeErrorFor(t, true, &xerrors.PartialAssignmentError{
				Op:      "assign",
				Applied: []string{"c1", "c2"},
				Err:     cause,
			})
			assert.Equal(t, http.StatusInternalServerError, code)
			assert.Equal(t, "partial_assignment", body.Code)
			assert.Equal(t, "assign", body.Detail["op"])
			assert.Equal(t, []interface{}{"c1", "c2"}, body.Detail["appliedContactIds"])
		})
	}
}

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
		code string
	}{
		{xerrors.Invalid("contactIds", "must contain at least one id"), http.StatusBadRequest, "validation_error"},
		{xerrors.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{xerrors.ErrInvalidToken, http.StatusUnauthorized, "unauthenticated"},
		{xerrors.ErrForbidden, http.StatusForbidden, "forbidden"},
		{xerrors.ErrAccountNotFound, http.StatusNotFound, "not_found"},
		{xerrors.ErrAccountHasContacts, http.StatusConflict, "conflict"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			code, body := writeErrorFor(t, true, tc.err)
			assert.Equal(t, tc.want, code)
			assert.Equal(t, tc.code, body.Code)
		})
	}
}
