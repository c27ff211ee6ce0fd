package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"callcenter-service/internal/domain"
	"callcenter-service/internal/middleware"
	"callcenter-service/internal/usecase"
	"callcenter-service/pkg/response"
	"callcenter-service/pkg/xerrors"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	auth       *usecase.AuthUsecase
	assign     *usecase.AssignmentUsecase
	calls      *usecase.CallStatusUsecase
	query      *usecase.QueryUsecase
	contacts   *usecase.ContactUsecase
	accounts   *usecase.AccountUsecase
	reconcile  *usecase.ReconcileUsecase
	logger     *zap.Logger
	production bool
}

func NewHandler(
	auth *usecase.AuthUsecase,
	assign *usecase.AssignmentUsecase,
	calls *usecase.CallStatusUsecase,
	query *usecase.QueryUsecase,
	contacts *usecase.ContactUsecase,
	accounts *usecase.AccountUsecase,
	reconcile *usecase.ReconcileUsecase,
	logger *zap.Logger,
	production bool,
) *Handler {
	return &Handler{
		auth:       auth,
		assign:     assign,
		calls:      calls,
		query:      query,
		contacts:   contacts,
		accounts:   accounts,
		reconcile:  reconcile,
		logger:     logger,
		production: production,
	}
}

// decode reads a JSON body into v.
func decode(r *http.Request, w http.ResponseWriter, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := render.DecodeJSON(r.Body, v); err != nil {
		if errors.Is(err, io.EOF) {
			return xerrors.Invalid("body", "request body is empty")
		}
		return xerrors.Invalid("body", "invalid JSON body")
	}
	return nil
}

func principal(r *http.Request) domain.Principal {
	p, _ := middleware.GetPrincipal(r.Context())
	return p
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, xerrors.Invalid(name, "must be a number")
	}
	if n < 1 {
		return 0, xerrors.Invalid(name, "must be >= 1")
	}
	return n, nil
}

func pageRequest(r *http.Request) (domain.PageRequest, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return domain.PageRequest{}, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return domain.PageRequest{}, err
	}
	return domain.PageRequest{
		Page:     page,
		PageSize: limit,
		Search:   strings.TrimSpace(r.URL.Query().Get("search")),
	}, nil
}

func pathID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}

// writeError maps a usecase error to its HTTP status and body.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve      *xerrors.ValidationError
		partial *xerrors.PartialAssignmentError
	)
	switch {
	case errors.As(err, &partial):
		h.logger.Error("partial assignment failure",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("op", partial.Op),
			zap.Strings("applied", partial.Applied),
			zap.Error(partial.Err))
		response.ErrorWithDetail(w, r, http.StatusInternalServerError,
			fmt.Sprintf("%s partially applied; reconciliation will repair account state", partial.Op),
			"partial_assignment",
			map[string]interface{}{"op": partial.Op, "appliedContactIds": partial.Applied})
	case errors.As(err, &ve):
		response.ErrorWithDetail(w, r, http.StatusBadRequest, ve.Error(), "validation_error", h.detail(map[string]string{"field": ve.Field}))
	case errors.Is(err, xerrors.ErrValidation):
		response.ErrorWithDetail(w, r, http.StatusBadRequest, err.Error(), "validation_error", nil)
	case errors.Is(err, xerrors.ErrInvalidCredentials):
		response.ErrorWithDetail(w, r, http.StatusUnauthorized, "invalid credentials", "invalid_credentials", nil)
	case errors.Is(err, xerrors.ErrUnauthenticated):
		response.ErrorWithDetail(w, r, http.StatusUnauthorized, "authentication required", "unauthenticated", nil)
	case errors.Is(err, xerrors.ErrForbidden):
		response.ErrorWithDetail(w, r, http.StatusForbidden, forbiddenMessage(err), "forbidden", nil)
	case errors.Is(err, xerrors.ErrNotFound):
		response.ErrorWithDetail(w, r, http.StatusNotFound, err.Error(), "not_found", nil)
	case errors.Is(err, xerrors.ErrConflict):
		response.ErrorWithDetail(w, r, http.StatusConflict, err.Error(), "conflict", nil)
	default:
		h.logger.Error("request failed",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		response.ErrorWithDetail(w, r, http.StatusInternalServerError, "internal server error", "internal", h.detail(err.Error()))
	}
}

// detail drops diagnostic payloads in production.
func (h *Handler) detail(v interface{}) interface{} {
	if h.production {
		return nil
	}
	return v
}

func forbiddenMessage(err error) string {
	if errors.Is(err, xerrors.ErrNotAssignee) || errors.Is(err, xerrors.ErrSelfDelete) {
		return err.Error()
	}
	return "forbidden"
}
