package handler

import (
	"net/http"

	"callcenter-service/internal/domain"
	"callcenter-service/pkg/response"
	"callcenter-service/pkg/xerrors"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, w, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		h.writeError(w, r, xerrors.Invalid("", "email and password are required"))
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

// HandleRegister creates an account. Admin only.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in domain.RegisterInput
	if err := decode(r, w, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	acc, err := h.auth.Register(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, map[string]interface{}{"account": acc.Summary()})
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	acc, err := h.auth.Me(r.Context(), principal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, acc)
}
