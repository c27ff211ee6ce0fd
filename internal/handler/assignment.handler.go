package handler

import (
	"net/http"

	"callcenter-service/pkg/response"
)

type AssignRequest struct {
	AccountID  string   `json:"accountId"`
	ContactIDs []string `json:"contactIds"`
}

type UnassignRequest struct {
	ContactIDs []string `json:"contactIds"`
}

func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := decode(r, w, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.assign.Assign(r.Context(), principal(r), req.AccountID, req.ContactIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

func (h *Handler) HandleUnassign(w http.ResponseWriter, r *http.Request) {
	var req UnassignRequest
	if err := decode(r, w, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.assign.Unassign(r.Context(), principal(r), req.ContactIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}
