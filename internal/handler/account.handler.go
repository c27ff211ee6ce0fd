package handler

import (
	"net/http"

	"callcenter-service/pkg/response"
)

func (h *Handler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := h.query.ListAccounts(r.Context(), r.URL.Query().Get("role"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, list)
}

func (h *Handler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.query.GetAccount(r.Context(), principal(r), pathID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, acc)
}

func (h *Handler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	res, err := h.accounts.Delete(r.Context(), principal(r), pathID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

// HandleAccountContacts lists the account's active assignments.
func (h *Handler) HandleAccountContacts(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := h.assign.ListAssigned(r.Context(), principal(r), pathID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

func (h *Handler) HandleAccountStats(w http.ResponseWriter, r *http.Request) {
	view, err := h.query.AccountStats(r.Context(), principal(r), pathID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, view)
}
