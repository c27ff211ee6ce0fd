package handler

import (
	"net/http"
	"strings"

	"callcenter-service/internal/domain"
	"callcenter-service/pkg/response"
	"callcenter-service/pkg/xerrors"
)

type PhoneStatusRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Called      *bool  `json:"called"`
}

func (h *Handler) HandleListContacts(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter, ok := domain.ParseAssignmentFilter(r.URL.Query().Get("filter"))
	if !ok {
		h.writeError(w, r, xerrors.Invalid("filter", "must be one of all, assigned, unassigned, byAccount"))
		return
	}
	page, err := h.query.ListContacts(r.Context(), principal(r), domain.ContactQuery{
		PageRequest: req,
		Filter:      filter,
		AccountID:   strings.TrimSpace(r.URL.Query().Get("accountId")),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

func (h *Handler) HandleCreateContact(w http.ResponseWriter, r *http.Request) {
	var in domain.NewContact
	if err := decode(r, w, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.contacts.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, c)
}

func (h *Handler) HandleContactStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.query.ContactStats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, st)
}

func (h *Handler) HandleGetContact(w http.ResponseWriter, r *http.Request) {
	c, err := h.query.GetContact(r.Context(), principal(r), pathID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, c)
}

func (h *Handler) HandleSetPhoneStatus(w http.ResponseWriter, r *http.Request) {
	var req PhoneStatusRequest
	if err := decode(r, w, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Called == nil {
		h.writeError(w, r, xerrors.Invalid("called", "is required"))
		return
	}
	c, err := h.calls.SetCalled(r.Context(), principal(r), pathID(r), req.PhoneNumber, *req.Called)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, c)
}
