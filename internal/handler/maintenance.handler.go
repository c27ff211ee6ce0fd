package handler

import (
	"net/http"

	"callcenter-service/pkg/response"

	"go.uber.org/zap"
)

func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	report, err := h.reconcile.Run(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("manual reconcile", zap.String("actor_id", p.AccountID), zap.String("run_id", report.RunID))
	response.JSON(w, r, http.StatusOK, report)
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
