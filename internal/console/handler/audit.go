package handler

import (
	"net/http"
	"strconv"

	"github.com/xela07ax/spaceai-roles-modifier/internal/console/service"
	"github.com/xela07ax/spaceai-roles-modifier/internal/repository/postgres"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(s *service.AuditService) *AuditHandler {
	return &AuditHandler{service: s}
}

// GetLogs возвращает журнал решений с поддержкой фильтрации
// GET /v1/audit?invoker=...&status=...&limit=...
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := postgres.AuditFilter{
		Invoker: q.Get("invoker"),
		Status:  q.Get("status"),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, errBadRequest)
			return
		}
		f.Limit = n
	}

	logs, err := h.service.FetchLogs(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
