package handler

import (
	"net/http"

	"github.com/xela07ax/spaceai-roles-modifier/internal/console/service"
)

type InvokerHandler struct {
	service *service.InvokerService
}

func NewInvokerHandler(s *service.InvokerService) *InvokerHandler {
	return &InvokerHandler{service: s}
}

// Revoke мгновенно блокирует invoker'а (Kill-switch). Тело с reason необязательно.
// POST /v1/invokers/{address}/revoke
func (h *InvokerHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	invoker, err := addressParam(r, "address")
	if err != nil {
		writeError(w, err)
		return
	}
	var req RevokeRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	if err := h.service.Revoke(r.Context(), invoker, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /v1/invokers/{address}/revoke
func (h *InvokerHandler) Restore(w http.ResponseWriter, r *http.Request) {
	invoker, err := addressParam(r, "address")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.Restore(r.Context(), invoker); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /v1/invokers/{address}/simulation
func (h *InvokerHandler) SetSimulation(w http.ResponseWriter, r *http.Request) {
	invoker, err := addressParam(r, "address")
	if err != nil {
		writeError(w, err)
		return
	}
	var req SimulationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.SetSimulation(r.Context(), invoker, req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
