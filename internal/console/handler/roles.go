package handler

import (
	"net/http"

	"github.com/xela07ax/spaceai-roles-modifier/internal/console/service"
	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
)

type RoleHandler struct {
	service *service.RoleService
}

func NewRoleHandler(s *service.RoleService) *RoleHandler {
	return &RoleHandler{service: s}
}

// Get возвращает конфигурацию роли.
// GET /v1/roles/{role}
func (h *RoleHandler) Get(w http.ResponseWriter, r *http.Request) {
	role, err := roleParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := h.service.GetRole(r.Context(), role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// PUT /v1/roles/{role}/targets/{target}
func (h *RoleHandler) SetTarget(w http.ResponseWriter, r *http.Request) {
	role, err := roleParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	target, err := addressParam(r, "target")
	if err != nil {
		writeError(w, err)
		return
	}
	var req TargetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	tp := domain.TargetPermission{RoleID: role, Target: target, Clearance: req.Clearance, Options: req.Options}
	if err := h.service.SetTarget(r.Context(), tp); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /v1/roles/{role}/targets/{target}
func (h *RoleHandler) RevokeTarget(w http.ResponseWriter, r *http.Request) {
	role, err := roleParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	target, err := addressParam(r, "target")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.RevokeTarget(r.Context(), role, target); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetFunction полностью заменяет правила функции: PUT .../functions/{selector}.
func (h *RoleHandler) SetFunction(w http.ResponseWriter, r *http.Request) {
	role, target, sel, err := functionPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req FunctionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	fp := domain.FunctionPermission{
		RoleID:     role,
		Target:     target,
		Selector:   sel,
		Options:    req.Options,
		Parameters: req.Parameters,
	}
	if err := h.service.SetFunction(r.Context(), fp); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE .../functions/{selector}
func (h *RoleHandler) RevokeFunction(w http.ResponseWriter, r *http.Request) {
	role, target, sel, err := functionPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.RevokeFunction(r.Context(), role, target, sel); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT .../functions/{selector}/parameters/{index}
func (h *RoleHandler) ScopeParameter(w http.ResponseWriter, r *http.Request) {
	role, target, sel, err := functionPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	index, err := indexParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req ParameterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rule := domain.ParameterRule{Scoped: true, Type: req.Type, Comparison: req.Comparison, CompareValue: req.CompareValue}
	if err := h.service.ScopeParameter(r.Context(), role, target, sel, index, rule); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE .../functions/{selector}/parameters/{index}
func (h *RoleHandler) UnscopeParameter(w http.ResponseWriter, r *http.Request) {
	role, target, sel, err := functionPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	index, err := indexParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.UnscopeParameter(r.Context(), role, target, sel, index); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /v1/invokers/{address}/roles
func (h *RoleHandler) AssignRoles(w http.ResponseWriter, r *http.Request) {
	invoker, err := addressParam(r, "address")
	if err != nil {
		writeError(w, err)
		return
	}
	var req AssignRolesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.AssignRoles(r.Context(), invoker, req.Roles, req.MemberOf); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /v1/invokers/{address}/default-role
func (h *RoleHandler) SetDefaultRole(w http.ResponseWriter, r *http.Request) {
	invoker, err := addressParam(r, "address")
	if err != nil {
		writeError(w, err)
		return
	}
	var req DefaultRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.SetDefaultRole(r.Context(), invoker, *req.Role); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
