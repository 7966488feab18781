package handler

import (
	"net/http"

	"github.com/xela07ax/spaceai-roles-modifier/internal/console/service"
	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
)

type AuthHandler struct {
	service *service.AuthService
}

func NewAuthHandler(s *service.AuthService) *AuthHandler {
	return &AuthHandler{service: s}
}

// Login выдает RS256 токен консоли.
// POST /auth/token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.service.GenerateToken(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, service.ErrInvalidCredentials)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
