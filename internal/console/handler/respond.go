package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xela07ax/spaceai-roles-modifier/internal/console/service"
	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// errBadRequest: не удалось разобрать запрос (тело, путь, query).
var errBadRequest = errors.New("bad request")

// decodeJSON читает тело строго (неизвестные поля запрещены) и прогоняет validator.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError переводит ошибку сервиса в HTTP-ответ.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "BadRequest", "reason": err.Error()})
	case errors.Is(err, domain.ErrInvalidConfiguration):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": domain.Reason(err), "reason": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		// не уточняем, что именно неверно (логин или пароль) для защиты от перебора
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal"})
	}
}

func roleParam(r *http.Request) (uint16, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, "role"), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: role must be 0..65535", errBadRequest)
	}
	return uint16(v), nil
}

func addressParam(r *http.Request, name string) (common.Address, error) {
	s := chi.URLParam(r, name)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not an address", errBadRequest, name, s)
	}
	return common.HexToAddress(s), nil
}

func selectorParam(r *http.Request) (domain.Selector, error) {
	sel, err := domain.ParseSelector(chi.URLParam(r, "selector"))
	if err != nil {
		return sel, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return sel, nil
}

func indexParam(r *http.Request) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: index must be a non-negative integer", errBadRequest)
	}
	return v, nil
}

// functionPath достает (role, target, selector) из пути .../targets/{target}/functions/{selector}.
func functionPath(r *http.Request) (uint16, common.Address, domain.Selector, error) {
	role, err := roleParam(r)
	if err != nil {
		return 0, common.Address{}, domain.Selector{}, err
	}
	target, err := addressParam(r, "target")
	if err != nil {
		return 0, common.Address{}, domain.Selector{}, err
	}
	sel, err := selectorParam(r)
	return role, target, sel, err
}
