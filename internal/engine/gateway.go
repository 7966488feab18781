package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-roles-modifier/internal/abi"
	"github.com/xela07ax/spaceai-roles-modifier/internal/audit"
	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
	"github.com/xela07ax/spaceai-roles-modifier/internal/policy"
)

// ExecutionProvider исполняет уже разрешенный вызов от имени avatar.
type ExecutionProvider interface {
	Execute(ctx context.Context, call domain.Call) (domain.ExecutionResult, error)
}

// RevocationChecker отвечает, отключен ли invoker.
type RevocationChecker interface {
	IsRevoked(invoker common.Address) bool
}

// SimulationChecker отвечает, работает ли invoker в dry-run.
type SimulationChecker interface {
	IsSimulated(invoker common.Address) bool
}

// ExecRequest описывает запрос invoker'а. Без Role и DefaultRole проверяются все роли (OR).
// Явная Role приоритетнее DefaultRole.
type ExecRequest struct {
	Call        domain.Call
	Role        *uint16
	DefaultRole bool
}

// ExecResponse несет ответ avatar и роль, которая пропустила вызов.
type ExecResponse struct {
	domain.ExecutionResult
	RoleID    uint16 `json:"role_id"`
	Simulated bool   `json:"simulated,omitempty"`
}

type ModifierCore struct {
	pdp        policy.Enforcer
	auditor    audit.Auditor
	executor   ExecutionProvider
	killSwitch RevocationChecker
	simulation SimulationChecker
	metrics    *Metrics
	logger     *zap.Logger
}

func NewModifierCore(pdp policy.Enforcer, auditor audit.Auditor, exec ExecutionProvider, ks RevocationChecker, sim SimulationChecker, metrics *Metrics, logger *zap.Logger) *ModifierCore {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &ModifierCore{
		pdp:        pdp,
		auditor:    auditor,
		executor:   exec,
		killSwitch: ks,
		simulation: sim,
		metrics:    metrics,
		logger:     logger.Named("modifier"),
	}
}

// ExecTransaction выполняет общий для HTTP и gRPC пайплайн.
//  1. kill switch;
//  2. авторизация (PDP);
//  3. dry-run или реальное исполнение через avatar;
//  4. аудит и метрики.
//
// Ответ avatar (success и return data) возвращается без изменений.
func (m *ModifierCore) ExecTransaction(ctx context.Context, invoker common.Address, req ExecRequest) (ExecResponse, error) {
	call := req.Call
	if call.Value == nil {
		call.Value = new(big.Int)
	}
	m.metrics.TotalRequests.WithLabelValues(call.Operation.String()).Inc()
	start := time.Now()

	event := audit.DecisionEvent{
		TraceID:   extractTraceID(ctx),
		Invoker:   invoker.Hex(),
		Target:    call.To.Hex(),
		Value:     call.Value.String(),
		Operation: call.Operation.String(),
		Data:      hexutil.Encode(call.Data),
		Mode:      audit.ModeLive,
		Timestamp: start,
	}
	if sel, err := abi.SelectorOf(call.Data); err == nil {
		event.Selector = sel.String()
	}

	finish := func(status string, err error) {
		event.Status = status
		event.DurationMs = time.Since(start).Milliseconds()
		if err != nil {
			event.Error = err.Error()
		}
		m.auditor.Log(event)
		m.metrics.RequestDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}

	// 1. Kill switch (самый дешевый, in-memory)
	if m.killSwitch != nil && m.killSwitch.IsRevoked(invoker) {
		err := fmt.Errorf("%w: %s", domain.ErrInvokerRevoked, invoker.Hex())
		event.Reason = domain.Reason(err)
		m.metrics.Decisions.WithLabelValues("deny", event.Reason).Inc()
		finish(audit.StatusRevoked, err)
		return ExecResponse{}, err
	}

	// 2. Policy Enforcement (PDP)
	var (
		d   policy.Decision
		err error
	)
	switch {
	case req.Role != nil:
		d, err = m.pdp.AuthorizeWithRole(ctx, invoker, *req.Role, call)
	case req.DefaultRole:
		d, err = m.pdp.AuthorizeDefault(ctx, invoker, call)
	default:
		d, err = m.pdp.Authorize(ctx, invoker, call)
	}
	if err != nil {
		event.Reason = domain.Reason(err)
		m.metrics.Decisions.WithLabelValues("deny", event.Reason).Inc()
		finish(audit.StatusDenied, err)
		return ExecResponse{}, err
	}
	m.metrics.Decisions.WithLabelValues("allow", "").Inc()
	role := int32(d.RoleID)
	event.RoleID = &role

	// 3. Dry-run: решение принято, avatar не вызывается
	if m.simulation != nil && m.simulation.IsSimulated(invoker) {
		event.Mode = audit.ModeSimulation
		finish(audit.StatusSimulated, nil)
		return ExecResponse{ExecutionResult: domain.ExecutionResult{Success: true}, RoleID: d.RoleID, Simulated: true}, nil
	}

	// Реальное исполнение через ReliabilityWrapper
	res, err := m.executor.Execute(ctx, call)
	if err != nil {
		m.metrics.ErrorTotal.WithLabelValues(executionErrorType(err)).Inc()
		m.logger.Warn("avatar execution failed",
			zap.String("trace_id", event.TraceID),
			zap.String("invoker", event.Invoker),
			zap.Error(err))
		finish(audit.StatusFailed, err)
		return ExecResponse{}, err
	}

	// 4. Финальный аудит результата
	event.ReturnData = hexutil.Encode(res.ReturnData)
	if res.Success {
		finish(audit.StatusSuccess, nil)
	} else {
		finish(audit.StatusReverted, nil)
	}
	return ExecResponse{ExecutionResult: res, RoleID: d.RoleID}, nil
}

func executionErrorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrRateLimited):
		return "rate_limit"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	default:
		return "execution"
	}
}

// execBody — тело POST /v1/exec.
type execBody struct {
	To          string  `json:"to"`
	Value       string  `json:"value,omitempty"`
	Data        string  `json:"data"`
	Operation   string  `json:"operation,omitempty"`
	Role        *uint16 `json:"role,omitempty"`
	DefaultRole bool    `json:"default_role,omitempty"`
}

func (b execBody) toRequest() (ExecRequest, error) {
	var req ExecRequest
	if !common.IsHexAddress(b.To) {
		return req, fmt.Errorf("to: %q is not an address", b.To)
	}
	req.Call.To = common.HexToAddress(b.To)

	req.Call.Value = new(big.Int)
	if b.Value != "" {
		if _, ok := req.Call.Value.SetString(b.Value, 0); !ok || req.Call.Value.Sign() < 0 {
			return req, fmt.Errorf("value: %q", b.Value)
		}
	}
	if b.Data != "" && b.Data != "0x" {
		data, err := hexutil.Decode(b.Data)
		if err != nil {
			return req, fmt.Errorf("data: %w", err)
		}
		req.Call.Data = data
	}
	if b.Operation != "" {
		if err := req.Call.Operation.UnmarshalText([]byte(b.Operation)); err != nil {
			return req, err
		}
	}
	req.Role = b.Role
	req.DefaultRole = b.DefaultRole
	return req, nil
}

// HandleExec обслуживает POST /v1/exec. Invoker берется из токена (AuthMiddleware).
func (m *ModifierCore) HandleExec(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Only POST allowed", http.StatusMethodNotAllowed)
		return
	}

	// 1. Invoker из контекста
	invoker, ok := InvokerFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	// 2. Разбор тела
	var body execBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "BadRequest", "reason": err.Error()})
		return
	}
	req, err := body.toRequest()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "BadRequest", "reason": err.Error()})
		return
	}

	// 3. Пайплайн
	resp, err := m.ExecTransaction(r.Context(), invoker, req)
	if err != nil {
		if errors.Is(err, domain.ErrNotAuthorized) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "NotAuthorized", "reason": domain.Reason(err)})
			return
		}
		// tip: детали ошибок avatar наружу не отдаем
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "ExecutionFailed"})
		return
	}

	// 4. Ответ avatar как есть
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
