package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
	"go.uber.org/zap"
)

type RoleRepository interface {
	LoadRoles(ctx context.Context) (*domain.RoleConfig, error)
}

// roleState хранит согласованную пару "правила + назначения" и подменяется целиком.
type roleState struct {
	store  *RuleStore
	ledger *RoleLedger
}

// MemoEnforcer реализует Enforcer поверх in-memory кэша конфигурации ролей.
// Источник правды PostgreSQL, но в рантайме шлюз обращается только к памяти ("Hot Path").
type MemoEnforcer struct {
	mu    sync.RWMutex
	state roleState

	repo   RoleRepository // Используется только для Refresh()
	logger *zap.Logger
}

func NewMemoEnforcer(repo RoleRepository, logger *zap.Logger) *MemoEnforcer {
	return &MemoEnforcer{
		state:  roleState{store: NewRuleStore(), ledger: NewRoleLedger()},
		repo:   repo,
		logger: logger.Named("enforcer"),
	}
}

func (e *MemoEnforcer) current() roleState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Store и Ledger отдают текущие объекты для админских мутаций в процессе (CLI, тесты).
func (e *MemoEnforcer) Store() *RuleStore   { return e.current().store }
func (e *MemoEnforcer) Ledger() *RoleLedger { return e.current().ledger }

func (e *MemoEnforcer) Authorize(ctx context.Context, invoker common.Address, call domain.Call) (Decision, error) {
	st := e.current()
	d, err := authorizeAny(st.store, st.ledger, invoker, call)
	if err != nil {
		e.logger.Debug("call denied",
			zap.String("invoker", invoker.Hex()),
			zap.String("to", call.To.Hex()),
			zap.Error(err))
		return Decision{}, err
	}
	return d, nil
}

func (e *MemoEnforcer) AuthorizeWithRole(ctx context.Context, invoker common.Address, role uint16, call domain.Call) (Decision, error) {
	st := e.current()
	if !st.ledger.HasRole(invoker, role) {
		return Decision{}, fmt.Errorf("%w: role %d", domain.ErrRoleNotHeld, role)
	}
	d, err := CheckRole(st.store, role, call)
	if err != nil {
		return Decision{}, asNotAuthorized(err)
	}
	return d, nil
}

// AuthorizeDefault использует роль по умолчанию, назначенную invoker'у.
func (e *MemoEnforcer) AuthorizeDefault(ctx context.Context, invoker common.Address, call domain.Call) (Decision, error) {
	role, ok := e.current().ledger.DefaultRole(invoker)
	if !ok {
		return Decision{}, fmt.Errorf("%w: no default role", domain.ErrNoMembership)
	}
	return e.AuthorizeWithRole(ctx, invoker, role, call)
}

// IsAuthorized это булева форма Authorize.
func (e *MemoEnforcer) IsAuthorized(invoker common.Address, call domain.Call) bool {
	st := e.current()
	return IsAuthorized(st.store, st.ledger, invoker, call)
}

// Refresh выполняет «холодную загрузку» всей конфигурации ролей из БД в память шлюза.
// Новый снимок строится и валидируется целиком, затем подменяется атомарно;
// при ошибке продолжает работать старая конфигурация.
func (e *MemoEnforcer) Refresh(ctx context.Context) error {
	cfg, err := e.repo.LoadRoles(ctx)
	if err != nil {
		return fmt.Errorf("enforcer: load roles: %w", err)
	}
	if err := e.Load(cfg); err != nil {
		return err
	}
	e.logger.Info("role cache refreshed",
		zap.Int("targets", len(cfg.Targets)),
		zap.Int("functions", len(cfg.Functions)),
		zap.Int("memberships", len(cfg.Memberships)))
	return nil
}

// Load подменяет конфигурацию готовым снимком (YAML в CLI, тесты).
func (e *MemoEnforcer) Load(cfg *domain.RoleConfig) error {
	st, err := buildState(cfg)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.state = st
	e.mu.Unlock()
	return nil
}

// Export обратна Load.
func (e *MemoEnforcer) Export() *domain.RoleConfig {
	st := e.current()
	targets, functions := st.store.Snapshot()
	return &domain.RoleConfig{
		Targets:      targets,
		Functions:    functions,
		Memberships:  st.ledger.Memberships(),
		DefaultRoles: st.ledger.DefaultRoles(),
	}
}

func buildState(cfg *domain.RoleConfig) (roleState, error) {
	st := roleState{store: NewRuleStore(), ledger: NewRoleLedger()}
	if cfg == nil {
		return st, nil
	}
	for _, t := range cfg.Targets {
		if err := st.store.SetTargetClearance(t.RoleID, t.Target, t.Clearance, t.Options); err != nil {
			return roleState{}, fmt.Errorf("role %d target %s: %w", t.RoleID, t.Target.Hex(), err)
		}
	}
	for _, f := range cfg.Functions {
		if err := st.store.SetFunctionPermission(f.RoleID, f.Target, f.Selector, f.Parameters, f.Options); err != nil {
			return roleState{}, fmt.Errorf("role %d function %s.%s: %w", f.RoleID, f.Target.Hex(), f.Selector, err)
		}
	}
	for _, m := range cfg.Memberships {
		if err := st.ledger.AssignRoles(m.Invoker, []uint16{m.RoleID}, []bool{true}); err != nil {
			return roleState{}, err
		}
	}
	for inv, role := range cfg.DefaultRoles {
		st.ledger.SetDefaultRole(inv, role)
	}
	return st, nil
}
