package policy

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
)

type targetKey struct {
	role   uint16
	target common.Address
}

type functionKey struct {
	role     uint16
	target   common.Address
	selector domain.Selector
}

// RuleStore хранит конфигурацию ролей в плоских мапах с составными ключами:
// (role, target) -> TargetPermission и (role, target, selector) -> FunctionPermission.
// Каждая запись заменяет значение целиком (copy-on-write), поэтому читатель
// никогда не видит частично записанное правило.
type RuleStore struct {
	mu        sync.RWMutex
	targets   map[targetKey]domain.TargetPermission
	functions map[functionKey]domain.FunctionPermission
}

func NewRuleStore() *RuleStore {
	return &RuleStore{
		targets:   make(map[targetKey]domain.TargetPermission),
		functions: make(map[functionKey]domain.FunctionPermission),
	}
}

// SetTargetClearance задает уровень допуска роли к адресу.
// Понижение допуска не удаляет правила функций: они просто перестают читаться.
func (s *RuleStore) SetTargetClearance(role uint16, target common.Address, clearance domain.Clearance, options domain.ExecutionOptions) error {
	if !clearance.Valid() {
		return fmt.Errorf("%w: unknown clearance %d", domain.ErrInvalidConfiguration, uint8(clearance))
	}
	if !options.Valid() {
		return fmt.Errorf("%w: unknown execution options %d", domain.ErrInvalidConfiguration, uint8(options))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[targetKey{role, target}] = domain.TargetPermission{
		RoleID:    role,
		Target:    target,
		Clearance: clearance,
		Options:   options,
	}
	return nil
}

// AllowTarget допускает роль ко всему адресу без проверки функций.
func (s *RuleStore) AllowTarget(role uint16, target common.Address, options domain.ExecutionOptions) error {
	return s.SetTargetClearance(role, target, domain.ClearanceTarget, options)
}

// ScopeTarget допускает роль только к перечисленным функциям адреса.
func (s *RuleStore) ScopeTarget(role uint16, target common.Address) error {
	return s.SetTargetClearance(role, target, domain.ClearanceFunction, domain.OptionsNone)
}

func (s *RuleStore) RevokeTarget(role uint16, target common.Address) error {
	return s.SetTargetClearance(role, target, domain.ClearanceNone, domain.OptionsNone)
}

// SetFunctionPermission полностью заменяет правила функции.
func (s *RuleStore) SetFunctionPermission(role uint16, target common.Address, selector domain.Selector, rules []domain.ParameterRule, options domain.ExecutionOptions) error {
	if err := ValidateFunction(rules, options); err != nil {
		return err
	}
	fp := domain.FunctionPermission{
		RoleID:     role,
		Target:     target,
		Selector:   selector,
		Options:    options,
		Parameters: rules,
	}.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.functions[functionKey{role, target, selector}] = fp
	return nil
}

// SetFunctionPermissionWithArity дополнительно проверяет, что правил не больше,
// чем параметров у функции (когда вызывающая сторона знает сигнатуру).
func (s *RuleStore) SetFunctionPermissionWithArity(role uint16, target common.Address, selector domain.Selector, arity int, rules []domain.ParameterRule, options domain.ExecutionOptions) error {
	if len(rules) > arity {
		return fmt.Errorf("%w: %d rules for %d parameters", domain.ErrArityExceeded, len(rules), arity)
	}
	return s.SetFunctionPermission(role, target, selector, rules, options)
}

// AllowFunction разрешает функцию без ограничений на параметры.
func (s *RuleStore) AllowFunction(role uint16, target common.Address, selector domain.Selector, options domain.ExecutionOptions) error {
	return s.SetFunctionPermission(role, target, selector, nil, options)
}

func (s *RuleStore) RevokeFunction(role uint16, target common.Address, selector domain.Selector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.functions, functionKey{role, target, selector})
}

// ScopeParameter ограничивает одну позицию параметра. Если функции еще нет,
// она создается с OptionsNone; недостающие позиции заполняются неограниченными.
func (s *RuleStore) ScopeParameter(role uint16, target common.Address, selector domain.Selector, index int, t domain.ParameterType, comp domain.Comparison, value []byte) error {
	if index < 0 || index >= domain.MaxScopedParameters {
		return fmt.Errorf("%w: index %d", domain.ErrScopeMaxParametersExceeded, index)
	}
	rule := domain.ParameterRule{Scoped: true, Type: t, Comparison: comp, CompareValue: value}
	if err := ValidateRule(rule); err != nil {
		return fmt.Errorf("parameter %d: %w", index, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := functionKey{role, target, selector}
	fp, ok := s.functions[key]
	if !ok {
		fp = domain.FunctionPermission{RoleID: role, Target: target, Selector: selector}
	}
	fp = fp.Clone()
	for len(fp.Parameters) <= index {
		fp.Parameters = append(fp.Parameters, domain.ParameterRule{})
	}
	rule.CompareValue = append(domain.HexBytes(nil), value...)
	fp.Parameters[index] = rule
	s.functions[key] = fp
	return nil
}

// UnscopeParameter снимает ограничение с позиции. Для отсутствующей функции ничего не делает.
func (s *RuleStore) UnscopeParameter(role uint16, target common.Address, selector domain.Selector, index int) error {
	if index < 0 || index >= domain.MaxScopedParameters {
		return fmt.Errorf("%w: index %d", domain.ErrScopeMaxParametersExceeded, index)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := functionKey{role, target, selector}
	fp, ok := s.functions[key]
	if !ok || index >= len(fp.Parameters) {
		return nil
	}
	fp = fp.Clone()
	fp.Parameters[index] = domain.ParameterRule{}
	s.functions[key] = fp
	return nil
}

func (s *RuleStore) GetTargetPermission(role uint16, target common.Address) (domain.TargetPermission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tp, ok := s.targets[targetKey{role, target}]
	return tp, ok
}

// GetFunctionPermission возвращает копию правила, наружу ссылки на хранилище не уходят.
func (s *RuleStore) GetFunctionPermission(role uint16, target common.Address, selector domain.Selector) (domain.FunctionPermission, bool) {
	s.mu.RLock()
	fp, ok := s.functions[functionKey{role, target, selector}]
	s.mu.RUnlock()
	if !ok {
		return domain.FunctionPermission{}, false
	}
	return fp.Clone(), true
}

// Role возвращает всю конфигурацию одной роли (для консоли и CLI).
func (s *RuleStore) Role(role uint16) ([]domain.TargetPermission, []domain.FunctionPermission) {
	targets, functions := s.Snapshot()
	tOut := targets[:0]
	for _, t := range targets {
		if t.RoleID == role {
			tOut = append(tOut, t)
		}
	}
	fOut := functions[:0]
	for _, f := range functions {
		if f.RoleID == role {
			fOut = append(fOut, f)
		}
	}
	return tOut, fOut
}

// Snapshot выгружает всё содержимое в детерминированном порядке.
func (s *RuleStore) Snapshot() ([]domain.TargetPermission, []domain.FunctionPermission) {
	s.mu.RLock()
	targets := make([]domain.TargetPermission, 0, len(s.targets))
	for _, t := range s.targets {
		targets = append(targets, t)
	}
	functions := make([]domain.FunctionPermission, 0, len(s.functions))
	for _, f := range s.functions {
		functions = append(functions, f.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(targets, func(i, j int) bool {
		if targets[i].RoleID != targets[j].RoleID {
			return targets[i].RoleID < targets[j].RoleID
		}
		return targets[i].Target.Cmp(targets[j].Target) < 0
	})
	sort.Slice(functions, func(i, j int) bool {
		a, b := functions[i], functions[j]
		if a.RoleID != b.RoleID {
			return a.RoleID < b.RoleID
		}
		if c := a.Target.Cmp(b.Target); c != 0 {
			return c < 0
		}
		return binary.BigEndian.Uint32(a.Selector[:]) < binary.BigEndian.Uint32(b.Selector[:])
	})
	return targets, functions
}

// ValidateFunction проверяет набор правил функции до записи.
func ValidateFunction(rules []domain.ParameterRule, options domain.ExecutionOptions) error {
	if !options.Valid() {
		return fmt.Errorf("%w: unknown execution options %d", domain.ErrInvalidConfiguration, uint8(options))
	}
	if len(rules) > domain.MaxScopedParameters {
		return fmt.Errorf("%w: %d > %d", domain.ErrScopeMaxParametersExceeded, len(rules), domain.MaxScopedParameters)
	}
	for i, r := range rules {
		if err := ValidateRule(r); err != nil {
			return fmt.Errorf("parameter %d: %w", i, err)
		}
	}
	return nil
}

// ValidateRule проверяет инварианты одного правила. Неограниченное правило валидно всегда.
func ValidateRule(r domain.ParameterRule) error {
	if !r.Scoped {
		return nil
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown parameter type %d", domain.ErrInvalidConfiguration, uint8(r.Type))
	}
	if !r.Comparison.Valid() {
		return fmt.Errorf("%w: unknown comparison %d", domain.ErrInvalidConfiguration, uint8(r.Comparison))
	}
	if r.Comparison != domain.Equal && r.Type != domain.Static {
		return fmt.Errorf("%w: %s on %s", domain.ErrUnsuitableRelativeComparison, r.Comparison, r.Type)
	}

	switch r.Type {
	case domain.Static:
		if len(r.CompareValue) != domain.WordSize {
			return fmt.Errorf("%w: got %d bytes", domain.ErrUnsuitableStaticCompValue, len(r.CompareValue))
		}
	case domain.Dynamic32:
		n := len(r.CompareValue)
		if n < domain.WordSize || n%domain.WordSize != 0 {
			return fmt.Errorf("%w: got %d bytes", domain.ErrUnsuitableDynamic32CompValue, n)
		}
		count := common.BytesToHash(r.CompareValue[:domain.WordSize]).Big()
		if !count.IsInt64() || count.Int64() != int64(n/domain.WordSize-1) {
			return fmt.Errorf("%w: count %s, %d element words", domain.ErrUnsuitableDynamic32CompValue, count, n/domain.WordSize-1)
		}
	}
	return nil
}
