package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
	"github.com/xela07ax/spaceai-roles-modifier/internal/infra"
	"github.com/xela07ax/spaceai-roles-modifier/internal/policy"
)

// RoleRepository описывает требования сервиса к хранилищу конфигурации ролей
type RoleRepository interface {
	GetRole(ctx context.Context, role uint16) ([]domain.TargetPermission, []domain.FunctionPermission, error)
	SetTarget(ctx context.Context, tp domain.TargetPermission) error
	DeleteTarget(ctx context.Context, role uint16, target common.Address) error
	SetFunction(ctx context.Context, fp domain.FunctionPermission) error
	DeleteFunction(ctx context.Context, role uint16, target common.Address, selector domain.Selector) error
	UpdateFunction(ctx context.Context, role uint16, target common.Address, selector domain.Selector,
		fn func(fp *domain.FunctionPermission, found bool) error) error
	AssignRoles(ctx context.Context, invoker common.Address, roles []uint16, memberOf []bool) error
	SetDefaultRole(ctx context.Context, invoker common.Address, role uint16) error
}

// RoleView — конфигурация одной роли для GET /v1/roles/{role}.
type RoleView struct {
	RoleID    uint16                      `json:"role_id"`
	Targets   []domain.TargetPermission   `json:"targets"`
	Functions []domain.FunctionPermission `json:"functions"`
}

// errUnchanged прерывает транзакцию UpdateFunction, когда менять нечего.
var errUnchanged = errors.New("unchanged")

// RoleService валидирует мутации теми же правилами, что и хранилище шлюза,
// сохраняет их в БД и рассылает сигнал обновления.
type RoleService struct {
	repo     RoleRepository
	notifier Notifier
	logger   *zap.Logger
}

func NewRoleService(repo RoleRepository, notifier Notifier, logger *zap.Logger) *RoleService {
	return &RoleService{
		repo:     repo,
		notifier: notifier,
		logger:   logger.Named("role-service"),
	}
}

func (s *RoleService) GetRole(ctx context.Context, role uint16) (*RoleView, error) {
	targets, functions, err := s.repo.GetRole(ctx, role)
	if err != nil {
		return nil, err
	}
	if targets == nil {
		targets = []domain.TargetPermission{}
	}
	if functions == nil {
		functions = []domain.FunctionPermission{}
	}
	return &RoleView{RoleID: role, Targets: targets, Functions: functions}, nil
}

func (s *RoleService) SetTarget(ctx context.Context, tp domain.TargetPermission) error {
	if !tp.Clearance.Valid() {
		return fmt.Errorf("%w: unknown clearance %d", domain.ErrInvalidConfiguration, uint8(tp.Clearance))
	}
	if !tp.Options.Valid() {
		return fmt.Errorf("%w: unknown execution options %d", domain.ErrInvalidConfiguration, uint8(tp.Options))
	}
	if err := s.repo.SetTarget(ctx, tp); err != nil {
		return err
	}
	return s.notifyUpdate(ctx, "set-target")
}

func (s *RoleService) RevokeTarget(ctx context.Context, role uint16, target common.Address) error {
	if err := s.repo.DeleteTarget(ctx, role, target); err != nil {
		return err
	}
	return s.notifyUpdate(ctx, "revoke-target")
}

// SetFunction полностью заменяет правила функции.
func (s *RoleService) SetFunction(ctx context.Context, fp domain.FunctionPermission) error {
	if err := policy.ValidateFunction(fp.Parameters, fp.Options); err != nil {
		return err
	}
	if err := s.repo.SetFunction(ctx, fp.Clone()); err != nil {
		return err
	}
	return s.notifyUpdate(ctx, "set-function")
}

func (s *RoleService) RevokeFunction(ctx context.Context, role uint16, target common.Address, selector domain.Selector) error {
	if err := s.repo.DeleteFunction(ctx, role, target, selector); err != nil {
		return err
	}
	return s.notifyUpdate(ctx, "revoke-function")
}

// ScopeParameter ограничивает одну позицию; отсутствующая функция создается с OptionsNone.
func (s *RoleService) ScopeParameter(ctx context.Context, role uint16, target common.Address, selector domain.Selector,
	index int, rule domain.ParameterRule) error {
	if index < 0 || index >= domain.MaxScopedParameters {
		return fmt.Errorf("%w: index %d", domain.ErrScopeMaxParametersExceeded, index)
	}
	rule.Scoped = true
	if err := policy.ValidateRule(rule); err != nil {
		return fmt.Errorf("parameter %d: %w", index, err)
	}

	err := s.repo.UpdateFunction(ctx, role, target, selector, func(fp *domain.FunctionPermission, _ bool) error {
		for len(fp.Parameters) <= index {
			fp.Parameters = append(fp.Parameters, domain.ParameterRule{})
		}
		fp.Parameters[index] = rule
		return nil
	})
	if err != nil {
		return err
	}
	return s.notifyUpdate(ctx, "scope-parameter")
}

// UnscopeParameter снимает ограничение; для отсутствующей функции или позиции ничего не делает.
func (s *RoleService) UnscopeParameter(ctx context.Context, role uint16, target common.Address, selector domain.Selector, index int) error {
	if index < 0 || index >= domain.MaxScopedParameters {
		return fmt.Errorf("%w: index %d", domain.ErrScopeMaxParametersExceeded, index)
	}
	err := s.repo.UpdateFunction(ctx, role, target, selector, func(fp *domain.FunctionPermission, found bool) error {
		if !found || index >= len(fp.Parameters) {
			return errUnchanged
		}
		fp.Parameters[index] = domain.ParameterRule{}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.notifyUpdate(ctx, "unscope-parameter")
}

func (s *RoleService) AssignRoles(ctx context.Context, invoker common.Address, roles []uint16, memberOf []bool) error {
	if len(roles) != len(memberOf) {
		return fmt.Errorf("%w: %d roles, %d flags", domain.ErrArraysDifferentLength, len(roles), len(memberOf))
	}
	if err := s.repo.AssignRoles(ctx, invoker, roles, memberOf); err != nil {
		return err
	}
	return s.notifyUpdate(ctx, "assign-roles")
}

func (s *RoleService) SetDefaultRole(ctx context.Context, invoker common.Address, role uint16) error {
	if err := s.repo.SetDefaultRole(ctx, invoker, role); err != nil {
		return err
	}
	return s.notifyUpdate(ctx, "set-default-role")
}

// notifyUpdate отправляет широковещательный сигнал в Redis.
// Все инстансы шлюза, подписанные на канал, вызовут Refresh() своего MemoEnforcer.
// Изменение уже в БД, поэтому сбой доставки только логируется: шлюзы подхватят его при следующем Refresh.
func (s *RoleService) notifyUpdate(ctx context.Context, action string) error {
	if err := s.notifier.Publish(ctx, infra.RedisChanConfigUpdate, "refresh"); err != nil {
		s.logger.Warn("config update signal failed", zap.String("action", action), zap.Error(err))
		return nil
	}
	s.logger.Info("role configuration updated", zap.String("action", action))
	return nil
}
