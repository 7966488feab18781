package service

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-roles-modifier/internal/engine"
	"github.com/xela07ax/spaceai-roles-modifier/internal/infra"
)

// InvokerFlagRepository хранит флаги invoker'а вне ролей (kill switch, simulation).
type InvokerFlagRepository interface {
	SetRevoked(ctx context.Context, invoker common.Address, revoked bool, reason string) error
	SetSimulated(ctx context.Context, invoker common.Address, on bool) error
}

type InvokerService struct {
	repo     InvokerFlagRepository
	notifier Notifier
	logger   *zap.Logger
}

func NewInvokerService(repo InvokerFlagRepository, notifier Notifier, logger *zap.Logger) *InvokerService {
	return &InvokerService{
		repo:     repo,
		notifier: notifier,
		logger:   logger.Named("invoker-service"),
	}
}

func (s *InvokerService) Revoke(ctx context.Context, invoker common.Address, reason string) error {
	if err := s.repo.SetRevoked(ctx, invoker, true, reason); err != nil {
		return fmt.Errorf("kill-switch-revoke database error: %w", err)
	}
	s.signal(ctx, invoker, true, infra.RedisKeyRevokedInvokers, infra.RedisChanKillSwitch, "kill-switch-revoke")
	return nil
}

func (s *InvokerService) Restore(ctx context.Context, invoker common.Address) error {
	if err := s.repo.SetRevoked(ctx, invoker, false, ""); err != nil {
		return fmt.Errorf("kill-switch-restore database error: %w", err)
	}
	s.signal(ctx, invoker, false, infra.RedisKeyRevokedInvokers, infra.RedisChanKillSwitch, "kill-switch-restore")
	return nil
}

// SetSimulation переводит invoker'а в dry-run: решения принимаются, вызовы не исполняются.
func (s *InvokerService) SetSimulation(ctx context.Context, invoker common.Address, enabled bool) error {
	if err := s.repo.SetSimulated(ctx, invoker, enabled); err != nil {
		return fmt.Errorf("simulation database error: %w", err)
	}
	s.signal(ctx, invoker, enabled, infra.RedisKeySimulationInvoker, infra.RedisChanSimulation, "simulation-toggle")
	return nil
}

// signal обновляет Redis-множество и публикует "id:on|off".
// БД уже обновлена, поэтому ошибки Redis только логируются.
func (s *InvokerService) signal(ctx context.Context, invoker common.Address, on bool, setKey, channel, action string) {
	id := engine.InvokerMember(invoker)
	if err := s.notifier.SetMember(ctx, setKey, id, on); err != nil {
		s.logger.Warn("state set update failed", zap.String("action", action), zap.Error(err))
	}
	if err := s.notifier.Publish(ctx, channel, engine.StateSignal(id, on)); err != nil {
		s.logger.Warn("runtime signal delivery failed",
			zap.String("action", action),
			zap.String("channel", channel),
			zap.Error(err))
		return
	}
	s.logger.Info("invoker state updated",
		zap.String("invoker", id),
		zap.String("action", action),
		zap.Bool("on", on))
}
