package engine

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-roles-modifier/internal/infra"
)

// Refresher перечитывает конфигурацию ролей из БД.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// ConfigListener перечитывает конфигурацию ролей по сигналу консоли.
// Полезная нагрузка сигнала не важна: всегда грузится полный согласованный снимок.
type ConfigListener struct {
	rdb       redis.UniversalClient
	refresher Refresher
	logger    *zap.Logger
}

func NewConfigListener(rdb redis.UniversalClient, refresher Refresher, logger *zap.Logger) *ConfigListener {
	return &ConfigListener{rdb: rdb, refresher: refresher, logger: logger.With(zap.String("mod", "config-listener"))}
}

func (l *ConfigListener) Start(ctx context.Context) {
	ListenResilient(ctx, l.rdb, l.logger, infra.RedisChanConfigUpdate,
		func() error { return l.refresher.Refresh(ctx) },
		func(payload string) { l.handle(ctx, payload) },
	)
}

func (l *ConfigListener) handle(ctx context.Context, payload string) {
	if err := l.refresher.Refresh(ctx); err != nil {
		// старая конфигурация продолжает работать
		l.logger.Error("role config refresh failed", zap.String("signal", payload), zap.Error(err))
		return
	}
	l.logger.Info("role config reloaded", zap.String("signal", payload))
}
