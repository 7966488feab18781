package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-roles-modifier/internal/infra"
)

// RevokedProvider отдает отключенных invoker'ов из PostgreSQL.
type RevokedProvider interface {
	GetRevokedInvokers(ctx context.Context) ([]string, error)
}

// KillSwitchManager мгновенно отключает invoker'а без правки ролей.
// Роли остаются в журнале назначений, но шлюз отказывает до снятия блокировки.
type KillSwitchManager struct {
	repo    RevokedProvider
	rdb     redis.UniversalClient
	logger  *zap.Logger
	mu      sync.RWMutex
	revoked InvokerSet
}

func NewKillSwitchManager(rdb redis.UniversalClient, repo RevokedProvider, logger *zap.Logger) *KillSwitchManager {
	return &KillSwitchManager{
		revoked: make(InvokerSet),
		repo:    repo,
		rdb:     rdb,
		logger:  logger.With(zap.String("mod", "killswitch")),
	}
}

// Init загружает текущее состояние блокировок при старте и при переподключении к Redis.
func (m *KillSwitchManager) Init(ctx context.Context) error {
	ids, err := m.repo.GetRevokedInvokers(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch revoked invokers from DB: %w", err)
	}
	return WarmupInvokers(ctx, m.rdb, m.logger, ids, infra.RedisKeyRevokedInvokers, infra.RedisKeyLockRevoked, m.replace)
}

func (m *KillSwitchManager) replace(next InvokerSet) {
	m.mu.Lock()
	m.revoked = next
	m.mu.Unlock()
}

// StartListener подписывается на Redis и обновляет состояние
func (m *KillSwitchManager) StartListener(ctx context.Context) {
	ListenStateResilient(ctx, m.rdb, m.logger, infra.RedisChanKillSwitch,
		func() error { return m.Init(ctx) },
		func(id string, revoked bool) {
			if !common.IsHexAddress(id) {
				m.logger.Error("invalid invoker in kill-switch signal", zap.String("id", id))
				return
			}
			m.logger.Info("kill-switch signal", zap.String("invoker", id), zap.Bool("revoked", revoked))
			m.Set(common.HexToAddress(id), revoked)
		},
	)
}

// Set обновляет локальный потокобезопасный кэш.
func (m *KillSwitchManager) Set(invoker common.Address, revoked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if revoked {
		m.revoked[invoker] = struct{}{}
	} else {
		delete(m.revoked, invoker)
	}
}

func (m *KillSwitchManager) IsRevoked(invoker common.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.revoked[invoker]
	return ok
}

// Middleware отсекает отключенного invoker'а до разбора тела запроса.
// Ставится после AuthMiddleware.
func (m *KillSwitchManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		invoker, ok := InvokerFrom(r.Context())
		if ok && m.IsRevoked(invoker) {
			m.logger.Warn("intercepted revoked invoker request", zap.String("invoker", invoker.Hex()))
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "NotAuthorized", "reason": "InvokerRevoked"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
