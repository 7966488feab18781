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

type SimulationProvider interface {
	GetSimulatedInvokers(ctx context.Context) ([]string, error)
}

// SimulationManager — invoker'ы в режиме dry-run: решение принимается и
// пишется в аудит, но вызов до avatar не доходит.
type SimulationManager struct {
	repo      SimulationProvider
	rdb       redis.UniversalClient
	logger    *zap.Logger
	mu        sync.RWMutex
	simulated InvokerSet
}

func NewSimulationManager(rdb redis.UniversalClient, repo SimulationProvider, logger *zap.Logger) *SimulationManager {
	return &SimulationManager{
		simulated: make(InvokerSet),
		repo:      repo,
		rdb:       rdb,
		logger:    logger.With(zap.String("mod", "simulation")),
	}
}

// Init загружает состояние всех dry-run invoker'ов при старте шлюза
func (sm *SimulationManager) Init(ctx context.Context) error {
	ids, err := sm.repo.GetSimulatedInvokers(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch simulated invokers from DB: %w", err)
	}

	return WarmupInvokers(ctx, sm.rdb, sm.logger, ids, infra.RedisKeySimulationInvoker, infra.RedisKeyLockSimulation, func(next InvokerSet) {
		sm.mu.Lock()
		sm.simulated = next
		sm.mu.Unlock()
	})
}

// StartListener подписывается на изменения режима в реальном времени
func (sm *SimulationManager) StartListener(ctx context.Context) {
	ListenStateResilient(ctx, sm.rdb, sm.logger, infra.RedisChanSimulation,
		func() error { return sm.Init(ctx) },
		func(id string, status bool) {
			if !common.IsHexAddress(id) {
				sm.logger.Error("invalid invoker in simulation signal", zap.String("id", id))
				return
			}
			sm.Set(common.HexToAddress(id), status)
		},
	)
}

func (sm *SimulationManager) Set(invoker common.Address, on bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if on {
		sm.simulated[invoker] = struct{}{}
	} else {
		delete(sm.simulated, invoker)
	}
}

// IsSimulated вызывается в Hot Path
func (sm *SimulationManager) IsSimulated(invoker common.Address) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, ok := sm.simulated[invoker]
	return ok
}

// Middleware помечает ответ заголовком режима. Ставится после AuthMiddleware.
func (sm *SimulationManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if invoker, ok := InvokerFrom(r.Context()); ok && sm.IsSimulated(invoker) {
			w.Header().Set("X-DevIT-Mode", "Simulation")
		}
		next.ServeHTTP(w, r)
	})
}
