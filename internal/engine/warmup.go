package engine

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const warmupLockTTL = 30 * time.Second

// InvokerSet — множество invoker'ов в L1.
type InvokerSet map[common.Address]struct{}

// InvokerMember возвращает адрес в форме Redis-множеств и сигналов: hex в нижнем регистре.
func InvokerMember(invoker common.Address) string {
	return strings.ToLower(invoker.Hex())
}

// ParseInvokers приводит строки из БД к адресам. Мусор и дубли отбрасываются.
func ParseInvokers(logger *zap.Logger, ids []string) InvokerSet {
	set := make(InvokerSet, len(ids))
	for _, id := range ids {
		if !common.IsHexAddress(id) {
			logger.Warn("skipping malformed invoker", zap.String("id", id))
			continue
		}
		set[common.HexToAddress(id)] = struct{}{}
	}
	return set
}

// WarmupInvokers прогревает L1 (RAM) и L2 (Redis-множество setKey) из списка БД.
// L2 заливается только если множество пустое, под SetNX-блокировкой lockKey,
// чтобы при старте нескольких шлюзов заливку делал один.
func WarmupInvokers(
	ctx context.Context,
	rdb redis.UniversalClient,
	logger *zap.Logger,
	ids []string,
	setKey string,
	lockKey string,
	applyL1 func(InvokerSet),
) error {
	set := ParseInvokers(logger, ids)
	applyL1(set)
	if rdb == nil || len(set) == 0 {
		return nil
	}

	ok, err := rdb.SetNX(ctx, lockKey, "processing", warmupLockTTL).Result()
	if err != nil || !ok {
		// сеть недоступна или прогрев уже идет на другом инстансе
		return nil
	}
	defer rdb.Del(context.WithoutCancel(ctx), lockKey)

	count, err := rdb.SCard(ctx, setKey).Result()
	if err != nil {
		count = 0
		logger.Warn("could not check invoker set size, proceeding with warm-up",
			zap.String("key", setKey), zap.Error(err))
	}
	if count > 0 {
		return nil
	}

	logger.Info("invoker set is empty, warming up from DB",
		zap.String("key", setKey), zap.Int("count", len(set)))
	members := make([]interface{}, 0, len(set))
	for inv := range set {
		members = append(members, InvokerMember(inv))
	}
	return rdb.SAdd(ctx, setKey, members...).Err()
}
