package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "devit"
)

// Ключи для Sets (состояние)
const (
	RedisKeyRevokedInvokers   = RedisNamespace + ":invokers:revoked_set"
	RedisKeySimulationInvoker = RedisNamespace + ":invokers:simulation_set"
	RedisKeyLockRevoked       = RedisNamespace + ":lock:warmup:revoked"
	RedisKeyLockSimulation    = RedisNamespace + ":lock:warmup:simulation"
)

// Каналы Pub/Sub (события)
const (
	RedisChanKillSwitch   = RedisNamespace + ":invokers:kill-switch-signal"
	RedisChanSimulation   = RedisNamespace + ":invokers:simulation-signal"
	RedisChanConfigUpdate = RedisNamespace + ":roles:config-update"
)
