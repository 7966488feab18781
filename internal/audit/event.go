package audit

import "time"

// Режим исполнения вызова.
const (
	ModeLive       = "LIVE"
	ModeSimulation = "SIMULATION"
)

// Итог обработки вызова.
const (
	StatusSuccess   = "SUCCESS"  // разрешен и исполнен, avatar вернул success
	StatusReverted  = "REVERTED" // разрешен и исполнен, avatar вернул success=false
	StatusDenied    = "DENIED"   // отказ авторизации
	StatusRevoked   = "REVOKED"  // invoker отключен kill switch
	StatusFailed    = "FAILED"   // ошибка доставки до avatar
	StatusSimulated = "SIMULATED"
)

// DecisionEvent — запись журнала решений по одному вызову.
type DecisionEvent struct {
	ID        string `json:"id"`       // UUID события
	TraceID   string `json:"trace_id"` // Сквозной ID запроса
	Invoker   string `json:"invoker"`  // Кто просил
	Target    string `json:"target"`   // Куда
	Selector  string `json:"selector,omitempty"`
	Value     string `json:"value"` // wei, десятичная строка
	Operation string `json:"operation"`
	Data      string `json:"data"` // calldata в hex

	// Контекст решения
	Mode   string `json:"mode"`
	RoleID *int32 `json:"role_id,omitempty"` // Какая роль пропустила вызов
	Reason string `json:"reason,omitempty"`  // Причина отказа

	// Результат
	Status     string    `json:"status"`
	ReturnData string    `json:"return_data,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}
