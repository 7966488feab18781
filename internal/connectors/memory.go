package connectors

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
)

// Handler имитирует контракт по адресу.
type Handler func(ctx context.Context, call domain.Call) (domain.ExecutionResult, error)

// MemoryAvatar живет в памяти процесса: запоминает исполненные вызовы и
// отдает их зарегистрированным обработчикам. Для адреса без обработчика отвечает success с пустым ответом.
type MemoryAvatar struct {
	mu       sync.Mutex
	handlers map[common.Address]Handler
	executed []domain.Call
}

func NewMemoryAvatar() *MemoryAvatar {
	return &MemoryAvatar{handlers: make(map[common.Address]Handler)}
}

func (m *MemoryAvatar) Handle(target common.Address, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[target] = h
}

func (m *MemoryAvatar) Execute(ctx context.Context, call domain.Call) (domain.ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExecutionResult{}, err
	}
	m.mu.Lock()
	m.executed = append(m.executed, call)
	h := m.handlers[call.To]
	m.mu.Unlock()

	if h == nil {
		return domain.ExecutionResult{Success: true}, nil
	}
	return h(ctx, call)
}

// Executed возвращает копию журнала исполненных вызовов.
func (m *MemoryAvatar) Executed() []domain.Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Call(nil), m.executed...)
}
