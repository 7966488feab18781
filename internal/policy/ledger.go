package policy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
)

// RoleLedger хранит назначения: invoker -> множество ролей (+ роль по умолчанию).
// Меняется только через админский контур, движок решений его только читает.
type RoleLedger struct {
	mu       sync.RWMutex
	members  map[common.Address]map[uint16]struct{}
	defaults map[common.Address]uint16
}

func NewRoleLedger() *RoleLedger {
	return &RoleLedger{
		members:  make(map[common.Address]map[uint16]struct{}),
		defaults: make(map[common.Address]uint16),
	}
}

// AssignRoles назначает (memberOf[i] == true) или снимает роли пачкой.
func (l *RoleLedger) AssignRoles(invoker common.Address, roleIDs []uint16, memberOf []bool) error {
	if len(roleIDs) != len(memberOf) {
		return fmt.Errorf("%w: %d roles, %d flags", domain.ErrArraysDifferentLength, len(roleIDs), len(memberOf))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// собираем новое множество и подменяем целиком
	next := make(map[uint16]struct{}, len(l.members[invoker])+len(roleIDs))
	for r := range l.members[invoker] {
		next[r] = struct{}{}
	}
	for i, r := range roleIDs {
		if memberOf[i] {
			next[r] = struct{}{}
		} else {
			delete(next, r)
		}
	}
	if len(next) == 0 {
		delete(l.members, invoker)
		return nil
	}
	l.members[invoker] = next
	return nil
}

// Roles возвращает роли invoker'а по возрастанию id.
func (l *RoleLedger) Roles(invoker common.Address) []uint16 {
	l.mu.RLock()
	set := l.members[invoker]
	out := make([]uint16, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (l *RoleLedger) HasRole(invoker common.Address, role uint16) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.members[invoker][role]
	return ok
}

func (l *RoleLedger) SetDefaultRole(invoker common.Address, role uint16) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.defaults[invoker] = role
}

func (l *RoleLedger) DefaultRole(invoker common.Address) (uint16, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.defaults[invoker]
	return r, ok
}

// Memberships выгружает журнал в детерминированном порядке.
func (l *RoleLedger) Memberships() []domain.Membership {
	l.mu.RLock()
	out := make([]domain.Membership, 0, len(l.members))
	for inv, set := range l.members {
		for r := range set {
			out = append(out, domain.Membership{Invoker: inv, RoleID: r})
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Invoker.Cmp(out[j].Invoker); c != 0 {
			return c < 0
		}
		return out[i].RoleID < out[j].RoleID
	})
	return out
}

func (l *RoleLedger) DefaultRoles() map[common.Address]uint16 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[common.Address]uint16, len(l.defaults))
	for k, v := range l.defaults {
		out[k] = v
	}
	return out
}
