package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xela07ax/spaceai-roles-modifier/internal/abi"
	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
)

// Decision содержит роль, которая пропустила вызов.
type Decision struct {
	RoleID    uint16           `json:"role_id"`
	Clearance domain.Clearance `json:"clearance"`
}

// Enforcer это точка принятия решений (PDP), ее вызывает шлюз перед исполнением.
type Enforcer interface {
	// Authorize проверяет все роли invoker'а (OR).
	Authorize(ctx context.Context, invoker common.Address, call domain.Call) (Decision, error)
	// AuthorizeWithRole проверяет одну явно указанную роль.
	AuthorizeWithRole(ctx context.Context, invoker common.Address, role uint16, call domain.Call) (Decision, error)
	// AuthorizeDefault проверяет роль по умолчанию, назначенную invoker'у.
	AuthorizeDefault(ctx context.Context, invoker common.Address, call domain.Call) (Decision, error)
}

// Rules: что движку нужно от хранилища правил.
type Rules interface {
	GetTargetPermission(role uint16, target common.Address) (domain.TargetPermission, bool)
	GetFunctionPermission(role uint16, target common.Address, selector domain.Selector) (domain.FunctionPermission, bool)
}

// Members: что движку нужно от журнала назначений.
type Members interface {
	Roles(invoker common.Address) []uint16
}

// IsAuthorized возвращает true, если хотя бы одна роль invoker'а пропускает вызов.
// Invoker без ролей не проходит никогда.
func IsAuthorized(rules Rules, members Members, invoker common.Address, call domain.Call) bool {
	_, err := authorizeAny(rules, members, invoker, call)
	return err == nil
}

func authorizeAny(rules Rules, members Members, invoker common.Address, call domain.Call) (Decision, error) {
	roles := members.Roles(invoker)
	if len(roles) == 0 {
		return Decision{}, domain.ErrNoMembership
	}

	var last error
	for _, role := range roles {
		d, err := CheckRole(rules, role, call)
		if err == nil {
			return d, nil
		}
		last = err
	}
	return Decision{}, asNotAuthorized(last)
}

// CheckRole проверяет вызов против одной роли и возвращает причину отказа.
//  1. допуск к адресу (None -> отказ);
//  2. Target: только опции исполнения;
//  3. Function: селектор -> правило функции -> опции -> каждый ограниченный параметр.
//
// Ошибка разбора calldata означает отказ роли, а не фатальную ошибку.
func CheckRole(rules Rules, role uint16, call domain.Call) (Decision, error) {
	tp, ok := rules.GetTargetPermission(role, call.To)
	if !ok || tp.Clearance == domain.ClearanceNone {
		return Decision{}, domain.ErrTargetAddressNotAllowed
	}
	d := Decision{RoleID: role, Clearance: tp.Clearance}

	switch tp.Clearance {
	case domain.ClearanceTarget:
		if err := checkExecutionOptions(call, tp.Options); err != nil {
			return Decision{}, err
		}
		return d, nil

	case domain.ClearanceFunction:
		selector, err := abi.SelectorOf(call.Data)
		if err != nil {
			return Decision{}, err
		}
		fp, ok := rules.GetFunctionPermission(role, call.To, selector)
		if !ok {
			return Decision{}, fmt.Errorf("%w: %s", domain.ErrFunctionNotAllowed, selector)
		}
		if err := checkExecutionOptions(call, fp.Options); err != nil {
			return Decision{}, err
		}
		if err := checkParameters(fp, call.Data); err != nil {
			return Decision{}, err
		}
		return d, nil
	}

	return Decision{}, domain.ErrTargetAddressNotAllowed
}

// checkExecutionOptions: value > 0 требует Send, delegatecall требует DelegateCall.
// Обычный call без value разрешен при любых опциях.
func checkExecutionOptions(call domain.Call, options domain.ExecutionOptions) error {
	if call.IsSend() && !options.CanSend() {
		return domain.ErrSendNotAllowed
	}
	switch call.Operation {
	case domain.OperationCall:
	case domain.OperationDelegateCall:
		if !options.CanDelegateCall() {
			return domain.ErrDelegateCallNotAllowed
		}
	default:
		return fmt.Errorf("%w: unknown operation %d", domain.ErrNotAuthorized, uint8(call.Operation))
	}
	return nil
}

func checkParameters(fp domain.FunctionPermission, data []byte) error {
	for i, rule := range fp.Parameters {
		if !rule.Scoped {
			continue
		}
		value, err := abi.Pluck(data, i, rule.Type)
		if err != nil {
			return fmt.Errorf("%w: parameter %d: %w", domain.ErrParameterNotAllowed, i, err)
		}
		if !Evaluate(value, rule.CompareValue, rule.Comparison, rule.Type) {
			return fmt.Errorf("%w: parameter %d", domain.ErrParameterNotAllowed, i)
		}
	}
	return nil
}

// asNotAuthorized гарантирует, что итоговая ошибка всегда матчится на ErrNotAuthorized,
// сохраняя исходную причину (например, ErrDecodingOutOfBounds).
func asNotAuthorized(err error) error {
	if err == nil || errors.Is(err, domain.ErrNotAuthorized) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrNotAuthorized, err)
}
