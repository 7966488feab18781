package domain

import "errors"

// Базовая таксономия. Конкретные причины оборачивают одну из них,
// поэтому вызывающему коду достаточно errors.Is(err, ErrNotAuthorized).
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrDecodingOutOfBounds  = errors.New("calldata out of bounds")
	ErrNotAuthorized        = errors.New("not authorized")
)

// Ошибки записи конфигурации
var (
	ErrArraysDifferentLength        = wrap(ErrInvalidConfiguration, "arrays have different length")
	ErrScopeMaxParametersExceeded   = wrap(ErrInvalidConfiguration, "too many scoped parameters")
	ErrUnsuitableRelativeComparison = wrap(ErrInvalidConfiguration, "greater/less comparison on a non-static parameter")
	ErrUnsuitableStaticCompValue    = wrap(ErrInvalidConfiguration, "static compare value must be exactly one word")
	ErrUnsuitableDynamic32CompValue = wrap(ErrInvalidConfiguration, "dynamic32 compare value must be a count word followed by count words")
	ErrArityExceeded                = wrap(ErrInvalidConfiguration, "more parameter rules than function parameters")
)

// Ошибки разбора calldata
var (
	ErrFunctionSignatureTooShort = wrap(ErrDecodingOutOfBounds, "payload shorter than selector")
)

// Причины отказа в авторизации
var (
	ErrNoMembership            = wrap(ErrNotAuthorized, "invoker has no roles")
	ErrRoleNotHeld             = wrap(ErrNotAuthorized, "invoker does not hold role")
	ErrInvokerRevoked          = wrap(ErrNotAuthorized, "invoker is revoked")
	ErrTargetAddressNotAllowed = wrap(ErrNotAuthorized, "target address not allowed")
	ErrFunctionNotAllowed      = wrap(ErrNotAuthorized, "function not allowed")
	ErrSendNotAllowed          = wrap(ErrNotAuthorized, "send not allowed")
	ErrDelegateCallNotAllowed  = wrap(ErrNotAuthorized, "delegatecall not allowed")
	ErrParameterNotAllowed     = wrap(ErrNotAuthorized, "parameter not allowed")
)

type taxonomyError struct {
	kind error
	msg  string
}

func wrap(kind error, msg string) error { return &taxonomyError{kind: kind, msg: msg} }

func (e *taxonomyError) Error() string { return e.kind.Error() + ": " + e.msg }

func (e *taxonomyError) Unwrap() error { return e.kind }

var reasonCodes = []struct {
	err  error
	code string
}{
	{ErrInvokerRevoked, "InvokerRevoked"},
	{ErrNoMembership, "NoMembership"},
	{ErrRoleNotHeld, "RoleNotHeld"},
	{ErrTargetAddressNotAllowed, "TargetAddressNotAllowed"},
	{ErrFunctionNotAllowed, "FunctionNotAllowed"},
	{ErrSendNotAllowed, "SendNotAllowed"},
	{ErrDelegateCallNotAllowed, "DelegateCallNotAllowed"},
	{ErrParameterNotAllowed, "ParameterNotAllowed"},
	{ErrFunctionSignatureTooShort, "FunctionSignatureTooShort"},
	{ErrDecodingOutOfBounds, "DecodingOutOfBounds"},
	{ErrArraysDifferentLength, "ArraysDifferentLength"},
	{ErrScopeMaxParametersExceeded, "ScopeMaxParametersExceeded"},
	{ErrUnsuitableRelativeComparison, "UnsuitableRelativeComparison"},
	{ErrUnsuitableStaticCompValue, "UnsuitableStaticCompValue"},
	{ErrUnsuitableDynamic32CompValue, "UnsuitableDynamic32CompValue"},
	{ErrArityExceeded, "ArityExceeded"},
	{ErrNotAuthorized, "NotAuthorized"},
	{ErrInvalidConfiguration, "InvalidConfiguration"},
}

// Reason возвращает короткий код причины для метрик, аудита и ответов API.
// Для nil возвращает пустую строку, для ошибок вне таксономии "Internal".
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasonCodes {
		if errors.Is(err, r.err) {
			return r.code
		}
	}
	return "Internal"
}
