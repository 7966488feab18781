package domain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// WordSize: размер слова в head/tail раскладке calldata
	WordSize = 32
	// SelectorSize: длина селектора функции в начале payload
	SelectorSize = 4
	// MaxScopedParameters: сколько позиций параметров можно ограничить у одной функции
	MaxScopedParameters = 48
)

// ParameterType — форма кодирования параметра в calldata.
type ParameterType uint8

const (
	Static    ParameterType = iota // значение лежит прямо в слове head
	Dynamic                        // offset -> длина в байтах -> байты
	Dynamic32                      // offset -> количество элементов -> N слов
)

var parameterTypeNames = [...]string{"static", "dynamic", "dynamic32"}

func (t ParameterType) Valid() bool { return int(t) < len(parameterTypeNames) }

func (t ParameterType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("ParameterType(%d)", uint8(t))
	}
	return parameterTypeNames[t]
}

func (t ParameterType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown parameter type %d", ErrInvalidConfiguration, uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *ParameterType) UnmarshalText(b []byte) error {
	v, err := parseEnum(string(b), parameterTypeNames[:])
	if err != nil {
		return fmt.Errorf("parameter type: %w", err)
	}
	*t = ParameterType(v)
	return nil
}

// Comparison сравнивает извлеченное значение с эталоном.
type Comparison uint8

const (
	Equal Comparison = iota
	Greater
	Less
)

var comparisonNames = [...]string{"eq", "gt", "lt"}

func (c Comparison) Valid() bool { return int(c) < len(comparisonNames) }

func (c Comparison) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Comparison(%d)", uint8(c))
	}
	return comparisonNames[c]
}

func (c Comparison) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: unknown comparison %d", ErrInvalidConfiguration, uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *Comparison) UnmarshalText(b []byte) error {
	v, err := parseEnum(string(b), comparisonNames[:])
	if err != nil {
		return fmt.Errorf("comparison: %w", err)
	}
	*c = Comparison(v)
	return nil
}

// Clearance — на каком уровне роль допущена к адресу.
type Clearance uint8

const (
	ClearanceNone     Clearance = iota // адрес закрыт
	ClearanceTarget                    // весь адрес целиком, без проверки функций
	ClearanceFunction                  // только перечисленные функции
)

var clearanceNames = [...]string{"none", "target", "function"}

func (c Clearance) Valid() bool { return int(c) < len(clearanceNames) }

func (c Clearance) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Clearance(%d)", uint8(c))
	}
	return clearanceNames[c]
}

func (c Clearance) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: unknown clearance %d", ErrInvalidConfiguration, uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *Clearance) UnmarshalText(b []byte) error {
	v, err := parseEnum(string(b), clearanceNames[:])
	if err != nil {
		return fmt.Errorf("clearance: %w", err)
	}
	*c = Clearance(v)
	return nil
}

// ExecutionOptions задает разрешенные типы вызова (отправка value, delegatecall).
type ExecutionOptions uint8

const (
	OptionsNone ExecutionOptions = iota
	OptionsSend
	OptionsDelegateCall
	OptionsBoth
)

var optionsNames = [...]string{"none", "send", "delegatecall", "both"}

func (o ExecutionOptions) Valid() bool { return int(o) < len(optionsNames) }

func (o ExecutionOptions) String() string {
	if !o.Valid() {
		return fmt.Sprintf("ExecutionOptions(%d)", uint8(o))
	}
	return optionsNames[o]
}

// CanSend разрешает вызовы с ненулевым value
func (o ExecutionOptions) CanSend() bool { return o == OptionsSend || o == OptionsBoth }

// CanDelegateCall разрешает delegatecall
func (o ExecutionOptions) CanDelegateCall() bool {
	return o == OptionsDelegateCall || o == OptionsBoth
}

func (o ExecutionOptions) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("%w: unknown execution options %d", ErrInvalidConfiguration, uint8(o))
	}
	return []byte(o.String()), nil
}

func (o *ExecutionOptions) UnmarshalText(b []byte) error {
	v, err := parseEnum(string(b), optionsNames[:])
	if err != nil {
		return fmt.Errorf("execution options: %w", err)
	}
	*o = ExecutionOptions(v)
	return nil
}

func parseEnum(s string, names []string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown value %q", ErrInvalidConfiguration, s)
}

// Selector — первые 4 байта calldata, идентификатор функции.
type Selector [SelectorSize]byte

func (s Selector) String() string { return "0x" + hex.EncodeToString(s[:]) }

func (s Selector) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Selector) UnmarshalText(b []byte) error {
	parsed, err := ParseSelector(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSelector принимает "0xa9059cbb" или "a9059cbb".
func ParseSelector(s string) (Selector, error) {
	var sel Selector
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil || len(raw) != SelectorSize {
		return sel, fmt.Errorf("%w: bad selector %q", ErrInvalidConfiguration, s)
	}
	copy(sel[:], raw)
	return sel, nil
}

// ParameterRule — ограничение на одну позицию параметра функции.
// При Scoped == false остальные поля игнорируются.
type ParameterRule struct {
	Scoped       bool          `json:"scoped" yaml:"scoped"`
	Type         ParameterType `json:"type" yaml:"type"`
	Comparison   Comparison    `json:"comparison" yaml:"comparison"`
	CompareValue HexBytes      `json:"compare_value,omitempty" yaml:"compare_value,omitempty"`
}

// FunctionPermission — правила для (role, target, selector).
// Parameters упорядочены по позиции параметра в сигнатуре.
type FunctionPermission struct {
	RoleID     uint16           `json:"role_id" yaml:"role_id"`
	Target     common.Address   `json:"target" yaml:"target"`
	Selector   Selector         `json:"selector" yaml:"selector"`
	Options    ExecutionOptions `json:"options" yaml:"options"`
	Parameters []ParameterRule  `json:"parameters" yaml:"parameters"`
}

// IsWildcarded сообщает, что функция разрешена без проверки параметров.
func (f FunctionPermission) IsWildcarded() bool {
	for _, p := range f.Parameters {
		if p.Scoped {
			return false
		}
	}
	return true
}

// Clone возвращает глубокую копию, чтобы наружу не утекали ссылки на хранилище.
func (f FunctionPermission) Clone() FunctionPermission {
	out := f
	out.Parameters = make([]ParameterRule, len(f.Parameters))
	for i, p := range f.Parameters {
		p.CompareValue = append(HexBytes(nil), p.CompareValue...)
		out.Parameters[i] = p
	}
	return out
}

// TargetPermission — допуск роли к адресу.
type TargetPermission struct {
	RoleID    uint16           `json:"role_id" yaml:"role_id"`
	Target    common.Address   `json:"target" yaml:"target"`
	Clearance Clearance        `json:"clearance" yaml:"clearance"`
	Options   ExecutionOptions `json:"options" yaml:"options"`
}

// Membership это строка журнала назначений ролей.
type Membership struct {
	Invoker common.Address `json:"invoker" yaml:"invoker"`
	RoleID  uint16         `json:"role_id" yaml:"role_id"`
}

// RoleConfig это полный снимок конфигурации, который загружается в память шлюза.
type RoleConfig struct {
	Targets      []TargetPermission        `json:"targets" yaml:"targets"`
	Functions    []FunctionPermission      `json:"functions" yaml:"functions"`
	Memberships  []Membership              `json:"memberships" yaml:"memberships"`
	DefaultRoles map[common.Address]uint16 `json:"default_roles" yaml:"default_roles"`
}

// HexBytes сериализуется как 0x-строка в JSON/YAML.
type HexBytes []byte

func (h HexBytes) String() string { return "0x" + hex.EncodeToString(h) }

func (h HexBytes) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *HexBytes) UnmarshalText(b []byte) error {
	s := strings.TrimPrefix(strings.TrimSpace(string(b)), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: bad hex value: %v", ErrInvalidConfiguration, err)
	}
	*h = raw
	return nil
}
