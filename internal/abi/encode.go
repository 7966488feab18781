package abi

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
)

// SelectorFromSignature считает селектор как первые 4 байта keccak256("name(type,...)").
func SelectorFromSignature(signature string) domain.Selector {
	var sel domain.Selector
	copy(sel[:], crypto.Keccak256([]byte(strings.ReplaceAll(signature, " ", "")))[:domain.SelectorSize])
	return sel
}

// Arity считает количество параметров верхнего уровня в сигнатуре.
// Кортежи "(a,b)" и массивы считаются одним параметром.
func Arity(signature string) (int, error) {
	open := strings.IndexByte(signature, '(')
	if open < 0 || !strings.HasSuffix(signature, ")") {
		return 0, fmt.Errorf("%w: malformed signature %q", domain.ErrInvalidConfiguration, signature)
	}
	body := strings.TrimSpace(signature[open+1 : len(signature)-1])
	if body == "" {
		return 0, nil
	}
	depth, count := 0, 1
	for _, r := range body {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return 0, fmt.Errorf("%w: unbalanced signature %q", domain.ErrInvalidConfiguration, signature)
			}
		case ',':
			if depth == 0 {
				count++
			}
		}
	}
	if depth != 0 {
		return 0, fmt.Errorf("%w: unbalanced signature %q", domain.ErrInvalidConfiguration, signature)
	}
	return count, nil
}

// EncodeStatic кодирует значение статического типа в одно ABI-слово.
func EncodeStatic(typ string, value any) ([]byte, error) {
	t, err := gethabi.NewType(typ, "", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	if t.T == gethabi.StringTy || t.T == gethabi.BytesTy || t.T == gethabi.SliceTy {
		return nil, fmt.Errorf("%w: %s is not a static type", domain.ErrInvalidConfiguration, typ)
	}
	out, err := gethabi.Arguments{{Type: t}}.Pack(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	if len(out) != domain.WordSize {
		return nil, fmt.Errorf("%w: %s does not fit one word", domain.ErrInvalidConfiguration, typ)
	}
	return out, nil
}

// EncodeDynamic возвращает tightly packed форму string/bytes: сырые байты без длины и паддинга.
func EncodeDynamic(raw []byte) []byte {
	return clone(raw)
}

// EncodeDynamic32 кодирует массив T[] и отрезает ведущее слово offset:
// остается слово количества и по слову на элемент.
func EncodeDynamic32(typ string, values any) ([]byte, error) {
	t, err := gethabi.NewType(typ, "", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	if t.T != gethabi.SliceTy || t.Elem == nil || isDynamic(*t.Elem) {
		return nil, fmt.Errorf("%w: %s is not an array of static elements", domain.ErrInvalidConfiguration, typ)
	}
	out, err := gethabi.Arguments{{Type: t}}.Pack(values)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return out[domain.WordSize:], nil
}

// EncodeCompareValue разбирает текстовое значение (CLI, YAML) и кодирует его в форму,
// соответствующую типу параметра.
func EncodeCompareValue(pt domain.ParameterType, typ, raw string) ([]byte, error) {
	t, err := gethabi.NewType(typ, "", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	switch pt {
	case domain.Static:
		v, err := ParseValue(t, raw)
		if err != nil {
			return nil, err
		}
		return EncodeStatic(typ, v)
	case domain.Dynamic:
		switch t.T {
		case gethabi.StringTy:
			return EncodeDynamic([]byte(raw)), nil
		case gethabi.BytesTy:
			b, err := hexutil.Decode(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
			}
			return EncodeDynamic(b), nil
		}
		return nil, fmt.Errorf("%w: dynamic parameter must be string or bytes, got %s", domain.ErrInvalidConfiguration, typ)
	case domain.Dynamic32:
		v, err := ParseValue(t, raw)
		if err != nil {
			return nil, err
		}
		return EncodeDynamic32(typ, v)
	}
	return nil, fmt.Errorf("%w: unknown parameter type %d", domain.ErrInvalidConfiguration, uint8(pt))
}

// ParseValue переводит строку в Go-значение, которое примет gethabi.Arguments.Pack.
// Массивы задаются через запятую: "1,2,3".
func ParseValue(t gethabi.Type, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch t.T {
	case gethabi.SliceTy:
		raw = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
		var parts []string
		if strings.TrimSpace(raw) != "" {
			parts = strings.Split(raw, ",")
		}
		out := reflect.MakeSlice(t.GetType(), len(parts), len(parts))
		for i, p := range parts {
			v, err := ParseValue(*t.Elem, p)
			if err != nil {
				return nil, err
			}
			out.Index(i).Set(reflect.ValueOf(v))
		}
		return out.Interface(), nil

	case gethabi.AddressTy:
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("%w: bad address %q", domain.ErrInvalidConfiguration, raw)
		}
		return common.HexToAddress(raw), nil

	case gethabi.BoolTy:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: bad bool %q", domain.ErrInvalidConfiguration, raw)
		}
		return b, nil

	case gethabi.StringTy:
		return raw, nil

	case gethabi.BytesTy:
		b, err := hexutil.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
		}
		return b, nil

	case gethabi.FixedBytesTy:
		b, err := hexutil.Decode(raw)
		if err != nil || len(b) != t.Size {
			return nil, fmt.Errorf("%w: expected %d bytes, got %q", domain.ErrInvalidConfiguration, t.Size, raw)
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil

	case gethabi.UintTy, gethabi.IntTy:
		n, ok := new(big.Int).SetString(raw, 0)
		if !ok {
			return nil, fmt.Errorf("%w: bad integer %q", domain.ErrInvalidConfiguration, raw)
		}
		rt := t.GetType()
		if rt == reflect.TypeOf(new(big.Int)) {
			return n, nil
		}
		v := reflect.New(rt).Elem()
		if t.T == gethabi.UintTy {
			if n.Sign() < 0 || !n.IsUint64() || v.OverflowUint(n.Uint64()) {
				return nil, fmt.Errorf("%w: %s out of range for %s", domain.ErrInvalidConfiguration, raw, t.String())
			}
			v.SetUint(n.Uint64())
		} else {
			if !n.IsInt64() || v.OverflowInt(n.Int64()) {
				return nil, fmt.Errorf("%w: %s out of range for %s", domain.ErrInvalidConfiguration, raw, t.String())
			}
			v.SetInt(n.Int64())
		}
		return v.Interface(), nil
	}
	return nil, fmt.Errorf("%w: unsupported type %s", domain.ErrInvalidConfiguration, t.String())
}

func isDynamic(t gethabi.Type) bool {
	switch t.T {
	case gethabi.StringTy, gethabi.BytesTy, gethabi.SliceTy:
		return true
	case gethabi.ArrayTy:
		return isDynamic(*t.Elem)
	case gethabi.TupleTy:
		for _, e := range t.TupleElems {
			if isDynamic(*e) {
				return true
			}
		}
	}
	return false
}
