package abi

/*
Файл pluck.go извлекает значения параметров из calldata, не доверяя вызывающей стороне.

Раскладка payload:
  [selector 4 байта][head: по одному слову на параметр][tail: данные переменной длины]

- Static:    значение лежит в слове head[index].
- Dynamic:   head[index] — offset от начала head; по нему слово длины L и L байт.
- Dynamic32: head[index] — offset; по нему слово количества N и N слов-элементов.

Любой offset/длина, выходящие за пределы payload, дают ErrDecodingOutOfBounds.
Частичного чтения не бывает: либо точное значение, либо ошибка.
*/

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
)

const word = domain.WordSize

// Pluck возвращает сырые байты параметра index в форме, совпадающей с compareValue.
// data содержит полный payload вместе с селектором.
func Pluck(data []byte, index int, t domain.ParameterType) ([]byte, error) {
	if len(data) < domain.SelectorSize {
		return nil, domain.ErrFunctionSignatureTooShort
	}
	args := data[domain.SelectorSize:]

	// 1. Слово head должно существовать для любой формы параметра
	if index < 0 || index >= len(args)/word {
		return nil, fmt.Errorf("%w: parameter %d is beyond head (%d words)", domain.ErrDecodingOutOfBounds, index, len(args)/word)
	}
	head := args[index*word : index*word+word]

	switch t {
	case domain.Static:
		return clone(head), nil

	case domain.Dynamic:
		offset, err := readSize(args, head, "offset")
		if err != nil {
			return nil, err
		}
		lengthWord, err := wordAt(args, offset)
		if err != nil {
			return nil, err
		}
		start := offset + word
		length, err := readSize(args, lengthWord, "length")
		if err != nil {
			return nil, err
		}
		if length > len(args)-start {
			return nil, fmt.Errorf("%w: dynamic length %d exceeds payload", domain.ErrDecodingOutOfBounds, length)
		}
		return clone(args[start : start+length]), nil

	case domain.Dynamic32:
		offset, err := readSize(args, head, "offset")
		if err != nil {
			return nil, err
		}
		countWord, err := wordAt(args, offset)
		if err != nil {
			return nil, err
		}
		start := offset + word
		count, err := readSize(args, countWord, "count")
		if err != nil {
			return nil, err
		}
		if count > (len(args)-start)/word {
			return nil, fmt.Errorf("%w: dynamic32 count %d exceeds payload", domain.ErrDecodingOutOfBounds, count)
		}
		// слово количества + элементы, ровно как хранится compareValue
		return clone(args[offset : start+count*word]), nil
	}

	return nil, fmt.Errorf("%w: unknown parameter type %d", domain.ErrInvalidConfiguration, uint8(t))
}

// wordAt читает слово по смещению pos относительно начала head.
func wordAt(args []byte, pos int) ([]byte, error) {
	if pos < 0 || len(args) < word || pos > len(args)-word {
		return nil, fmt.Errorf("%w: word at %d, payload %d bytes", domain.ErrDecodingOutOfBounds, pos, len(args))
	}
	return args[pos : pos+word], nil
}

// readSize интерпретирует слово как uint256 и гарантирует, что оно меньше размера payload.
// Значения больше payload не могут быть корректным offset/длиной, поэтому переполнения int нет.
func readSize(args, w []byte, what string) (int, error) {
	v := new(uint256.Int).SetBytes(w)
	if !v.IsUint64() || v.Uint64() > uint64(len(args)) {
		return 0, fmt.Errorf("%w: %s %s exceeds payload of %d bytes", domain.ErrDecodingOutOfBounds, what, v.Dec(), len(args))
	}
	return int(v.Uint64()), nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// SelectorOf возвращает селектор функции из payload.
func SelectorOf(data []byte) (domain.Selector, error) {
	var sel domain.Selector
	if len(data) < domain.SelectorSize {
		return sel, domain.ErrFunctionSignatureTooShort
	}
	copy(sel[:], data[:domain.SelectorSize])
	return sel, nil
}
