package policy

import (
	"bytes"

	"github.com/holiman/uint256"
	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
)

// Evaluate сравнивает извлеченное значение с эталоном из правила.
// Equal: побайтовое равенство канонических форм (разная длина = не равно).
// Greater/Less: только для Static, оба операнда как big-endian uint256, строгое неравенство.
// Любая недопустимая комбинация возвращает false (fail-closed).
func Evaluate(extracted, compareValue []byte, comp domain.Comparison, t domain.ParameterType) bool {
	switch comp {
	case domain.Equal:
		if !t.Valid() {
			return false
		}
		return bytes.Equal(extracted, compareValue)

	case domain.Greater, domain.Less:
		if t != domain.Static || len(extracted) != domain.WordSize || len(compareValue) != domain.WordSize {
			return false
		}
		value := new(uint256.Int).SetBytes32(extracted)
		limit := new(uint256.Int).SetBytes32(compareValue)
		if comp == domain.Greater {
			return value.Gt(limit)
		}
		return value.Lt(limit)
	}
	return false
}
