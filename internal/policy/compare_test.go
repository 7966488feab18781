package policy_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
	"github.com/xela07ax/spaceai-roles-modifier/internal/policy"
)

func uintWord(n int64) []byte {
	return common.LeftPadBytes(big.NewInt(n).Bytes(), 32)
}

func TestEvaluate_Equal(t *testing.T) {
	v := uintWord(0x12345678)
	assert.True(t, policy.Evaluate(v, uintWord(0x12345678), domain.Equal, domain.Static))
	assert.False(t, policy.Evaluate(v, uintWord(0x12345679), domain.Equal, domain.Static))

	assert.True(t, policy.Evaluate([]byte("Hello World!"), []byte("Hello World!"), domain.Equal, domain.Dynamic))
	assert.False(t, policy.Evaluate([]byte("Hello World"), []byte("Hello World!"), domain.Equal, domain.Dynamic))

	// разная длина: не равно, без ошибок
	assert.False(t, policy.Evaluate([]byte{0x01}, []byte{0x00, 0x01}, domain.Equal, domain.Dynamic))
	assert.True(t, policy.Evaluate(nil, []byte{}, domain.Equal, domain.Dynamic))
}

func TestEvaluate_EqualIsReflexiveForStatic(t *testing.T) {
	for _, n := range []int64{0, 1, 0x12345678, 1 << 62} {
		w := uintWord(n)
		assert.True(t, policy.Evaluate(w, w, domain.Equal, domain.Static), n)
	}
}

func TestEvaluate_Relative(t *testing.T) {
	limit := uintWord(1000)

	assert.True(t, policy.Evaluate(uintWord(1001), limit, domain.Greater, domain.Static))
	assert.False(t, policy.Evaluate(uintWord(1000), limit, domain.Greater, domain.Static))
	assert.False(t, policy.Evaluate(uintWord(999), limit, domain.Greater, domain.Static))

	assert.True(t, policy.Evaluate(uintWord(999), limit, domain.Less, domain.Static))
	assert.False(t, policy.Evaluate(uintWord(1000), limit, domain.Less, domain.Static))
	assert.False(t, policy.Evaluate(uintWord(1001), limit, domain.Less, domain.Static))
}

func TestEvaluate_RelativeIsUnsigned(t *testing.T) {
	// 0xff..ff как uint256 — максимум, а не -1
	maxWord := common.FromHex("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	assert.True(t, policy.Evaluate(maxWord, uintWord(1), domain.Greater, domain.Static))
	assert.False(t, policy.Evaluate(maxWord, uintWord(1), domain.Less, domain.Static))
}

func TestEvaluate_FailClosed(t *testing.T) {
	// относительное сравнение не определено для динамических форм
	assert.False(t, policy.Evaluate([]byte("b"), []byte("a"), domain.Greater, domain.Dynamic))
	assert.False(t, policy.Evaluate(uintWord(2), uintWord(1), domain.Greater, domain.Dynamic32))
	// операнды не в одно слово
	assert.False(t, policy.Evaluate([]byte{2}, []byte{1}, domain.Greater, domain.Static))
	// неизвестные значения перечислений
	assert.False(t, policy.Evaluate(uintWord(1), uintWord(1), domain.Comparison(7), domain.Static))
	assert.False(t, policy.Evaluate(uintWord(1), uintWord(1), domain.Equal, domain.ParameterType(7)))
}
