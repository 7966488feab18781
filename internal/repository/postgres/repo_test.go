package postgres

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
)

func TestAddrIsLowercase(t *testing.T) {
	a := common.HexToAddress("0xAbCdEf0000000000000000000000000000000001")
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", addr(a))

	back, err := parseAddr(addr(a))
	require.NoError(t, err)
	assert.Equal(t, a, back)

	_, err = parseAddr("0x1234")
	assert.Error(t, err)
}

func TestRulesJSONRoundTrip(t *testing.T) {
	word := make([]byte, domain.WordSize)
	word[31] = 7
	rules := []domain.ParameterRule{
		{},
		{Scoped: true, Type: domain.Static, Comparison: domain.Less, CompareValue: word},
		{Scoped: true, Type: domain.Dynamic, Comparison: domain.Equal, CompareValue: []byte("hi")},
	}
	raw, err := encodeRules(rules)
	require.NoError(t, err)
	assert.Contains(t, raw, `"comparison":"lt"`)

	fp, err := decodeFunction(2, "0x00000000000000000000000000000000000000aa", "0xa9059cbb", int16(domain.OptionsSend), []byte(raw))
	require.NoError(t, err)
	assert.Equal(t, uint16(2), fp.RoleID)
	assert.Equal(t, domain.OptionsSend, fp.Options)
	assert.Equal(t, "0xa9059cbb", fp.Selector.String())
	require.Len(t, fp.Parameters, 3)
	assert.False(t, fp.Parameters[0].Scoped)
	assert.Equal(t, domain.HexBytes(word), fp.Parameters[1].CompareValue)
	assert.Equal(t, domain.HexBytes("hi"), fp.Parameters[2].CompareValue)
}

func TestEncodeRulesNilIsEmptyArray(t *testing.T) {
	raw, err := encodeRules(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)
}

func TestDecodeFunctionRejectsBrokenRules(t *testing.T) {
	_, err := decodeFunction(1, "0x00000000000000000000000000000000000000aa", "0xa9059cbb", 0, []byte(`[{"type":"nope"}]`))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestBuildAuditQuery(t *testing.T) {
	q, args := buildAuditQuery(AuditFilter{Invoker: "0xABC", Status: "DENIED", Limit: 10})
	assert.Contains(t, q, "invoker = $1 AND status = $2")
	assert.Contains(t, q, "LIMIT $3")
	assert.Contains(t, q, "id::text")
	assert.Equal(t, []any{"0xabc", "DENIED", 10}, args)

	q, args = buildAuditQuery(AuditFilter{Limit: 100000})
	assert.NotContains(t, q, "WHERE")
	assert.Equal(t, []any{maxAuditLimit}, args)
}
