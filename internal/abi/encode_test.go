package abi_test

import (
	"math/big"
	"testing"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/spaceai-roles-modifier/internal/abi"
	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
)

func TestSelectorFromSignature(t *testing.T) {
	assert.Equal(t, "0xa9059cbb", abi.SelectorFromSignature("transfer(address,uint256)").String())
	assert.Equal(t, "0x095ea7b3", abi.SelectorFromSignature("approve(address, uint256)").String())
}

func TestArity(t *testing.T) {
	tests := []struct {
		sig  string
		want int
	}{
		{"f()", 0},
		{"transfer(address,uint256)", 2},
		{"f(bytes2[],string,uint32)", 3},
		{"f((address,uint256),bytes)", 2},
		{"f((address,(uint8,bool))[],uint256)", 2},
	}
	for _, tt := range tests {
		got, err := abi.Arity(tt.sig)
		require.NoError(t, err, tt.sig)
		assert.Equal(t, tt.want, got, tt.sig)
	}

	for _, bad := range []string{"f", "f(", "f((a,b)", "f(a))"} {
		_, err := abi.Arity(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration, bad)
	}
}

func TestEncodeStatic_RejectsDynamicTypes(t *testing.T) {
	_, err := abi.EncodeStatic("string", "x")
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = abi.EncodeStatic("uint256[2]", [2]*big.Int{big.NewInt(1), big.NewInt(2)})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestEncodeDynamic32_RejectsNonArrays(t *testing.T) {
	_, err := abi.EncodeDynamic32("uint32", uint32(1))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = abi.EncodeDynamic32("string[]", []string{"a"})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestEncodeCompareValue_MatchesTypedEncoders(t *testing.T) {
	static, err := abi.EncodeCompareValue(domain.Static, "bytes4", "0x12345678")
	require.NoError(t, err)
	assert.Equal(t, mustStatic(t, "bytes4", [4]byte{0x12, 0x34, 0x56, 0x78}), static)

	addr, err := abi.EncodeCompareValue(domain.Static, "address", addressOne.Hex())
	require.NoError(t, err)
	assert.Equal(t, common.LeftPadBytes(addressOne.Bytes(), 32), addr)

	u, err := abi.EncodeCompareValue(domain.Static, "uint256", "123456789")
	require.NoError(t, err)
	assert.Equal(t, mustStatic(t, "uint256", big.NewInt(123456789)), u)

	str, err := abi.EncodeCompareValue(domain.Dynamic, "string", "Hello World!")
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello World!"), str)

	b, err := abi.EncodeCompareValue(domain.Dynamic, "bytes", "0xabcd")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xab, 0xcd}, b)

	arr, err := abi.EncodeCompareValue(domain.Dynamic32, "uint32[]", "[1,2,3]")
	require.NoError(t, err)
	assert.Equal(t, mustDynamic32(t, "uint32[]", []uint32{1, 2, 3}), arr)

	b2, err := abi.EncodeCompareValue(domain.Dynamic32, "bytes2[]", "0xaabb,0xccdd")
	require.NoError(t, err)
	assert.Equal(t, mustDynamic32(t, "bytes2[]", [][2]byte{{0xaa, 0xbb}, {0xcc, 0xdd}}), b2)
}

func TestParseValue_Errors(t *testing.T) {
	u8, err := gethabi.NewType("uint8", "", nil)
	require.NoError(t, err)
	_, err = abi.ParseValue(u8, "256")
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	addr, err := gethabi.NewType("address", "", nil)
	require.NoError(t, err)
	_, err = abi.ParseValue(addr, "0x1234")
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	b4, err := gethabi.NewType("bytes4", "", nil)
	require.NoError(t, err)
	_, err = abi.ParseValue(b4, "0x1234")
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}
