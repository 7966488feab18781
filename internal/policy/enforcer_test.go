package policy_test

import (
	"context"
	"math/big"
	"strings"
	"testing"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-roles-modifier/internal/abi"
	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
	"github.com/xela07ax/spaceai-roles-modifier/internal/policy"
)

const roleID uint16 = 0

func calldata(t *testing.T, signature string, values ...any) []byte {
	t.Helper()
	open := strings.IndexByte(signature, '(')
	var args gethabi.Arguments
	if list := signature[open+1 : len(signature)-1]; list != "" {
		for _, typ := range strings.Split(list, ",") {
			ty, err := gethabi.NewType(typ, "", nil)
			require.NoError(t, err)
			args = append(args, gethabi.Argument{Type: ty})
		}
	}
	packed, err := args.Pack(values...)
	require.NoError(t, err)
	sel := abi.SelectorFromSignature(signature)
	return append(sel[:], packed...)
}

func newEnforcer(t *testing.T) *policy.MemoEnforcer {
	t.Helper()
	e := policy.NewMemoEnforcer(nil, zap.NewNop())
	require.NoError(t, e.Ledger().AssignRoles(invoker, []uint16{roleID}, []bool{true}))
	require.NoError(t, e.Store().ScopeTarget(roleID, target))
	return e
}

func scope(t *testing.T, e *policy.MemoEnforcer, signature string, rules ...domain.ParameterRule) {
	t.Helper()
	require.NoError(t, e.Store().SetFunctionPermission(roleID, target, abi.SelectorFromSignature(signature), rules, domain.OptionsNone))
}

func call(data []byte) domain.Call {
	return domain.Call{To: target, Data: data, Operation: domain.OperationCall}
}

func TestEnforcer_StaticEqualBytes4(t *testing.T) {
	e := newEnforcer(t)
	const sig = "fnWithSingleParam(bytes4)"
	want, err := abi.EncodeStatic("bytes4", [4]byte{0x12, 0x34, 0x56, 0x78})
	require.NoError(t, err)
	scope(t, e, sig, domain.ParameterRule{Scoped: true, Type: domain.Static, Comparison: domain.Equal, CompareValue: want})

	assert.True(t, e.IsAuthorized(invoker, call(calldata(t, sig, [4]byte{0x12, 0x34, 0x56, 0x78}))))
	for _, other := range [][4]byte{{0x12, 0x34, 0x56, 0x79}, {}, {0xff, 0xff, 0xff, 0xff}} {
		_, err := e.Authorize(context.Background(), invoker, call(calldata(t, sig, other)))
		assert.ErrorIs(t, err, domain.ErrParameterNotAllowed)
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	}
}

func TestEnforcer_DynamicEqualString(t *testing.T) {
	e := newEnforcer(t)
	const sig = "staticDynamic(bytes4,string)"
	scope(t, e, sig, domain.ParameterRule{}, domain.ParameterRule{
		Scoped: true, Type: domain.Dynamic, Comparison: domain.Equal, CompareValue: abi.EncodeDynamic([]byte("Hello World!")),
	})

	assert.True(t, e.IsAuthorized(invoker, call(calldata(t, sig, [4]byte{}, "Hello World!"))))
	assert.False(t, e.IsAuthorized(invoker, call(calldata(t, sig, [4]byte{}, "Hello World"))))
}

func TestEnforcer_Dynamic32EqualUint32Array(t *testing.T) {
	e := newEnforcer(t)
	const sig = "staticDynamicDynamic32(address,bytes,uint32[])"
	want, err := abi.EncodeDynamic32("uint32[]", []uint32{1, 2, 3})
	require.NoError(t, err)
	scope(t, e, sig,
		domain.ParameterRule{},
		domain.ParameterRule{},
		domain.ParameterRule{Scoped: true, Type: domain.Dynamic32, Comparison: domain.Equal, CompareValue: want},
	)

	one := common.HexToAddress("0x1")
	assert.True(t, e.IsAuthorized(invoker, call(calldata(t, sig, one, []byte{0xab, 0xcd}, []uint32{1, 2, 3}))))
	assert.False(t, e.IsAuthorized(invoker, call(calldata(t, sig, one, []byte{0xab, 0xcd}, []uint32{1, 2, 4}))))
	assert.False(t, e.IsAuthorized(invoker, call(calldata(t, sig, one, []byte{0xab, 0xcd}, []uint32{1, 2}))))
}

func TestEnforcer_AllParametersMustPass(t *testing.T) {
	e := newEnforcer(t)
	const sig = "dynamicDynamic32Static(string,uint32[],uint256)"
	arr, err := abi.EncodeDynamic32("uint32[]", []uint32{1975, 2000, 2025})
	require.NoError(t, err)
	scope(t, e, sig,
		domain.ParameterRule{Scoped: true, Type: domain.Dynamic, CompareValue: []byte("Hello World!")},
		domain.ParameterRule{Scoped: true, Type: domain.Dynamic32, CompareValue: arr},
		staticRule(domain.Equal, 123456789),
	)

	good := calldata(t, sig, "Hello World!", []uint32{1975, 2000, 2025}, big.NewInt(123456789))
	bad := calldata(t, sig, "Hello World!", []uint32{1975, 2000, 2025}, big.NewInt(987654321))
	assert.True(t, e.IsAuthorized(invoker, call(good)))
	assert.False(t, e.IsAuthorized(invoker, call(bad)))
}

func TestEnforcer_UnscopedParameterNeverMatters(t *testing.T) {
	e := newEnforcer(t)
	const sig = "transfer(address,uint256)"
	scope(t, e, sig, domain.ParameterRule{
		Scoped: false, Type: domain.Static, CompareValue: common.LeftPadBytes(common.HexToAddress("0x1").Bytes(), 32),
	}, staticRule(domain.Less, 1000))

	for _, to := range []string{"0x1", "0x2", "0xdeadbeef00000000000000000000000000000000"} {
		assert.True(t, e.IsAuthorized(invoker, call(calldata(t, sig, common.HexToAddress(to), big.NewInt(999)))), to)
		assert.False(t, e.IsAuthorized(invoker, call(calldata(t, sig, common.HexToAddress(to), big.NewInt(1000)))), to)
	}
}

func TestEnforcer_PositionsBeyondRulesAreUnscoped(t *testing.T) {
	e := newEnforcer(t)
	const sig = "transfer(address,uint256)"
	scope(t, e, sig, domain.ParameterRule{
		Scoped: true, Type: domain.Static, CompareValue: common.LeftPadBytes(common.HexToAddress("0x1").Bytes(), 32),
	})

	assert.True(t, e.IsAuthorized(invoker, call(calldata(t, sig, common.HexToAddress("0x1"), big.NewInt(1)))))
	assert.True(t, e.IsAuthorized(invoker, call(calldata(t, sig, common.HexToAddress("0x1"), big.NewInt(1e18)))))
}

func TestEnforcer_ClearanceAndOptions(t *testing.T) {
	e := policy.NewMemoEnforcer(nil, zap.NewNop())
	require.NoError(t, e.Ledger().AssignRoles(invoker, []uint16{1}, []bool{true}))
	ctx := context.Background()
	data := calldata(t, "ping()")

	// адрес не настроен
	_, err := e.Authorize(ctx, invoker, call(data))
	assert.ErrorIs(t, err, domain.ErrTargetAddressNotAllowed)

	// весь адрес, без опций: обычный call проходит, value и delegatecall отклоняются
	require.NoError(t, e.Store().AllowTarget(1, target, domain.OptionsNone))
	_, err = e.Authorize(ctx, invoker, call(data))
	assert.NoError(t, err)

	send := call(data)
	send.Value = big.NewInt(1)
	_, err = e.Authorize(ctx, invoker, send)
	assert.ErrorIs(t, err, domain.ErrSendNotAllowed)

	dc := call(data)
	dc.Operation = domain.OperationDelegateCall
	_, err = e.Authorize(ctx, invoker, dc)
	assert.ErrorIs(t, err, domain.ErrDelegateCallNotAllowed)

	require.NoError(t, e.Store().AllowTarget(1, target, domain.OptionsBoth))
	_, err = e.Authorize(ctx, invoker, send)
	assert.NoError(t, err)
	d, err := e.Authorize(ctx, invoker, dc)
	require.NoError(t, err)
	assert.Equal(t, policy.Decision{RoleID: 1, Clearance: domain.ClearanceTarget}, d)

	// scoped: функция не разрешена, затем разрешена только с Send
	require.NoError(t, e.Store().ScopeTarget(1, target))
	_, err = e.Authorize(ctx, invoker, call(data))
	assert.ErrorIs(t, err, domain.ErrFunctionNotAllowed)

	require.NoError(t, e.Store().AllowFunction(1, target, abi.SelectorFromSignature("ping()"), domain.OptionsSend))
	_, err = e.Authorize(ctx, invoker, send)
	assert.NoError(t, err)
	_, err = e.Authorize(ctx, invoker, dc)
	assert.ErrorIs(t, err, domain.ErrDelegateCallNotAllowed)

	require.NoError(t, e.Store().RevokeTarget(1, target))
	_, err = e.Authorize(ctx, invoker, call(data))
	assert.ErrorIs(t, err, domain.ErrTargetAddressNotAllowed)
}

func TestEnforcer_ShortPayloadOnScopedTarget(t *testing.T) {
	e := newEnforcer(t)
	_, err := e.Authorize(context.Background(), invoker, call([]byte{0x01}))
	assert.ErrorIs(t, err, domain.ErrFunctionSignatureTooShort)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestEnforcer_OrAcrossRoles(t *testing.T) {
	e := policy.NewMemoEnforcer(nil, zap.NewNop())
	const sig = "fnWithSingleParam(uint256)"
	sel := abi.SelectorFromSignature(sig)

	// роль 1 требует 1, роль 2 требует 2
	for role, v := range map[uint16]int64{1: 1, 2: 2} {
		require.NoError(t, e.Store().ScopeTarget(role, target))
		require.NoError(t, e.Store().SetFunctionPermission(role, target, sel,
			[]domain.ParameterRule{staticRule(domain.Equal, v)}, domain.OptionsNone))
	}
	require.NoError(t, e.Ledger().AssignRoles(invoker, []uint16{1, 2}, []bool{true, true}))

	d, err := e.Authorize(context.Background(), invoker, call(calldata(t, sig, big.NewInt(2))))
	require.NoError(t, err)
	assert.Equal(t, uint16(2), d.RoleID)

	d, err = e.Authorize(context.Background(), invoker, call(calldata(t, sig, big.NewInt(1))))
	require.NoError(t, err)
	assert.Equal(t, uint16(1), d.RoleID)

	assert.False(t, e.IsAuthorized(invoker, call(calldata(t, sig, big.NewInt(3)))))
}

func TestEnforcer_NoRolesAlwaysDenied(t *testing.T) {
	e := policy.NewMemoEnforcer(nil, zap.NewNop())
	require.NoError(t, e.Store().AllowTarget(0, target, domain.OptionsBoth))

	stranger := common.HexToAddress("0x00000000000000000000000000000000000000f0")
	_, err := e.Authorize(context.Background(), stranger, call(calldata(t, "ping()")))
	assert.ErrorIs(t, err, domain.ErrNoMembership)
	assert.False(t, e.IsAuthorized(stranger, call(calldata(t, "ping()"))))
}

func TestEnforcer_MalformedOffsetIsDeterministicDenial(t *testing.T) {
	e := newEnforcer(t)
	const sig = "f(string)"
	scope(t, e, sig, domain.ParameterRule{Scoped: true, Type: domain.Dynamic, CompareValue: []byte("Hello World!")})

	sel := abi.SelectorFromSignature(sig)
	data := append(sel[:], common.LeftPadBytes(big.NewInt(1<<40).Bytes(), 32)...)

	for i := 0; i < 3; i++ {
		_, err := e.Authorize(context.Background(), invoker, call(data))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrParameterNotAllowed)
		assert.ErrorIs(t, err, domain.ErrDecodingOutOfBounds)
	}
}

func TestEnforcer_DecodingFailureOnlyFailsThatRole(t *testing.T) {
	e := policy.NewMemoEnforcer(nil, zap.NewNop())
	const sig = "f(uint256)"
	sel := abi.SelectorFromSignature(sig)

	// роль 1 ожидает строку (Dynamic) и упадет на разборе, роль 2 ожидает статику
	require.NoError(t, e.Store().ScopeTarget(1, target))
	require.NoError(t, e.Store().SetFunctionPermission(1, target, sel,
		[]domain.ParameterRule{{Scoped: true, Type: domain.Dynamic, CompareValue: []byte("x")}}, domain.OptionsNone))
	require.NoError(t, e.Store().ScopeTarget(2, target))
	require.NoError(t, e.Store().SetFunctionPermission(2, target, sel,
		[]domain.ParameterRule{staticRule(domain.Equal, 1<<40)}, domain.OptionsNone))
	require.NoError(t, e.Ledger().AssignRoles(invoker, []uint16{1, 2}, []bool{true, true}))

	d, err := e.Authorize(context.Background(), invoker, call(calldata(t, sig, big.NewInt(1<<40))))
	require.NoError(t, err)
	assert.Equal(t, uint16(2), d.RoleID)
}

func TestEnforcer_AuthorizeWithRoleAndDefault(t *testing.T) {
	e := newEnforcer(t)
	ctx := context.Background()
	require.NoError(t, e.Store().AllowFunction(roleID, target, abi.SelectorFromSignature("ping()"), domain.OptionsNone))
	data := calldata(t, "ping()")

	_, err := e.AuthorizeWithRole(ctx, invoker, roleID, call(data))
	assert.NoError(t, err)

	_, err = e.AuthorizeWithRole(ctx, invoker, 9, call(data))
	assert.ErrorIs(t, err, domain.ErrRoleNotHeld)

	_, err = e.AuthorizeDefault(ctx, invoker, call(data))
	assert.ErrorIs(t, err, domain.ErrNoMembership)

	e.Ledger().SetDefaultRole(invoker, roleID)
	_, err = e.AuthorizeDefault(ctx, invoker, call(data))
	assert.NoError(t, err)

	_, err = e.AuthorizeWithRole(ctx, invoker, roleID, call(calldata(t, "pong()")))
	assert.ErrorIs(t, err, domain.ErrFunctionNotAllowed)
}
