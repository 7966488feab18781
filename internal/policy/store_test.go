package policy_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
	"github.com/xela07ax/spaceai-roles-modifier/internal/policy"
)

var (
	target   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	selector = domain.Selector{0xa9, 0x05, 0x9c, 0xbb}
)

func staticRule(comp domain.Comparison, n int64) domain.ParameterRule {
	return domain.ParameterRule{Scoped: true, Type: domain.Static, Comparison: comp, CompareValue: uintWord(n)}
}

func TestRuleStore_TargetClearance(t *testing.T) {
	s := policy.NewRuleStore()

	_, ok := s.GetTargetPermission(1, target)
	assert.False(t, ok)

	require.NoError(t, s.AllowTarget(1, target, domain.OptionsSend))
	tp, ok := s.GetTargetPermission(1, target)
	require.True(t, ok)
	assert.Equal(t, domain.ClearanceTarget, tp.Clearance)
	assert.Equal(t, domain.OptionsSend, tp.Options)

	// запись заменяет целиком
	require.NoError(t, s.ScopeTarget(1, target))
	tp, _ = s.GetTargetPermission(1, target)
	assert.Equal(t, domain.ClearanceFunction, tp.Clearance)
	assert.Equal(t, domain.OptionsNone, tp.Options)

	require.NoError(t, s.RevokeTarget(1, target))
	tp, _ = s.GetTargetPermission(1, target)
	assert.Equal(t, domain.ClearanceNone, tp.Clearance)

	err := s.SetTargetClearance(1, target, domain.Clearance(9), domain.OptionsNone)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestRuleStore_SetFunctionPermissionReplaces(t *testing.T) {
	s := policy.NewRuleStore()

	require.NoError(t, s.SetFunctionPermission(1, target, selector,
		[]domain.ParameterRule{staticRule(domain.Equal, 1), staticRule(domain.Equal, 2)}, domain.OptionsNone))
	require.NoError(t, s.SetFunctionPermission(1, target, selector,
		[]domain.ParameterRule{{}, staticRule(domain.Greater, 5)}, domain.OptionsBoth))

	fp, ok := s.GetFunctionPermission(1, target, selector)
	require.True(t, ok)
	assert.Equal(t, domain.OptionsBoth, fp.Options)
	require.Len(t, fp.Parameters, 2)
	assert.False(t, fp.Parameters[0].Scoped)
	assert.Equal(t, domain.Greater, fp.Parameters[1].Comparison)

	_, ok = s.GetFunctionPermission(2, target, selector)
	assert.False(t, ok)
}

func TestRuleStore_ReturnsCopies(t *testing.T) {
	s := policy.NewRuleStore()
	rules := []domain.ParameterRule{staticRule(domain.Equal, 7)}
	require.NoError(t, s.SetFunctionPermission(1, target, selector, rules, domain.OptionsNone))

	// правка исходного среза после записи не влияет на хранилище
	rules[0].CompareValue[31] = 0xff
	fp, _ := s.GetFunctionPermission(1, target, selector)
	assert.Equal(t, uintWord(7), []byte(fp.Parameters[0].CompareValue))

	// правка полученной копии тоже
	fp.Parameters[0].Scoped = false
	again, _ := s.GetFunctionPermission(1, target, selector)
	assert.True(t, again.Parameters[0].Scoped)
}

func TestRuleStore_InvalidConfiguration(t *testing.T) {
	s := policy.NewRuleStore()

	tests := []struct {
		name  string
		rules []domain.ParameterRule
		want  error
	}{
		{
			name:  "greater on dynamic",
			rules: []domain.ParameterRule{{Scoped: true, Type: domain.Dynamic, Comparison: domain.Greater, CompareValue: []byte("a")}},
			want:  domain.ErrUnsuitableRelativeComparison,
		},
		{
			name:  "less on dynamic32",
			rules: []domain.ParameterRule{{Scoped: true, Type: domain.Dynamic32, Comparison: domain.Less, CompareValue: uintWord(0)}},
			want:  domain.ErrUnsuitableRelativeComparison,
		},
		{
			name:  "static value not one word",
			rules: []domain.ParameterRule{{Scoped: true, Type: domain.Static, CompareValue: []byte{1}}},
			want:  domain.ErrUnsuitableStaticCompValue,
		},
		{
			name:  "dynamic32 count mismatch",
			rules: []domain.ParameterRule{{Scoped: true, Type: domain.Dynamic32, CompareValue: append(uintWord(2), uintWord(1)...)}},
			want:  domain.ErrUnsuitableDynamic32CompValue,
		},
		{
			name:  "dynamic32 not word aligned",
			rules: []domain.ParameterRule{{Scoped: true, Type: domain.Dynamic32, CompareValue: append(uintWord(0), 1)}},
			want:  domain.ErrUnsuitableDynamic32CompValue,
		},
		{
			name:  "unknown type",
			rules: []domain.ParameterRule{{Scoped: true, Type: domain.ParameterType(5)}},
			want:  domain.ErrInvalidConfiguration,
		},
		{
			name:  "too many parameters",
			rules: make([]domain.ParameterRule, domain.MaxScopedParameters+1),
			want:  domain.ErrScopeMaxParametersExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.SetFunctionPermission(1, target, selector, tt.rules, domain.OptionsNone)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
			_, ok := s.GetFunctionPermission(1, target, selector)
			assert.False(t, ok, "rejected write must not be stored")
		})
	}
}

func TestRuleStore_UnscopedRuleIgnoresFields(t *testing.T) {
	s := policy.NewRuleStore()
	rules := []domain.ParameterRule{{Scoped: false, Type: domain.Dynamic, Comparison: domain.Greater, CompareValue: []byte{1}}}
	assert.NoError(t, s.SetFunctionPermission(1, target, selector, rules, domain.OptionsNone))
}

func TestRuleStore_Arity(t *testing.T) {
	s := policy.NewRuleStore()
	rules := []domain.ParameterRule{staticRule(domain.Equal, 1), staticRule(domain.Equal, 2)}

	err := s.SetFunctionPermissionWithArity(1, target, selector, 1, rules, domain.OptionsNone)
	assert.ErrorIs(t, err, domain.ErrArityExceeded)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	assert.NoError(t, s.SetFunctionPermissionWithArity(1, target, selector, 2, rules, domain.OptionsNone))
}

func TestRuleStore_ScopeAndUnscopeParameter(t *testing.T) {
	s := policy.NewRuleStore()

	require.NoError(t, s.ScopeParameter(1, target, selector, 2, domain.Static, domain.Less, uintWord(10)))
	fp, ok := s.GetFunctionPermission(1, target, selector)
	require.True(t, ok)
	require.Len(t, fp.Parameters, 3)
	assert.False(t, fp.Parameters[0].Scoped)
	assert.False(t, fp.Parameters[1].Scoped)
	assert.True(t, fp.Parameters[2].Scoped)

	require.NoError(t, s.UnscopeParameter(1, target, selector, 2))
	fp, _ = s.GetFunctionPermission(1, target, selector)
	assert.True(t, fp.IsWildcarded())

	assert.NoError(t, s.UnscopeParameter(1, target, domain.Selector{1, 2, 3, 4}, 0))

	err := s.ScopeParameter(1, target, selector, domain.MaxScopedParameters, domain.Static, domain.Equal, uintWord(1))
	assert.ErrorIs(t, err, domain.ErrScopeMaxParametersExceeded)

	err = s.ScopeParameter(1, target, selector, 0, domain.Dynamic, domain.Greater, []byte("x"))
	assert.ErrorIs(t, err, domain.ErrUnsuitableRelativeComparison)
}

func TestRuleStore_RevokeFunctionAndSnapshot(t *testing.T) {
	s := policy.NewRuleStore()
	other := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	require.NoError(t, s.ScopeTarget(2, other))
	require.NoError(t, s.ScopeTarget(1, target))
	require.NoError(t, s.AllowFunction(1, target, selector, domain.OptionsNone))
	require.NoError(t, s.AllowFunction(2, other, selector, domain.OptionsSend))

	targets, functions := s.Snapshot()
	require.Len(t, targets, 2)
	assert.Equal(t, uint16(1), targets[0].RoleID)
	require.Len(t, functions, 2)

	rt, rf := s.Role(2)
	require.Len(t, rt, 1)
	require.Len(t, rf, 1)
	assert.Equal(t, other, rf[0].Target)

	s.RevokeFunction(1, target, selector)
	_, ok := s.GetFunctionPermission(1, target, selector)
	assert.False(t, ok)
}
