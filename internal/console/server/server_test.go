package server_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/spaceai-roles-modifier/internal/audit"
	"github.com/xela07ax/spaceai-roles-modifier/internal/console/handler"
	"github.com/xela07ax/spaceai-roles-modifier/internal/console/server"
	"github.com/xela07ax/spaceai-roles-modifier/internal/console/service"
	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
	"github.com/xela07ax/spaceai-roles-modifier/internal/infra"
	"github.com/xela07ax/spaceai-roles-modifier/internal/infra/auth"
	"github.com/xela07ax/spaceai-roles-modifier/internal/policy"
	"github.com/xela07ax/spaceai-roles-modifier/internal/repository/postgres"
)

const (
	targetHex  = "0x00000000000000000000000000000000000000aa"
	invokerHex = "0x00000000000000000000000000000000000000bb"
	transfer   = "0xa9059cbb"
)

// roleRepo реализует RoleRepository поверх in-memory хранилища движка.
type roleRepo struct {
	store  *policy.RuleStore
	ledger *policy.RoleLedger
}

func (r *roleRepo) GetRole(_ context.Context, role uint16) ([]domain.TargetPermission, []domain.FunctionPermission, error) {
	t, f := r.store.Role(role)
	return t, f, nil
}

func (r *roleRepo) SetTarget(_ context.Context, tp domain.TargetPermission) error {
	return r.store.SetTargetClearance(tp.RoleID, tp.Target, tp.Clearance, tp.Options)
}

func (r *roleRepo) DeleteTarget(_ context.Context, role uint16, target common.Address) error {
	return r.store.RevokeTarget(role, target)
}

func (r *roleRepo) SetFunction(_ context.Context, fp domain.FunctionPermission) error {
	return r.store.SetFunctionPermission(fp.RoleID, fp.Target, fp.Selector, fp.Parameters, fp.Options)
}

func (r *roleRepo) DeleteFunction(_ context.Context, role uint16, target common.Address, sel domain.Selector) error {
	r.store.RevokeFunction(role, target, sel)
	return nil
}

func (r *roleRepo) UpdateFunction(_ context.Context, role uint16, target common.Address, sel domain.Selector,
	fn func(*domain.FunctionPermission, bool) error) error {
	fp, found := r.store.GetFunctionPermission(role, target, sel)
	if !found {
		fp = domain.FunctionPermission{RoleID: role, Target: target, Selector: sel}
	}
	if err := fn(&fp, found); err != nil {
		return err
	}
	return r.store.SetFunctionPermission(role, target, sel, fp.Parameters, fp.Options)
}

func (r *roleRepo) AssignRoles(_ context.Context, invoker common.Address, roles []uint16, memberOf []bool) error {
	return r.ledger.AssignRoles(invoker, roles, memberOf)
}

func (r *roleRepo) SetDefaultRole(_ context.Context, invoker common.Address, role uint16) error {
	r.ledger.SetDefaultRole(invoker, role)
	return nil
}

type flagRepo struct {
	revoked   map[common.Address]string
	simulated map[common.Address]bool
}

func (f *flagRepo) SetRevoked(_ context.Context, invoker common.Address, revoked bool, reason string) error {
	if revoked {
		f.revoked[invoker] = reason
	} else {
		delete(f.revoked, invoker)
	}
	return nil
}

func (f *flagRepo) SetSimulated(_ context.Context, invoker common.Address, on bool) error {
	f.simulated[invoker] = on
	return nil
}

type notifier struct {
	mu        sync.Mutex
	published []string // "channel|payload"
	members   []string // "key|member|present"
}

func (n *notifier) Publish(_ context.Context, channel, payload string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.published = append(n.published, channel+"|"+payload)
	return nil
}

func (n *notifier) SetMember(_ context.Context, key, member string, present bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	state := "off"
	if present {
		state = "on"
	}
	n.members = append(n.members, key+"|"+member+"|"+state)
	return nil
}

type userRepo struct{ users map[string]*domain.User }

func (u *userRepo) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	return u.users[username], nil
}

type auditRepo struct{ last postgres.AuditFilter }

func (a *auditRepo) ListAudit(_ context.Context, f postgres.AuditFilter) ([]audit.DecisionEvent, error) {
	a.last = f
	return nil, nil
}

type fixture struct {
	srv    http.Handler
	issuer *auth.Issuer
	roles  *roleRepo
	flags  *flagRepo
	notes  *notifier
	audit  *auditRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)

	f := &fixture{
		issuer: auth.NewIssuer(key),
		roles:  &roleRepo{store: policy.NewRuleStore(), ledger: policy.NewRoleLedger()},
		flags:  &flagRepo{revoked: map[common.Address]string{}, simulated: map[common.Address]bool{}},
		notes:  &notifier{},
		audit:  &auditRepo{},
	}
	users := &userRepo{users: map[string]*domain.User{
		"operator": {ID: "u-1", Username: "operator", PasswordHash: string(hash), Scopes: map[string]bool{domain.ScopeRolesAdmin: true}},
	}}

	logger := zap.NewNop()
	f.srv = server.NewConsoleServer(
		logger,
		auth.NewBaseValidator(&key.PublicKey),
		handler.NewAuthHandler(service.NewAuthService(users, f.issuer, time.Hour)),
		handler.NewRoleHandler(service.NewRoleService(f.roles, f.notes, logger)),
		handler.NewInvokerHandler(service.NewInvokerService(f.flags, f.notes, logger)),
		handler.NewAuditHandler(service.NewAuditService(f.audit)),
	)
	return f
}

func (f *fixture) token(t *testing.T, scopes map[string]bool) string {
	t.Helper()
	tok, err := f.issuer.Sign(&domain.CustomClaims{
		UserID: "u-1",
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) admin(t *testing.T) string {
	return f.token(t, map[string]bool{domain.ScopeRolesAdmin: true})
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/token", "", `{"username":"operator","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp domain.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	// токен консоли открывает защищенный периметр
	rec = f.do(t, http.MethodGet, "/v1/roles/1", resp.AccessToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/token", "", `{"username":"operator","password":"wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/token", "", `{"username":"op","password":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPerimeter(t *testing.T) {
	f := newFixture(t)
	path := "/v1/roles/1/targets/" + targetHex

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/v1/roles/1", "", "").Code)

	reader := f.token(t, map[string]bool{"audit.read": true})
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/roles/1", reader, "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPut, path, reader, `{"clearance":"target"}`).Code)
	assert.Empty(t, f.notes.published)
}

func TestScopeFunctionAndParameter(t *testing.T) {
	f := newFixture(t)
	tok := f.admin(t)
	fn := "/v1/roles/1/targets/" + targetHex + "/functions/" + transfer

	rec := f.do(t, http.MethodPut, "/v1/roles/1/targets/"+targetHex, tok, `{"clearance":"function","options":"none"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPut, fn, tok, `{"options":"send","parameters":[]}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	limit := "0x" + strings.Repeat("00", 31) + "64"
	rec = f.do(t, http.MethodPut, fn+"/parameters/1", tok,
		`{"type":"static","comparison":"lt","compare_value":"`+limit+`"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/roles/1", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view service.RoleView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Targets, 1)
	assert.Equal(t, domain.ClearanceFunction, view.Targets[0].Clearance)
	require.Len(t, view.Functions, 1)
	fp := view.Functions[0]
	assert.Equal(t, domain.OptionsSend, fp.Options)
	require.Len(t, fp.Parameters, 2)
	assert.False(t, fp.Parameters[0].Scoped)
	assert.Equal(t, domain.Less, fp.Parameters[1].Comparison)

	assert.Len(t, f.notes.published, 3)
	for _, p := range f.notes.published {
		assert.Equal(t, infra.RedisChanConfigUpdate+"|refresh", p)
	}
}

func TestRejectsInvalidRules(t *testing.T) {
	f := newFixture(t)
	tok := f.admin(t)
	fn := "/v1/roles/1/targets/" + targetHex + "/functions/" + transfer

	rec := f.do(t, http.MethodPut, fn+"/parameters/0", tok, `{"type":"dynamic","comparison":"gt","compare_value":"0x01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "UnsuitableRelativeComparison")

	rec = f.do(t, http.MethodPut, fn+"/parameters/0", tok, `{"type":"static","comparison":"eq","compare_value":"0x01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "UnsuitableStaticCompValue")

	rec = f.do(t, http.MethodPut, fn+"/parameters/48", tok,
		`{"type":"static","comparison":"eq","compare_value":"0x`+strings.Repeat("00", 32)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ScopeMaxParametersExceeded")

	rec = f.do(t, http.MethodPut, "/v1/roles/70000/targets/"+targetHex, tok, `{"clearance":"target"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/v1/roles/1/targets/nope", tok, `{"clearance":"target"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/invokers/"+invokerHex+"/roles", tok, `{"roles":[1,2],"member_of":[true]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ArraysDifferentLength")

	assert.Empty(t, f.notes.published)
}

func TestUnscopeMissingFunctionIsNoop(t *testing.T) {
	f := newFixture(t)
	tok := f.admin(t)

	rec := f.do(t, http.MethodDelete, "/v1/roles/1/targets/"+targetHex+"/functions/"+transfer+"/parameters/0", tok, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := f.roles.store.GetFunctionPermission(1, common.HexToAddress(targetHex), domain.Selector{0xa9, 0x05, 0x9c, 0xbb})
	assert.False(t, ok)
	assert.Empty(t, f.notes.published)
}

func TestAssignRolesAndDefault(t *testing.T) {
	f := newFixture(t)
	tok := f.admin(t)
	inv := common.HexToAddress(invokerHex)

	rec := f.do(t, http.MethodPost, "/v1/invokers/"+invokerHex+"/roles", tok, `{"roles":[1,2],"member_of":[true,true]}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/v1/invokers/"+invokerHex+"/roles", tok, `{"roles":[1],"member_of":[false]}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []uint16{2}, f.roles.ledger.Roles(inv))

	rec = f.do(t, http.MethodPut, "/v1/invokers/"+invokerHex+"/default-role", tok, `{"role":2}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	role, ok := f.roles.ledger.DefaultRole(inv)
	require.True(t, ok)
	assert.Equal(t, uint16(2), role)

	rec = f.do(t, http.MethodPut, "/v1/invokers/"+invokerHex+"/default-role", tok, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKillSwitchAndSimulation(t *testing.T) {
	f := newFixture(t)
	tok := f.admin(t)
	inv := common.HexToAddress(invokerHex)

	rec := f.do(t, http.MethodPost, "/v1/invokers/"+invokerHex+"/revoke", tok, `{"reason":"leaked key"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Equal(t, "leaked key", f.flags.revoked[inv])

	rec = f.do(t, http.MethodDelete, "/v1/invokers/"+invokerHex+"/revoke", tok, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, f.flags.revoked, inv)

	rec = f.do(t, http.MethodPut, "/v1/invokers/"+invokerHex+"/simulation", tok, `{"enabled":true}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, f.flags.simulated[inv])

	assert.Equal(t, []string{
		infra.RedisChanKillSwitch + "|" + invokerHex + ":on",
		infra.RedisChanKillSwitch + "|" + invokerHex + ":off",
		infra.RedisChanSimulation + "|" + invokerHex + ":on",
	}, f.notes.published)
	assert.Equal(t, []string{
		infra.RedisKeyRevokedInvokers + "|" + invokerHex + "|on",
		infra.RedisKeyRevokedInvokers + "|" + invokerHex + "|off",
		infra.RedisKeySimulationInvoker + "|" + invokerHex + "|on",
	}, f.notes.members)
}

func TestAuditQuery(t *testing.T) {
	f := newFixture(t)
	tok := f.admin(t)

	rec := f.do(t, http.MethodGet, "/v1/audit?invoker="+invokerHex+"&status=DENIED&limit=20", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.Equal(t, postgres.AuditFilter{Invoker: invokerHex, Status: "DENIED", Limit: 20}, f.audit.last)

	rec = f.do(t, http.MethodGet, "/v1/audit?limit=many", tok, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
