package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xela07ax/spaceai-roles-modifier/internal/abi"
	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
	"github.com/xela07ax/spaceai-roles-modifier/internal/infra/auth"
	"github.com/xela07ax/spaceai-roles-modifier/internal/policy"
)

// errDenied возвращает check при отказе (ненулевой код выхода).
var errDenied = errors.New("denied")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rolesctl",
		Short:         "Operator tooling for the roles modifier",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSelectorCmd())
	root.AddCommand(newEncodeCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newTokenCmd())
	return root
}

func newSelectorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selector <signature>",
		Short: "Print the 4-byte selector of a function signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arity, err := abi.Arity(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tparams=%d\n", abi.SelectorFromSignature(args[0]), arity)
			return nil
		},
	}
}

func newEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <static|dynamic|dynamic32> <abi-type> <value>",
		Short: "Encode a compare value for a parameter rule",
		Example: `  rolesctl encode static uint256 1000
  rolesctl encode dynamic string hello
  rolesctl encode dynamic32 uint32[] 1,2,3`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pt domain.ParameterType
			if err := pt.UnmarshalText([]byte(args[0])); err != nil {
				return err
			}
			out, err := abi.EncodeCompareValue(pt, args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(out))
			return nil
		},
	}
}

func newCheckCmd() *cobra.Command {
	var (
		configPath   string
		invokerHex   string
		toHex        string
		dataHex      string
		value        string
		delegateCall bool
		role         int
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate a call against a YAML role configuration offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRoleConfig(configPath)
			if err != nil {
				return err
			}
			e := policy.NewMemoEnforcer(nil, zap.NewNop())
			if err := e.Load(cfg); err != nil {
				return err
			}

			invoker, err := parseAddress("invoker", invokerHex)
			if err != nil {
				return err
			}
			call, err := buildCall(toHex, dataHex, value, delegateCall)
			if err != nil {
				return err
			}

			var d policy.Decision
			if role >= 0 {
				d, err = e.AuthorizeWithRole(context.Background(), invoker, uint16(role), call)
			} else {
				d, err = e.Authorize(context.Background(), invoker, call)
			}
			out := cmd.OutOrStdout()
			if err != nil {
				fmt.Fprintf(out, "DENY\treason=%s\t%v\n", domain.Reason(err), err)
				return errDenied
			}
			fmt.Fprintf(out, "ALLOW\trole=%d\tclearance=%s\n", d.RoleID, d.Clearance)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "roles.yaml", "role configuration file")
	f.StringVar(&invokerHex, "invoker", "", "invoker address")
	f.StringVar(&toHex, "to", "", "target address")
	f.StringVar(&dataHex, "data", "0x", "calldata (hex)")
	f.StringVar(&value, "value", "0", "value in wei")
	f.BoolVar(&delegateCall, "delegatecall", false, "use delegatecall operation")
	f.IntVar(&role, "role", -1, "check a single role instead of all invoker roles")
	_ = cmd.MarkFlagRequired("invoker")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		keyPath string
		subject string
		ttl     time.Duration
		scopes  []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an RS256 invoker token for local runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := parseAddress("subject", subject); err != nil {
				return err
			}
			pem, err := os.ReadFile(keyPath)
			if err != nil {
				return fmt.Errorf("read key: %w", err)
			}
			key, err := auth.ParseRSAPrivateKey(pem)
			if err != nil {
				return err
			}
			claims := &domain.CustomClaims{
				Scopes: make(map[string]bool, len(scopes)),
				RegisteredClaims: jwt.RegisteredClaims{
					Issuer:    "rolesctl",
					Subject:   subject,
					IssuedAt:  jwt.NewNumericDate(time.Now()),
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
				},
			}
			for _, s := range scopes {
				claims.Scopes[s] = true
			}
			signed, err := auth.NewIssuer(key).Sign(claims)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&keyPath, "key", "private.pem", "RSA private key (PEM)")
	f.StringVar(&subject, "subject", "", "invoker address")
	f.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	f.StringSliceVar(&scopes, "scope", nil, "scopes to grant")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func loadRoleConfig(path string) (*domain.RoleConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg domain.RoleConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfiguration, path, err)
	}
	return &cfg, nil
}

func parseAddress(name, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s %q is not an address", name, s)
	}
	return common.HexToAddress(s), nil
}

func buildCall(toHex, dataHex, value string, delegateCall bool) (domain.Call, error) {
	to, err := parseAddress("to", toHex)
	if err != nil {
		return domain.Call{}, err
	}
	data, err := hexutil.Decode(normalizeHex(dataHex))
	if err != nil {
		return domain.Call{}, fmt.Errorf("data: %w", err)
	}
	v, ok := new(big.Int).SetString(value, 0)
	if !ok || v.Sign() < 0 {
		return domain.Call{}, fmt.Errorf("value %q is not a non-negative integer", value)
	}
	call := domain.Call{To: to, Value: v, Data: data, Operation: domain.OperationCall}
	if delegateCall {
		call.Operation = domain.OperationDelegateCall
	}
	return call, nil
}

// normalizeHex: hexutil требует префикс 0x.
func normalizeHex(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return s
}
