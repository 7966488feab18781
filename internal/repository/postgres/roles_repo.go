package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
)

// LoadRoles выгружает всю конфигурацию ролей одним согласованным снимком:
// все чтения идут в одной repeatable read транзакции.
func (r *Repo) LoadRoles(ctx context.Context) (*domain.RoleConfig, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("postgres: begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	cfg := &domain.RoleConfig{DefaultRoles: make(map[common.Address]uint16)}

	// 1. Допуски к адресам
	cfg.Targets, err = queryTargets(ctx, tx, `SELECT role_id, target, clearance, options FROM role_targets ORDER BY role_id, target`)
	if err != nil {
		return nil, err
	}

	// 2. Правила функций
	cfg.Functions, err = queryFunctions(ctx, tx, `SELECT role_id, target, selector, options, rules FROM role_functions ORDER BY role_id, target, selector`)
	if err != nil {
		return nil, err
	}

	// 3. Назначения ролей
	rows, err := tx.Query(ctx, `SELECT invoker, role_id FROM role_members ORDER BY invoker, role_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: query members: %w", err)
	}
	cfg.Memberships, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Membership, error) {
		var inv string
		var role int32
		if err := row.Scan(&inv, &role); err != nil {
			return domain.Membership{}, err
		}
		a, err := parseAddr(inv)
		return domain.Membership{Invoker: a, RoleID: uint16(role)}, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan members: %w", err)
	}

	// 4. Роли по умолчанию
	rows, err = tx.Query(ctx, `SELECT invoker, role_id FROM default_roles`)
	if err != nil {
		return nil, fmt.Errorf("postgres: query default roles: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var inv string
		var role int32
		if err := rows.Scan(&inv, &role); err != nil {
			return nil, fmt.Errorf("postgres: scan default role: %w", err)
		}
		a, err := parseAddr(inv)
		if err != nil {
			return nil, err
		}
		cfg.DefaultRoles[a] = uint16(role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: default roles: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit snapshot: %w", err)
	}
	return cfg, nil
}

// GetRole возвращает конфигурацию одной роли для консоли.
func (r *Repo) GetRole(ctx context.Context, role uint16) ([]domain.TargetPermission, []domain.FunctionPermission, error) {
	targets, err := queryTargets(ctx, r.pool,
		`SELECT role_id, target, clearance, options FROM role_targets WHERE role_id = $1 ORDER BY target`, int32(role))
	if err != nil {
		return nil, nil, err
	}
	functions, err := queryFunctions(ctx, r.pool,
		`SELECT role_id, target, selector, options, rules FROM role_functions WHERE role_id = $1 ORDER BY target, selector`, int32(role))
	if err != nil {
		return nil, nil, err
	}
	return targets, functions, nil
}

// SetTarget записывает допуск. Clearance none хранится как отсутствие строки.
func (r *Repo) SetTarget(ctx context.Context, tp domain.TargetPermission) error {
	if tp.Clearance == domain.ClearanceNone {
		return r.DeleteTarget(ctx, tp.RoleID, tp.Target)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_targets (role_id, target, clearance, options)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (role_id, target) DO UPDATE
		SET clearance = EXCLUDED.clearance, options = EXCLUDED.options, updated_at = NOW()`,
		int32(tp.RoleID), addr(tp.Target), int16(tp.Clearance), int16(tp.Options))
	if err != nil {
		return fmt.Errorf("postgres: set target: %w", err)
	}
	return nil
}

func (r *Repo) DeleteTarget(ctx context.Context, role uint16, target common.Address) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM role_targets WHERE role_id = $1 AND target = $2`, int32(role), addr(target))
	if err != nil {
		return fmt.Errorf("postgres: delete target: %w", err)
	}
	return nil
}

// SetFunction полностью заменяет правила функции.
func (r *Repo) SetFunction(ctx context.Context, fp domain.FunctionPermission) error {
	return setFunction(ctx, r.pool, fp)
}

func (r *Repo) DeleteFunction(ctx context.Context, role uint16, target common.Address, selector domain.Selector) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM role_functions WHERE role_id = $1 AND target = $2 AND selector = $3`,
		int32(role), addr(target), selector.String())
	if err != nil {
		return fmt.Errorf("postgres: delete function: %w", err)
	}
	return nil
}

// UpdateFunction делает read-modify-write правила функции под блокировкой строки.
// fn получает текущее правило (found == false, если его нет) и меняет его на месте.
func (r *Repo) UpdateFunction(ctx context.Context, role uint16, target common.Address, selector domain.Selector,
	fn func(fp *domain.FunctionPermission, found bool) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		found := true
		fps, err := queryFunctions(ctx, tx, `
			SELECT role_id, target, selector, options, rules FROM role_functions
			WHERE role_id = $1 AND target = $2 AND selector = $3 FOR UPDATE`,
			int32(role), addr(target), selector.String())
		if err != nil {
			return err
		}
		fp := domain.FunctionPermission{RoleID: role, Target: target, Selector: selector}
		if len(fps) == 0 {
			found = false
		} else {
			fp = fps[0]
		}
		if err := fn(&fp, found); err != nil {
			return err
		}
		return setFunction(ctx, tx, fp)
	})
}

// AssignRoles применяет пары (role, memberOf) атомарно.
func (r *Repo) AssignRoles(ctx context.Context, invoker common.Address, roles []uint16, memberOf []bool) error {
	if len(roles) != len(memberOf) {
		return fmt.Errorf("%w: %d roles, %d flags", domain.ErrArraysDifferentLength, len(roles), len(memberOf))
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for i, role := range roles {
			if memberOf[i] {
				batch.Queue(`INSERT INTO role_members (invoker, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
					addr(invoker), int32(role))
			} else {
				batch.Queue(`DELETE FROM role_members WHERE invoker = $1 AND role_id = $2`,
					addr(invoker), int32(role))
			}
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: assign roles: %w", err)
		}
		return nil
	})
}

func (r *Repo) SetDefaultRole(ctx context.Context, invoker common.Address, role uint16) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO default_roles (invoker, role_id) VALUES ($1, $2)
		ON CONFLICT (invoker) DO UPDATE SET role_id = EXCLUDED.role_id, updated_at = NOW()`,
		addr(invoker), int32(role))
	if err != nil {
		return fmt.Errorf("postgres: set default role: %w", err)
	}
	return nil
}

// querier реализуют и пул, и транзакция.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func setFunction(ctx context.Context, e execer, fp domain.FunctionPermission) error {
	rules, err := encodeRules(fp.Parameters)
	if err != nil {
		return err
	}
	_, err = e.Exec(ctx, `
		INSERT INTO role_functions (role_id, target, selector, options, rules)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		ON CONFLICT (role_id, target, selector) DO UPDATE
		SET options = EXCLUDED.options, rules = EXCLUDED.rules, updated_at = NOW()`,
		int32(fp.RoleID), addr(fp.Target), fp.Selector.String(), int16(fp.Options), rules)
	if err != nil {
		return fmt.Errorf("postgres: set function: %w", err)
	}
	return nil
}

func queryTargets(ctx context.Context, q querier, sql string, args ...any) ([]domain.TargetPermission, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query targets: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TargetPermission, error) {
		var (
			role               int32
			target             string
			clearance, options int16
		)
		if err := row.Scan(&role, &target, &clearance, &options); err != nil {
			return domain.TargetPermission{}, err
		}
		a, err := parseAddr(target)
		return domain.TargetPermission{
			RoleID:    uint16(role),
			Target:    a,
			Clearance: domain.Clearance(clearance),
			Options:   domain.ExecutionOptions(options),
		}, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan targets: %w", err)
	}
	return out, nil
}

func queryFunctions(ctx context.Context, q querier, sql string, args ...any) ([]domain.FunctionPermission, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query functions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.FunctionPermission, error) {
		var (
			role             int32
			target, selector string
			options          int16
			rules            []byte
		)
		if err := row.Scan(&role, &target, &selector, &options, &rules); err != nil {
			return domain.FunctionPermission{}, err
		}
		return decodeFunction(role, target, selector, options, rules)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan functions: %w", err)
	}
	return out, nil
}

func decodeFunction(role int32, target, selector string, options int16, rules []byte) (domain.FunctionPermission, error) {
	a, err := parseAddr(target)
	if err != nil {
		return domain.FunctionPermission{}, err
	}
	sel, err := domain.ParseSelector(selector)
	if err != nil {
		return domain.FunctionPermission{}, err
	}
	fp := domain.FunctionPermission{
		RoleID:   uint16(role),
		Target:   a,
		Selector: sel,
		Options:  domain.ExecutionOptions(options),
	}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &fp.Parameters); err != nil {
			return domain.FunctionPermission{}, fmt.Errorf("%w: rules of %s.%s: %v", domain.ErrInvalidConfiguration, target, selector, err)
		}
	}
	return fp, nil
}

func encodeRules(rules []domain.ParameterRule) (string, error) {
	if rules == nil {
		rules = []domain.ParameterRule{}
	}
	b, err := json.Marshal(rules)
	if err != nil {
		return "", errors.Join(domain.ErrInvalidConfiguration, err)
	}
	return string(b), nil
}
