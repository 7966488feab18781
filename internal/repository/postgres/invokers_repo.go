package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

// SetRevoked включает/выключает kill switch для invoker'а.
func (r *Repo) SetRevoked(ctx context.Context, invoker common.Address, revoked bool, reason string) error {
	var err error
	if revoked {
		_, err = r.pool.Exec(ctx, `
			INSERT INTO revoked_invokers (invoker, reason) VALUES ($1, $2)
			ON CONFLICT (invoker) DO UPDATE SET reason = EXCLUDED.reason`, addr(invoker), reason)
	} else {
		_, err = r.pool.Exec(ctx, `DELETE FROM revoked_invokers WHERE invoker = $1`, addr(invoker))
	}
	if err != nil {
		return fmt.Errorf("postgres: set revoked: %w", err)
	}
	return nil
}

// GetRevokedInvokers используется для прогрева kill switch.
func (r *Repo) GetRevokedInvokers(ctx context.Context) ([]string, error) {
	return r.invokerList(ctx, `SELECT invoker FROM revoked_invokers`)
}

func (r *Repo) SetSimulated(ctx context.Context, invoker common.Address, on bool) error {
	var err error
	if on {
		_, err = r.pool.Exec(ctx, `INSERT INTO simulated_invokers (invoker) VALUES ($1) ON CONFLICT DO NOTHING`, addr(invoker))
	} else {
		_, err = r.pool.Exec(ctx, `DELETE FROM simulated_invokers WHERE invoker = $1`, addr(invoker))
	}
	if err != nil {
		return fmt.Errorf("postgres: set simulated: %w", err)
	}
	return nil
}

func (r *Repo) GetSimulatedInvokers(ctx context.Context) ([]string, error) {
	return r.invokerList(ctx, `SELECT invoker FROM simulated_invokers`)
}

func (r *Repo) invokerList(ctx context.Context, sql string) ([]string, error) {
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("postgres: query invokers: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan invokers: %w", err)
	}
	return ids, nil
}
