package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/spaceai-roles-modifier/internal/infra"
)

// Repo дает доступ к PostgreSQL шлюзу и консоли.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo создает пул соединений и проверяет доступность базы.
func NewRepo(ctx context.Context, cfg infra.DatabaseConfig) (*Repo, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("postgres: database url is required")
	}
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: database unreachable: %w", err)
	}
	return &Repo{pool: pool}, nil
}

// Ping проверяет доступность базы
func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repo) Close() {
	r.pool.Close()
}

// addr приводит адрес к форме, в которой он хранится в базе: 0x + 40 hex в нижнем регистре.
func addr(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func parseAddr(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("postgres: malformed address %q", s)
	}
	return common.HexToAddress(s), nil
}
