package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/spaceai-roles-modifier/internal/audit"
)

const auditColumns = "id, trace_id, invoker, target, selector, value, operation, data, mode, role_id, reason, status, return_data, error, duration_ms, timestamp"

// WriteBatch вставляет пачку решений одним INSERT.
func (r *Repo) WriteBatch(ctx context.Context, events []audit.DecisionEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_logs
	const numFields = 16
	var sb strings.Builder
	vals := make([]any, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('(')
		for j := 1; j <= numFields; j++ {
			if j > 1 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "$%d", i*numFields+j)
			if j == 6 {
				sb.WriteString("::text::numeric")
			}
		}
		sb.WriteByte(')')

		value := e.Value
		if value == "" {
			value = "0"
		}
		vals = append(vals,
			e.ID, e.TraceID, e.Invoker, e.Target, e.Selector, value, e.Operation, e.Data,
			e.Mode, e.RoleID, e.Reason, e.Status, e.ReturnData, e.Error, e.DurationMs, e.Timestamp,
		)
	}

	query := "INSERT INTO audit_logs (" + auditColumns + ") VALUES " + sb.String()
	if _, err := r.pool.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: write audit batch: %w", err)
	}
	return nil
}

// AuditFilter задает выборку журнала для консоли. Пустые поля не фильтруют.
type AuditFilter struct {
	Invoker string
	Status  string
	Limit   int
}

const maxAuditLimit = 500

func (r *Repo) ListAudit(ctx context.Context, f AuditFilter) ([]audit.DecisionEvent, error) {
	query, args := buildAuditQuery(f)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query audit: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (audit.DecisionEvent, error) {
		var e audit.DecisionEvent
		err := row.Scan(&e.ID, &e.TraceID, &e.Invoker, &e.Target, &e.Selector, &e.Value, &e.Operation, &e.Data,
			&e.Mode, &e.RoleID, &e.Reason, &e.Status, &e.ReturnData, &e.Error, &e.DurationMs, &e.Timestamp)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan audit: %w", err)
	}
	return events, nil
}

func buildAuditQuery(f AuditFilter) (string, []any) {
	cols := strings.Replace(auditColumns, "id,", "id::text,", 1)
	cols = strings.Replace(cols, "value,", "value::text,", 1)

	var (
		where []string
		args  []any
	)
	if f.Invoker != "" {
		args = append(args, strings.ToLower(f.Invoker))
		where = append(where, fmt.Sprintf("invoker = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	limit := f.Limit
	if limit <= 0 || limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	args = append(args, limit)

	q := "SELECT " + cols + " FROM audit_logs"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))
	return q, args
}
