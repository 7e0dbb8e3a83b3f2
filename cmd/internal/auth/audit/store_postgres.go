package audit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists events to warden.audit_events.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, e Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO warden.audit_events (
			id, owner_id, principal_name, method, endpoint, outcome, status_code,
			error_detail, client_address, client_agent, correlation_id, duration_millis, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		e.ID, e.OwnerID, e.PrincipalName, e.Method, e.Endpoint, e.Outcome, e.StatusCode,
		e.ErrorDetail, e.ClientAddress, e.ClientAgent, e.CorrelationID, e.DurationMillis, e.OccurredAt,
	)
	return err
}

// whereClause renders f as a WHERE clause with positional args.
func whereClause(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}

	if f.OwnerID != "" {
		add("owner_id = ?", f.OwnerID)
	}
	if f.PrincipalName != "" {
		add("principal_name = ?", f.PrincipalName)
	}
	if f.Method != "" {
		add("upper(method) = upper(?)", f.Method)
	}
	if f.OutcomePattern != "" {
		add("outcome ILIKE '%' || ? || '%'", escapeLike(f.OutcomePattern))
	}
	if f.EndpointPattern != "" {
		add("endpoint ILIKE '%' || ? || '%'", escapeLike(f.EndpointPattern))
	}
	if f.ClientAddress != "" {
		add("client_address = ?", f.ClientAddress)
	}
	if !f.From.IsZero() {
		add("occurred_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at < ?", f.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Query implements Store.
func (s *PostgresStore) Query(ctx context.Context, f Filter, p PageRequest) (Page[Event], error) {
	p = p.Normalize()

	total, err := s.Count(ctx, f)
	if err != nil {
		return Page[Event]{}, err
	}

	where, args := whereClause(f)
	args = append(args, p.Size, p.Offset())
	sql := `
		SELECT id, owner_id, principal_name, method, endpoint, outcome, status_code,
		       error_detail, client_address, client_agent, correlation_id, duration_millis, occurred_at
		FROM warden.audit_events` + where + `
		ORDER BY occurred_at DESC, id DESC
		LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return Page[Event]{}, err
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		var e Event
		err := row.Scan(
			&e.ID, &e.OwnerID, &e.PrincipalName, &e.Method, &e.Endpoint, &e.Outcome, &e.StatusCode,
			&e.ErrorDetail, &e.ClientAddress, &e.ClientAgent, &e.CorrelationID, &e.DurationMillis, &e.OccurredAt,
		)
		return e, err
	})
	if err != nil {
		return Page[Event]{}, err
	}
	return NewPage(items, p, total), nil
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context, f Filter) (int, error) {
	where, args := whereClause(f)
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM warden.audit_events`+where, args...).Scan(&n)
	return n, err
}

// DeleteBefore implements Store.
func (s *PostgresStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM warden.audit_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
