package remote

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTimeout bounds every remote call; exceeding it is reported as
// ErrConnectivity.
const DefaultTimeout = 10 * time.Second

var allowedTables = map[string]bool{
	TablePets:                true,
	TableAppointmentRequests: true,
	TableServices:            true,
}

type PgStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewPgStore(pool *pgxpool.Pool, timeout time.Duration) *PgStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &PgStore{pool: pool, timeout: timeout}
}

// Ping lets PgStore back a PingProbe.
func (s *PgStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PgStore) Query(ctx context.Context, table string, filter Filter) ([]Row, error) {
	if err := checkTable("query", table); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	where, args := buildWhere(filter, 1)
	sql := "SELECT * FROM " + pgx.Identifier{table}.Sanitize() + where
	if filter.OrderBy != "" {
		sql += " ORDER BY " + pgx.Identifier{filter.OrderBy}.Sanitize()
		if filter.Desc {
			sql += " DESC"
		}
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, Classify("query", table, err)
	}
	result, err := collectRows(rows)
	if err != nil {
		return nil, Classify("query", table, err)
	}
	return result, nil
}

func (s *PgStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	if err := checkTable("insert", table); err != nil {
		return nil, err
	}
	if len(row) == 0 {
		return nil, &Error{Kind: ErrValidation, Op: "insert", Table: table}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cols := sortedKeys(row)
	idents := make([]string, len(cols))
	params := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		idents[i] = pgx.Identifier{col}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[col]
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		pgx.Identifier{table}.Sanitize(), strings.Join(idents, ", "), strings.Join(params, ", "))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, Classify("insert", table, err)
	}
	return singleRow("insert", table, rows)
}

func (s *PgStore) Update(ctx context.Context, table, id string, patch Row) (Row, error) {
	if err := checkTable("update", table); err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, &Error{Kind: ErrValidation, Op: "update", Table: table}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cols := sortedKeys(patch)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{col}.Sanitize(), i+1)
		args = append(args, patch[col])
	}
	args = append(args, id)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING *",
		pgx.Identifier{table}.Sanitize(), strings.Join(sets, ", "), len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, Classify("update", table, err)
	}
	return singleRow("update", table, rows)
}

// Helpers

func checkTable(op, table string) error {
	if !allowedTables[table] {
		return &Error{Kind: ErrValidation, Op: op, Table: table, Err: fmt.Errorf("unknown table %q", table)}
	}
	return nil
}

func buildWhere(f Filter, next int) (string, []any) {
	var conds []string
	var args []any

	for _, col := range sortedKeys(f.Eq) {
		conds = append(conds, fmt.Sprintf("%s = $%d", pgx.Identifier{col}.Sanitize(), next))
		args = append(args, f.Eq[col])
		next++
	}
	for _, col := range sortedKeys(f.NotEq) {
		conds = append(conds, fmt.Sprintf("%s <> $%d", pgx.Identifier{col}.Sanitize(), next))
		args = append(args, f.NotEq[col])
		next++
	}
	for _, col := range sortedKeys(f.In) {
		conds = append(conds, fmt.Sprintf("%s::text = ANY($%d)", pgx.Identifier{col}.Sanitize(), next))
		args = append(args, f.In[col])
		next++
	}
	for _, col := range f.NotNull {
		conds = append(conds, pgx.Identifier{col}.Sanitize()+" IS NOT NULL")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func collectRows(rows pgx.Rows) ([]Row, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var result []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = normalizeValue(values[i], fd.DataTypeOID)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func singleRow(op, table string, rows pgx.Rows) (Row, error) {
	result, err := collectRows(rows)
	if err != nil {
		return nil, Classify(op, table, err)
	}
	if len(result) == 0 {
		return nil, &Error{Kind: ErrNotFound, Op: op, Table: table}
	}
	return result[0], nil
}

// normalizeValue turns driver values into the JSON-friendly shapes the rest of
// the core expects: dates as YYYY-MM-DD, times as HH:MM, uuids as strings.
func normalizeValue(v any, oid uint32) any {
	if v == nil {
		return nil
	}
	switch oid {
	case pgtype.DateOID:
		if t, ok := v.(time.Time); ok {
			return t.Format(time.DateOnly)
		}
	case pgtype.TimeOID:
		if t, ok := v.(pgtype.Time); ok && t.Valid {
			minutes := t.Microseconds / int64(time.Minute/time.Microsecond)
			return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
		}
	case pgtype.UUIDOID:
		if b, ok := v.([16]byte); ok {
			return uuid.UUID(b).String()
		}
	case pgtype.NumericOID:
		if n, ok := v.(pgtype.Numeric); ok {
			if f, err := n.Float64Value(); err == nil && f.Valid {
				return f.Float64
			}
			return nil
		}
	}
	return v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
