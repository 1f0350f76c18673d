package testfixtures

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/hackgods/agendavet-scheduling/internal/remote"
)

// Call records one request made against Remote.
type Call struct {
	Op    string
	Table string
	ID    string
}

type fault struct {
	op, table string
	kind      error
}

// Remote is an in-memory remote.Store with fault injection. Rows round-trip
// through JSON on the way in so they look like decoded driver rows.
type Remote struct {
	mu      sync.Mutex
	tables  map[string][]remote.Row
	calls   []Call
	faults  []fault
	offline bool

	// BeforeCall, when set, runs before every call without holding the lock.
	BeforeCall func(op, table string)
}

func NewRemote() *Remote {
	return &Remote{tables: make(map[string][]remote.Row)}
}

// SetOffline makes every call fail with remote.ErrConnectivity.
func (r *Remote) SetOffline(offline bool) {
	r.mu.Lock()
	r.offline = offline
	r.mu.Unlock()
}

// FailNext makes the next op ("query", "insert", "update") on table fail with
// kind. Faults queue up and are consumed in order.
func (r *Remote) FailNext(op, table string, kind error) {
	r.mu.Lock()
	r.faults = append(r.faults, fault{op: op, table: table, kind: kind})
	r.mu.Unlock()
}

// Seed inserts rows directly, bypassing faults and call recording.
func (r *Remote) Seed(table string, rows ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range rows {
		row, err := remote.ToRow(v)
		if err != nil {
			panic(fmt.Sprintf("seed %s: %v", table, err))
		}
		r.tables[table] = append(r.tables[table], row)
	}
}

// Rows returns a copy of table's rows in insertion order.
func (r *Remote) Rows(table string) []remote.Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]remote.Row, len(r.tables[table]))
	for i, row := range r.tables[table] {
		out[i] = copyRow(row)
	}
	return out
}

func (r *Remote) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// CallsFor filters Calls by op.
func (r *Remote) CallsFor(op string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (r *Remote) begin(op, table, id string) error {
	if r.BeforeCall != nil {
		r.BeforeCall(op, table)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Op: op, Table: table, ID: id})
	if r.offline {
		return &remote.Error{Kind: remote.ErrConnectivity, Op: op, Table: table}
	}
	for i, f := range r.faults {
		if f.op == op && f.table == table {
			r.faults = append(r.faults[:i], r.faults[i+1:]...)
			return &remote.Error{Kind: f.kind, Op: op, Table: table}
		}
	}
	return nil
}

func (r *Remote) Query(_ context.Context, table string, filter remote.Filter) ([]remote.Row, error) {
	if err := r.begin("query", table, ""); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []remote.Row
	for _, row := range r.tables[table] {
		if matches(row, filter) {
			out = append(out, copyRow(row))
		}
	}
	if filter.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a, b := fmt.Sprint(out[i][filter.OrderBy]), fmt.Sprint(out[j][filter.OrderBy])
			if filter.Desc {
				return a > b
			}
			return a < b
		})
	}
	return out, nil
}

func (r *Remote) Insert(_ context.Context, table string, row remote.Row) (remote.Row, error) {
	id := fmt.Sprint(row["id"])
	if err := r.begin("insert", table, id); err != nil {
		return nil, err
	}
	normalized, err := remote.ToRow(row)
	if err != nil {
		return nil, &remote.Error{Kind: remote.ErrValidation, Op: "insert", Table: table, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tables[table] {
		if fmt.Sprint(existing["id"]) == id {
			return nil, &remote.Error{Kind: remote.ErrDuplicate, Op: "insert", Table: table, Code: "23505"}
		}
	}
	r.tables[table] = append(r.tables[table], normalized)
	return copyRow(normalized), nil
}

func (r *Remote) Update(_ context.Context, table, id string, patch remote.Row) (remote.Row, error) {
	if err := r.begin("update", table, id); err != nil {
		return nil, err
	}
	normalized, err := remote.ToRow(patch)
	if err != nil {
		return nil, &remote.Error{Kind: remote.ErrValidation, Op: "update", Table: table, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tables[table] {
		if fmt.Sprint(existing["id"]) == id {
			for k, v := range normalized {
				existing[k] = v
			}
			return copyRow(existing), nil
		}
	}
	return nil, &remote.Error{Kind: remote.ErrNotFound, Op: "update", Table: table}
}

func matches(row remote.Row, f remote.Filter) bool {
	for col, want := range f.Eq {
		if fmt.Sprint(row[col]) != fmt.Sprint(want) {
			return false
		}
	}
	for col, not := range f.NotEq {
		if fmt.Sprint(row[col]) == fmt.Sprint(not) {
			return false
		}
	}
	for col, allowed := range f.In {
		if !slices.Contains(allowed, fmt.Sprint(row[col])) {
			return false
		}
	}
	for _, col := range f.NotNull {
		if row[col] == nil {
			return false
		}
	}
	return true
}

func copyRow(row remote.Row) remote.Row {
	out := make(remote.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
