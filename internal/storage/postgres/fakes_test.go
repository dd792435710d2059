package postgres

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB answers queries from canned results keyed by a fragment of the
// SQL text and records everything it is sent. Snapshot loading queries it
// from several goroutines.
type fakeDB struct {
	mu      sync.Mutex
	tx      *fakeTx
	execs   []string
	queries []string
	rows    map[string][][]any
	row     map[string][]rowResult
	err     error
}

type rowResult struct {
	values []any
	err    error
}

func (db *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	if db.tx == nil {
		db.tx = &fakeTx{}
	}
	return db.tx, nil
}

func (db *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.execs = append(db.execs, sql)
	return pgconn.CommandTag{}, db.err
}

func (db *fakeDB) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.queries = append(db.queries, sql)
	if db.err != nil {
		return nil, db.err
	}
	for frag, data := range db.rows {
		if strings.Contains(sql, frag) {
			return &fakeRows{data: data, pos: -1}, nil
		}
	}
	return &fakeRows{pos: -1}, nil
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.queries = append(db.queries, sql)
	for frag, results := range db.row {
		if strings.Contains(sql, frag) && len(results) > 0 {
			db.row[frag] = results[1:]
			return &fakeRow{values: results[0].values, err: results[0].err}
		}
	}
	return &fakeRow{err: pgx.ErrNoRows}
}

// fakeTx implements pgx.Tx, recording batches and the transaction outcome.
type fakeTx struct {
	batches    []*pgx.Batch
	execs      []string
	ids        []int64
	batchErr   error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

func (t *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not supported")
}

func (t *fakeTx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	t.batches = append(t.batches, b)
	return &fakeBatchResults{ids: t.ids, err: t.batchErr}
}

func (t *fakeTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (t *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (t *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (t *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	return &fakeRow{err: errors.New("not supported")}
}

func (t *fakeTx) Conn() *pgx.Conn { return nil }

// queued returns the SQL and arguments of every batched statement.
func (t *fakeTx) queued() []*pgx.QueuedQuery {
	var out []*pgx.QueuedQuery
	for _, b := range t.batches {
		out = append(out, b.QueuedQueries...)
	}
	return out
}

// fakeBatchResults hands out ids to QueryRow calls in order. Exec fails
// with err when set.
type fakeBatchResults struct {
	ids []int64
	err error
}

func (r *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, r.err
}

func (r *fakeBatchResults) Query() (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (r *fakeBatchResults) QueryRow() pgx.Row {
	if r.err != nil {
		return &fakeRow{err: r.err}
	}
	if len(r.ids) == 0 {
		return &fakeRow{err: pgx.ErrNoRows}
	}
	id := r.ids[0]
	r.ids = r.ids[1:]
	return &fakeRow{values: []any{id}}
}

func (r *fakeBatchResults) Close() error { return nil }

type fakeRow struct {
	values []any
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

// fakeRows iterates canned records.
type fakeRows struct {
	data [][]any
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	return assign(dest, r.data[r.pos])
}

func (r *fakeRows) Values() ([]any, error) {
	return r.data[r.pos], nil
}

// assign copies values into scan destinations. A nil value leaves the
// destination zeroed.
func assign(dest, values []any) error {
	if len(dest) != len(values) {
		return errors.New("scan: column count mismatch")
	}
	for i, v := range values {
		target := reflect.ValueOf(dest[i]).Elem()
		if v == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(v))
	}
	return nil
}
