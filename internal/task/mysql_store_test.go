package task

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taskRowColumns = []string{"id", "action", "params", "status", "attempts", "max_retries", "last_error", "error_code", "result", "created_at", "updated_at"}

func taskRow(id string, status Status, attempts, maxRetries int64, params, result any) []driver.Value {
	return []driver.Value{id, "echo", params, string(status), attempts, maxRetries, "", "", result, int64(1), int64(2)}
}

func TestMySQLStoreCreatesTable(t *testing.T) {
	db, drv := newMockDB(t, []mockOperation{
		execOp(createTableSQL, mockResult{}),
	})
	defer drv.assertConsumed(t)

	_, err := NewMySQLStore(context.Background(), db)
	require.NoError(t, err)
}

func TestMySQLStoreCreate(t *testing.T) {
	db, drv := newMockDB(t, []mockOperation{
		execOp(`INSERT INTO stellar_tasks (id, action, params, status, attempts, max_retries, last_error, error_code, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, '', '', ?, ?)`, mockResult{rowsAffected: 1}),
		{typ: opExec, err: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}},
	})
	defer drv.assertConsumed(t)
	store := &MySQLStore{db: db}

	task := &Task{ID: "t1", Action: "echo", Params: map[string]any{"msg": "hi"}, Status: StatusPending, MaxRetries: 3}
	require.NoError(t, store.Create(context.Background(), task))
	assert.NotZero(t, task.CreatedAt)

	err := store.Create(context.Background(), &Task{ID: "t1", Action: "echo", Status: StatusPending})
	assert.ErrorIs(t, err, ErrTaskConflict)
}

func TestMySQLStoreGetDecodesJSON(t *testing.T) {
	db, drv := newMockDB(t, []mockOperation{
		queryOp(selectColumns+` WHERE id = ?`, mockRowsData{
			columns: taskRowColumns,
			values:  [][]driver.Value{taskRow("t1", StatusSucceeded, 1, 3, `{"msg":"hi"}`, `{"echo":"hi"}`)},
		}),
		queryOp(selectColumns+` WHERE id = ?`, mockRowsData{columns: taskRowColumns}),
	})
	defer drv.assertConsumed(t)
	store := &MySQLStore{db: db}

	task, err := store.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, map[string]any{"msg": "hi"}, task.Params)
	assert.Equal(t, map[string]any{"echo": "hi"}, task.Result)

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestMySQLStoreClaim(t *testing.T) {
	claimSQL := `UPDATE stellar_tasks SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = '' WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`
	db, drv := newMockDB(t, []mockOperation{
		execOp(claimSQL, mockResult{rowsAffected: 1}),
		queryOp("", mockRowsData{columns: taskRowColumns, values: [][]driver.Value{taskRow("t1", StatusRunning, 1, 3, nil, nil)}}),
		execOp(claimSQL, mockResult{rowsAffected: 0}),
		queryOp("", mockRowsData{columns: taskRowColumns, values: [][]driver.Value{taskRow("t2", StatusSucceeded, 1, 3, nil, nil)}}),
		execOp(claimSQL, mockResult{rowsAffected: 0}),
		queryOp("", mockRowsData{columns: taskRowColumns, values: [][]driver.Value{taskRow("t3", StatusFailed, 3, 3, nil, nil)}}),
	})
	defer drv.assertConsumed(t)
	store := &MySQLStore{db: db}
	ctx := context.Background()

	task, err := store.Claim(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, task.Status)

	_, err = store.Claim(ctx, "t2")
	assert.ErrorIs(t, err, ErrTaskCompleted)

	_, err = store.Claim(ctx, "t3")
	assert.ErrorIs(t, err, ErrTaskExhausted)
}

func TestMySQLStoreMarkFailedUnknownTask(t *testing.T) {
	db, drv := newMockDB(t, []mockOperation{
		execOp(`UPDATE stellar_tasks SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`, mockResult{rowsAffected: 0}),
	})
	defer drv.assertConsumed(t)
	store := &MySQLStore{db: db}

	err := store.MarkFailed(context.Background(), "missing", CodeTaskProcessing, "boom")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestMySQLStoreListBuildsFilters(t *testing.T) {
	db, drv := newMockDB(t, []mockOperation{
		queryOp(selectColumns+` WHERE status IN (?,?) AND action = ? ORDER BY updated_at ASC, created_at ASC, id ASC LIMIT ? OFFSET ?`, mockRowsData{
			columns: taskRowColumns,
			values: [][]driver.Value{
				taskRow("t1", StatusPending, 0, 3, nil, nil),
				taskRow("t2", StatusFailed, 1, 3, nil, nil),
			},
		}),
	})
	defer drv.assertConsumed(t)
	store := &MySQLStore{db: db}

	tasks, err := store.List(context.Background(), buildListOptions([]ListOption{
		WithStatuses(StatusPending, StatusFailed),
		WithAction("echo"),
		WithSortOrder(SortByUpdatedAsc),
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, ids(tasks))
}

func TestMySQLStoreWrapsDriverErrors(t *testing.T) {
	db, drv := newMockDB(t, []mockOperation{
		{typ: opExec, err: errors.New("connection reset")},
	})
	defer drv.assertConsumed(t)

	_, err := NewMySQLStore(context.Background(), db)
	assert.True(t, IsTaskError(err, CodeTaskStorage))
}

type operationType int

const (
	opExec operationType = iota
	opQuery
)

type mockOperation struct {
	typ    operationType
	query  string
	result mockResult
	rows   mockRowsData
	err    error
}

type mockResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r mockResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r mockResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type mockRowsData struct {
	columns []string
	values  [][]driver.Value
}

type queueDriver struct {
	ops []mockOperation
	idx int32
}

var driverSeq atomic.Int32

func newMockDB(t *testing.T, ops []mockOperation) (*sql.DB, *queueDriver) {
	t.Helper()

	drv := &queueDriver{ops: ops}
	name := fmt.Sprintf("mock-tasks-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { db.Close() })
	return db, drv
}

func execOp(query string, result mockResult) mockOperation {
	return mockOperation{typ: opExec, query: query, result: result}
}

func queryOp(query string, rows mockRowsData) mockOperation {
	return mockOperation{typ: opQuery, query: query, rows: rows}
}

func (d *queueDriver) assertConsumed(t *testing.T) {
	t.Helper()
	assert.Equal(t, len(d.ops), int(atomic.LoadInt32(&d.idx)), "not all operations consumed")
}

func (d *queueDriver) Open(string) (driver.Conn, error) {
	return &mockConn{driver: d}, nil
}

type mockConn struct {
	driver *queueDriver
}

func (c *mockConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *mockConn) Close() error { return nil }

func (c *mockConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions not supported")
}

func (c *mockConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	op, err := c.next(opExec, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return op.result, nil
}

func (c *mockConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	op, err := c.next(opQuery, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockRows{columns: op.rows.columns, values: op.rows.values}, nil
}

func (c *mockConn) next(expected operationType, query string) (*mockOperation, error) {
	idx := int(atomic.LoadInt32(&c.driver.idx))
	if idx >= len(c.driver.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &c.driver.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", op.typ, expected)
	}
	atomic.AddInt32(&c.driver.idx, 1)
	if op.query != "" && normalizeSQL(op.query) != normalizeSQL(query) {
		return nil, fmt.Errorf("unexpected query. want %q got %q", normalizeSQL(op.query), normalizeSQL(query))
	}
	return op, nil
}

type mockRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *mockRows) Columns() []string { return r.columns }
func (r *mockRows) Close() error      { return nil }

func (r *mockRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func normalizeSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
