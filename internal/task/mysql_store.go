package task

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/gil0mendes/Stellar/deploy/migrations"
	xerrors "github.com/gil0mendes/Stellar/internal/errors"
)

// TableName is the table MySQLStore keeps task state in.
const TableName = "stellar_tasks"

var createTableSQL = migrations.MustRead(migrations.TaskTable)

const selectColumns = `SELECT id, action, params, status, attempts, max_retries, last_error, error_code, result, created_at, updated_at FROM stellar_tasks`

// MySQLStore keeps task state in MySQL. The pool belongs to the database
// satellite, so the store never closes it.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore wraps db and makes sure the task table exists.
func NewMySQLStore(ctx context.Context, db *sql.DB) (*MySQLStore, error) {
	if db == nil {
		return nil, xerrors.New(CodeTaskValidation, "mysql task store needs a database handle")
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return nil, xerrors.Wrap(CodeTaskStorage, err, "create table "+TableName)
	}
	return &MySQLStore{db: db}, nil
}

// Create inserts a new task row.
func (s *MySQLStore) Create(ctx context.Context, task *Task) error {
	if task == nil || strings.TrimSpace(task.ID) == "" {
		return xerrors.New(CodeTaskValidation, "task id is required")
	}

	now := time.Now().Unix()
	task.CreatedAt = now
	task.UpdatedAt = now

	params, err := marshalJSON(task.Params)
	if err != nil {
		return xerrors.Wrap(CodeTaskValidation, err, "encode task params")
	}

	const stmt = `INSERT INTO stellar_tasks
        (id, action, params, status, attempts, max_retries, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, '', '', ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		task.ID,
		task.Action,
		params,
		string(task.Status),
		task.Attempts,
		task.MaxRetries,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrTaskConflict
		}
		return xerrors.Wrap(CodeTaskStorage, err, "insert task")
	}
	return nil
}

// Get loads one task.
func (s *MySQLStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, xerrors.Wrap(CodeTaskStorage, err, "load task")
	}
	return task, nil
}

// Claim moves a pending or failed task to running and counts the attempt.
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Task, error) {
	const stmt = `UPDATE stellar_tasks SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`

	res, err := s.db.ExecContext(ctx, stmt,
		string(StatusRunning),
		time.Now().Unix(),
		id,
		string(StatusPending),
		string(StatusFailed),
	)
	if err != nil {
		return nil, xerrors.Wrap(CodeTaskStorage, err, "claim task")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(CodeTaskStorage, err, "claim task")
	}

	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if affected > 0 {
		return task, nil
	}
	switch {
	case task.Status == StatusSucceeded:
		return task, ErrTaskCompleted
	case task.Status != StatusRunning && task.Attempts >= task.MaxRetries:
		return task, ErrTaskExhausted
	default:
		return task, ErrTaskConflict
	}
}

// MarkSucceeded stores the action response as JSON.
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, result any) error {
	encoded, err := marshalJSON(result)
	if err != nil {
		return xerrors.Wrap(CodeTaskStorage, err, "encode task result")
	}
	const stmt = `UPDATE stellar_tasks SET status = ?, result = ?, updated_at = ?, last_error = '', error_code = '' WHERE id = ?`
	return s.update(ctx, stmt, string(StatusSucceeded), encoded, time.Now().Unix(), id)
}

// MarkFailed records a failed attempt.
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string) error {
	const stmt = `UPDATE stellar_tasks SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`
	return s.update(ctx, stmt, string(StatusFailed), lastError, string(code), time.Now().Unix(), id)
}

func (s *MySQLStore) update(ctx context.Context, stmt string, args ...any) error {
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return xerrors.Wrap(CodeTaskStorage, err, "update task")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// List implements Store.
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Task, error) {
	opts.applyDefaults()

	query := selectColumns
	clause, args := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}
	if opts.Order == SortByUpdatedAsc {
		query += " ORDER BY updated_at ASC, created_at ASC, id ASC"
	} else {
		query += " ORDER BY updated_at DESC, created_at DESC, id DESC"
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(CodeTaskStorage, err, "list tasks")
	}
	defer rows.Close()

	tasks := make([]*Task, 0, opts.Limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, xerrors.Wrap(CodeTaskStorage, err, "scan task")
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(CodeTaskStorage, err, "list tasks")
	}
	return tasks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*Task, error) {
	var (
		task      Task
		params    sql.NullString
		lastError sql.NullString
		errorCode sql.NullString
		result    sql.NullString
	)
	if err := row.Scan(
		&task.ID,
		&task.Action,
		&params,
		&task.Status,
		&task.Attempts,
		&task.MaxRetries,
		&lastError,
		&errorCode,
		&result,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	task.LastError = lastError.String
	task.ErrorCode = errorCode.String
	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &task.Params); err != nil {
			return nil, fmt.Errorf("decode params of task %s: %w", task.ID, err)
		}
	}
	if result.Valid && result.String != "" {
		if err := json.Unmarshal([]byte(result.String), &task.Result); err != nil {
			return nil, fmt.Errorf("decode result of task %s: %w", task.ID, err)
		}
	}
	return &task, nil
}

func marshalJSON(value any) (sql.NullString, error) {
	if value == nil {
		return sql.NullString{}, nil
	}
	if m, ok := value.(map[string]any); ok && len(m) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 2)
	args := make([]any, 0, len(opts.Statuses)+3)

	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))
		for _, status := range opts.Statuses {
			placeholders = append(placeholders, "?")
			args = append(args, string(status))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if opts.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, opts.Action)
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*MySQLStore)(nil)
