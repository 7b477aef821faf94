package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Error definitions
var (
	ErrDatabaseConnection  = errors.New("database connection failed")
	ErrQueryExecution      = errors.New("query execution failed")
	ErrInvalidOutputFormat = errors.New("invalid output format")
)

// OutputFormat represents the supported output formats
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatCSV   OutputFormat = "csv"
	FormatYAML  OutputFormat = "yaml"
)

// Result represents the result of a query execution
type Result struct {
	SQL        string        `json:"sql"`
	Parameters []any         `json:"parameters"`
	Duration   time.Duration `json:"duration"`

	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Count   int      `json:"count"`
}

// Executor runs compiled statements against a database
type Executor struct {
	db *sql.DB
}

// NewExecutor creates a new query executor
func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db}
}

// Open connects to a database and wraps it in an executor.
func Open(driver, connection string) (*Executor, error) {
	db, err := sql.Open(driver, connection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseConnection, err)
	}
	return NewExecutor(db), nil
}

// Close closes the underlying database handle.
func (e *Executor) Close() error {
	return e.db.Close()
}

// Execute runs a statement and collects every row.
func (e *Executor) Execute(ctx context.Context, stmt *Statement) (*Result, error) {
	sqlText, args := stmt.SQL()
	return e.ExecuteSQL(ctx, sqlText, args)
}

// ExecuteSQL runs raw SQL text with parameters.
func (e *Executor) ExecuteSQL(ctx context.Context, sqlText string, args []any) (*Result, error) {
	start := time.Now()

	rows, err := e.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryExecution, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryExecution, err)
	}

	result := &Result{
		SQL:        sqlText,
		Parameters: args,
		Columns:    columns,
	}

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrQueryExecution, err)
		}

		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}

		result.Rows = append(result.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryExecution, err)
	}

	result.Count = len(result.Rows)
	result.Duration = time.Since(start)

	return result, nil
}
