package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/shibukawa/filterql"
	"github.com/shibukawa/filterql/builder"
	"github.com/shibukawa/filterql/parser"
	"github.com/shibukawa/filterql/query"
)

// Sentinel errors
var (
	ErrEnvironmentNotFound = errors.New("database environment not found in config")
	ErrNoTableForSchema    = errors.New("no table resolved for schema")
)

// Context represents the global flags shared by all commands
type Context struct {
	Config  string
	Verbose bool
	Quiet   bool
}

// CompileCmd compiles a filter expression and prints SQL with parameters
type CompileCmd struct {
	Expression string `arg:"" help:"Filter expression to compile"`
	Schema     string `short:"s" help:"Root schema name (overrides config)"`
	Dialect    string `help:"Target dialect: postgres, mysql, sqlite"`
	Table      string `help:"Table to select from (defaults to the schema's table)"`
	Format     string `help:"Output format: sql, json" default:"sql"`
}

// Run executes the compile command
func (cmd *CompileCmd) Run(ctx *Context) error {
	base, view, opts, err := loadCompileContext(ctx, cmd.Schema, cmd.Dialect, cmd.Table)
	if err != nil {
		return err
	}

	sqlText, args, meta, err := query.ToSQL(base, cmd.Expression, view, opts)
	if err != nil {
		return printCompileError(ctx, err)
	}

	if cmd.Format == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(map[string]any{
			"sql":            sqlText,
			"parameters":     args,
			"uses_full_text": meta.UsesFullText,
			"warnings":       warningMessages(meta),
		})
	}

	fmt.Println(sqlText)

	if len(args) > 0 {
		color.Cyan("-- parameters: %v", args)
	}
	if ctx.Verbose {
		for _, warning := range warningMessages(meta) {
			color.Yellow("-- warning: %s", warning)
		}
	}

	return nil
}

// CheckCmd validates a filter expression without compiling it to SQL
type CheckCmd struct {
	Expression string `arg:"" help:"Filter expression to validate"`
}

// Run executes the check command
func (cmd *CheckCmd) Run(ctx *Context) error {
	node, err := parser.ParseString(cmd.Expression)
	if err != nil {
		return printCompileError(ctx, err)
	}

	if !ctx.Quiet {
		color.Green("OK")
		if ctx.Verbose {
			fmt.Println(parser.Format(node))
		}
	}

	return nil
}

// ExecCmd compiles a filter expression and runs it against a configured
// database environment
type ExecCmd struct {
	Expression  string `arg:"" help:"Filter expression to execute"`
	Environment string `short:"e" help:"Database environment from config" default:"development"`
	Schema      string `short:"s" help:"Root schema name (overrides config)"`
	Table       string `help:"Table to select from (defaults to the schema's table)"`
	Format      string `help:"Output format: table, json, csv, yaml" default:"table"`
	Timeout     string `help:"Query timeout duration" default:"30s"`
	Limit       int    `help:"Maximum number of rows" default:"100"`
	Offset      int    `help:"Row offset"`
}

// Run executes the exec command
func (cmd *ExecCmd) Run(ctx *Context) error {
	config, err := filterql.LoadConfig(ctx.Config)
	if err != nil {
		return err
	}

	dbConfig, ok := config.Databases[cmd.Environment]
	if !ok {
		return fmt.Errorf("%w: %q", ErrEnvironmentNotFound, cmd.Environment)
	}

	timeout, err := time.ParseDuration(cmd.Timeout)
	if err != nil {
		return fmt.Errorf("invalid timeout duration: %w", err)
	}

	dialect := canonicalDialectFromDriver(dbConfig.Driver)

	base, view, opts, err := loadCompileContext(ctx, cmd.Schema, dialect, cmd.Table)
	if err != nil {
		return err
	}
	base.Limit = cmd.Limit
	base.Offset = cmd.Offset

	stmt, meta, err := query.Filter(base, cmd.Expression, view, opts)
	if err != nil {
		return printCompileError(ctx, err)
	}

	executor, err := query.Open(normalizeSQLDriverName(dbConfig.Driver), dbConfig.Connection)
	if err != nil {
		return err
	}
	defer executor.Close()

	execCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := executor.Execute(execCtx, stmt)
	if err != nil {
		return err
	}

	if ctx.Verbose {
		color.Blue("-- %s", result.SQL)
		color.Blue("-- %d rows in %s", result.Count, result.Duration)
		for _, warning := range warningMessages(meta) {
			color.Yellow("-- warning: %s", warning)
		}
	}

	formatter := query.NewFormatter(query.OutputFormat(cmd.Format))

	return formatter.Write(result, os.Stdout)
}

// loadCompileContext assembles the base query, schema view, and options
// from config plus command-line overrides.
func loadCompileContext(ctx *Context, schema, dialect, table string) (query.Select, filterql.SchemaView, filterql.Options, error) {
	config, err := filterql.LoadConfig(ctx.Config)
	if err != nil {
		return query.Select{}, nil, filterql.Options{}, err
	}

	view, err := config.SchemaView()
	if err != nil {
		return query.Select{}, nil, filterql.Options{}, err
	}

	opts, err := config.BuildOptions()
	if err != nil {
		return query.Select{}, nil, filterql.Options{}, err
	}

	if schema != "" {
		opts.Schema = schema
	}
	if dialect != "" {
		opts.Dialect = filterql.Dialect(dialect)
	}

	if table == "" {
		table = view.Table(opts.Schema)
	}
	if table == "" {
		return query.Select{}, nil, filterql.Options{}, fmt.Errorf("%w: %q", ErrNoTableForSchema, opts.Schema)
	}

	return query.Select{Table: table}, view, opts, nil
}

// printCompileError renders a compile error with its stage and source
// position when available.
func printCompileError(ctx *Context, err error) error {
	var compileErr *filterql.Error
	if errors.As(err, &compileErr) && !ctx.Quiet {
		color.Red("%s error: %s", compileErr.Stage, compileErr.Message)
	}
	return err
}

func warningMessages(meta builder.Meta) []string {
	messages := make([]string, 0, len(meta.Warnings))
	for _, warning := range meta.Warnings {
		messages = append(messages, warning.Message)
	}
	return messages
}
