package filterql

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "filterql.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadConfigMissingFileYieldsZeroConfig(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "", config.Dialect)
	assert.Empty(t, config.Databases)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
dialect: postgres
databases:
  development:
    driver: postgres
    connection: ${TEST_FILTERQL_DSN}
schemas:
  events:
    table: events
    primary_key: id
    fields:
      status: text
      priority: integer
    associations:
      organization:
        kind: belongs_to
        schema: organizations
        owner_key: organization_id
        related_key: id
  organizations:
    table: organizations
    fields:
      name: text
filter:
  mode: lenient
  schema: events
  allowed_fields:
    - status
    - as: org.name
      field: organization.name
  search:
    strategy: ilike
    fields: [title, content]
`)

	t.Setenv("TEST_FILTERQL_DSN", "postgres://localhost/app")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", config.Dialect)
	assert.Equal(t, "postgres://localhost/app", config.Databases["development"].Connection)

	view, err := config.SchemaView()
	require.NoError(t, err)
	assert.Equal(t, "events", view.Table("events"))

	ft, ok := view.Type("events", "priority")
	require.True(t, ok)
	assert.Equal(t, KindInteger, ft.Kind)

	assoc := view.Association("events", "organization")
	require.NotNil(t, assoc)
	assert.Equal(t, BelongsTo, assoc.Kind)

	opts, err := config.BuildOptions()
	require.NoError(t, err)
	assert.Equal(t, ModeLenient, opts.Mode)
	assert.Equal(t, "events", opts.Schema)
	assert.Equal(t, []AllowedField{
		{Field: "status"},
		{As: "org.name", Field: "organization.name"},
	}, opts.AllowedFields)
	assert.Equal(t, StrategyILike, opts.SearchStrategy.Kind)
	assert.Equal(t, []string{"title", "content"}, opts.SearchFields)
}

func TestLoadConfigRejectsUnknownDialect(t *testing.T) {
	path := writeConfig(t, "dialect: oracle\n")

	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, ErrConfigValidation)
}

func TestLoadConfigColumnStrategyNeedsColumn(t *testing.T) {
	path := writeConfig(t, `
filter:
  search:
    strategy: column
    config: english
`)

	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, ErrConfigValidation)
}

func TestBuildOptionsSanitizerExpr(t *testing.T) {
	path := writeConfig(t, `
filter:
  search:
    strategy: ilike
    fields: [title]
    sanitizer_expr: "term.lowerAscii()"
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	opts, err := config.BuildOptions()
	require.NoError(t, err)
	require.NotNil(t, opts.Sanitizer)
	assert.Equal(t, "hello", opts.Sanitizer.Sanitize("HELLO"))
}

func TestOptionsResolvedDefaults(t *testing.T) {
	opts := Options{Schema: "events"}.Resolved()

	assert.Equal(t, DialectPostgres, opts.Dialect)
	assert.Equal(t, PolicyWarn, opts.UnknownField)
	assert.Equal(t, PolicyWarn, opts.InvalidCast)
	assert.Equal(t, TsqueryPlainto, opts.TsqueryMode)
	assert.Equal(t, StrategyILike, opts.SearchStrategy.Kind)
	assert.True(t, opts.AllowAll)
	require.NotNil(t, opts.MaxJoins)
	assert.Equal(t, 1, *opts.MaxJoins)
}

func TestOptionsStrictPreset(t *testing.T) {
	opts := Options{Mode: ModeStrict}.Resolved()

	assert.Equal(t, PolicyError, opts.UnknownField)
	assert.Equal(t, PolicyError, opts.UnknownAssoc)
	assert.Equal(t, PolicyError, opts.InvalidCast)
	assert.Equal(t, JoinOverflowError, opts.JoinOverflow)
	assert.Equal(t, EmptyInError, opts.EmptyIn)
}

func TestOptionsMerge(t *testing.T) {
	base := Options{Schema: "events", UnknownField: PolicyWarn}
	merged := base.Merge(Options{UnknownField: PolicyError, Dialect: DialectSQLite})

	assert.Equal(t, "events", merged.Schema)
	assert.Equal(t, PolicyError, merged.UnknownField)
	assert.Equal(t, DialectSQLite, merged.Dialect)
}
