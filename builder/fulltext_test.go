package builder

import (
	"errors"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/shibukawa/filterql"
)

func TestCompileTsQueryStrategy(t *testing.T) {
	opts := eventOptions()
	opts.SearchFields = []string{"title", "content"}
	opts.SearchStrategy = filterql.SearchStrategy{Kind: filterql.StrategyTsQuery, Config: "english"}

	compiled, err := Compile("elixir", testSchemas(t), opts)
	assert.NoError(t, err)

	assert.Equal(t,
		"to_tsvector('english', coalesce(title, '')) @@ plainto_tsquery('english', $1)"+
			" OR to_tsvector('english', coalesce(content, '')) @@ plainto_tsquery('english', $2)",
		compiled.Where)
	assert.Equal(t, []any{"elixir", "elixir"}, compiled.Args)
	assert.True(t, compiled.Meta.UsesFullText)
}

func TestCompileTsQueryWithoutConfig(t *testing.T) {
	opts := eventOptions()
	opts.SearchFields = []string{"title"}
	opts.SearchStrategy = filterql.SearchStrategy{Kind: filterql.StrategyTsQuery}

	compiled, err := Compile("elixir", testSchemas(t), opts)
	assert.NoError(t, err)

	assert.Equal(t, "to_tsvector(coalesce(title, '')) @@ plainto_tsquery($1)", compiled.Where)
}

func TestCompileRawTsQueryMode(t *testing.T) {
	opts := eventOptions()
	opts.SearchFields = []string{"title"}
	opts.SearchStrategy = filterql.SearchStrategy{Kind: filterql.StrategyTsQuery, Config: "english"}
	opts.TsqueryMode = filterql.TsqueryRaw

	compiled, err := Compile("'Go Postgres'", testSchemas(t), opts)
	assert.NoError(t, err)

	assert.Equal(t, "to_tsvector('english', coalesce(title, '')) @@ to_tsquery('english', $1)", compiled.Where)
	assert.Equal(t, []any{"Go:* & Postgres:*"}, compiled.Args)
}

func TestCompileColumnStrategy(t *testing.T) {
	opts := eventOptions()
	opts.SearchStrategy = filterql.SearchStrategy{
		Kind:   filterql.StrategyColumn,
		Config: "english",
		Column: "searchable",
	}

	compiled, err := Compile("elixir", testSchemas(t), opts)
	assert.NoError(t, err)

	assert.Equal(t, "searchable @@ plainto_tsquery('english', $1)", compiled.Where)
	assert.Equal(t, 1, len(compiled.SelectAdd))
	assert.Equal(t, "ts_rank_cd(searchable, plainto_tsquery('english', $2), 4)", compiled.SelectAdd[0].Expr)
	assert.Equal(t, "search_rank", compiled.SelectAdd[0].Alias)
	assert.Equal(t, []string{"search_rank"}, compiled.Meta.AddedSelectFields)
	assert.Equal(t, []OrderBy{{Expr: "search_rank", Dir: Desc}}, compiled.Meta.RecommendedOrder)
}

func TestCompileColumnStrategyRequiresColumn(t *testing.T) {
	opts := eventOptions()
	opts.SearchStrategy = filterql.SearchStrategy{Kind: filterql.StrategyColumn, Config: "english"}

	_, err := Compile("elixir", testSchemas(t), opts)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, filterql.ErrColumnStrategyNeedsColumn))
}

func TestCompileTsQueryRequiresPostgres(t *testing.T) {
	opts := eventOptions()
	opts.Dialect = filterql.DialectSQLite
	opts.SearchFields = []string{"title"}
	opts.SearchStrategy = filterql.SearchStrategy{Kind: filterql.StrategyTsQuery, Config: "english"}

	_, err := Compile("elixir", testSchemas(t), opts)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, filterql.ErrStrategyNotSupported))
}

func TestCompileILikeOnMySQLUsesLower(t *testing.T) {
	opts := eventOptions()
	opts.Dialect = filterql.DialectMySQL
	opts.SearchFields = []string{"title"}

	compiled, err := Compile("Elixir", testSchemas(t), opts)
	assert.NoError(t, err)

	assert.Equal(t, "lower(title) LIKE ?", compiled.Where)
	assert.Equal(t, []any{"%elixir%"}, compiled.Args)
}

func TestCompileSearchFieldOnAssociationJoins(t *testing.T) {
	opts := eventOptions()
	opts.SearchFields = []string{"title", "organization.name"}

	compiled, err := Compile("acme", testSchemas(t), opts)
	assert.NoError(t, err)

	assert.Equal(t, "title ILIKE $1 OR organization.name ILIKE $2", compiled.Where)
	assert.Equal(t, 1, len(compiled.Joins))
	assert.Equal(t, "organizations", compiled.Joins[0].Table)
}

func TestCompileNoSearchFieldsDropsTerm(t *testing.T) {
	compiled, err := Compile("elixir status:live", testSchemas(t), eventOptions())
	assert.NoError(t, err)

	assert.Equal(t, "status = $1", compiled.Where)
	assert.False(t, compiled.Meta.UsesFullText)
}

func TestCompileEmptySanitizedTermDropsPredicate(t *testing.T) {
	opts := eventOptions()
	opts.SearchFields = []string{"title"}
	opts.TsqueryMode = filterql.TsqueryRaw
	opts.SearchStrategy = filterql.SearchStrategy{Kind: filterql.StrategyTsQuery}

	// every token strips to less than two alphanumerics
	compiled, err := Compile("'! ? a'", testSchemas(t), opts)
	assert.NoError(t, err)
	assert.True(t, compiled.NoPredicates())
}

func TestCompileCustomSanitizer(t *testing.T) {
	opts := eventOptions()
	opts.SearchFields = []string{"title"}
	opts.Sanitizer = filterql.SanitizerFunc(strings.ToUpper)

	compiled, err := Compile("elixir", testSchemas(t), opts)
	assert.NoError(t, err)
	assert.Equal(t, []any{"%ELIXIR%"}, compiled.Args)
}

func TestBasicSanitize(t *testing.T) {
	assert.Equal(t, "hello world", basicSanitize("  hello \t  world  "))

	long := strings.Repeat("a", 150)
	assert.Equal(t, 100, len(basicSanitize(long)))

	assert.Equal(t, "", basicSanitize("   "))
}

func TestStrictSanitize(t *testing.T) {
	assert.Equal(t, "Go:* & Postgres:*", strictSanitize("Go & Postgres!"))

	// tokens shorter than two characters are dropped
	assert.Equal(t, "ab:*", strictSanitize("a ab ?"))

	// at most five tokens survive
	out := strictSanitize("alpha beta gamma delta epsilon zeta eta")
	assert.Equal(t, 5, len(strings.Split(out, " & ")))

	assert.Equal(t, "", strictSanitize(""))
}
