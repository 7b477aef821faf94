package builder

import (
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/shibukawa/filterql"
)

func testSchemas(t *testing.T) *filterql.Schemas {
	t.Helper()

	schemas, err := filterql.NewSchemas(map[string]filterql.SchemaDef{
		"events": {
			Table:      "events",
			PrimaryKey: "id",
			Fields: map[string]string{
				"status":          "text",
				"priority":        "integer",
				"active":          "boolean",
				"time_start":      "utc_datetime",
				"organization_id": "integer",
				"title":           "text",
				"content":         "text",
				"price":           "decimal",
				"labels":          "array<text>",
			},
			Associations: map[string]filterql.AssocDef{
				"organization": {
					Kind:       "belongs_to",
					Schema:     "organizations",
					OwnerKey:   "organization_id",
					RelatedKey: "id",
				},
				"tags": {
					Kind:           "many_to_many",
					Schema:         "tags",
					JoinTable:      "events_tags",
					JoinOwnerKey:   "event_id",
					JoinRelatedKey: "tag_id",
					RelatedKey:     "id",
				},
			},
		},
		"organizations": {
			Table:      "organizations",
			PrimaryKey: "id",
			Fields:     map[string]string{"name": "text"},
		},
		"tags": {
			Table:      "tags",
			PrimaryKey: "id",
			Fields:     map[string]string{"name": "text"},
		},
	})
	assert.NoError(t, err)

	return schemas
}

func eventOptions() filterql.Options {
	return filterql.Options{Schema: "events"}
}

func TestCompileSimpleField(t *testing.T) {
	compiled, err := Compile("status:live", testSchemas(t), eventOptions())
	assert.NoError(t, err)

	assert.Equal(t, "status = $1", compiled.Where)
	assert.Equal(t, []any{"live"}, compiled.Args)
	assert.False(t, compiled.Meta.UsesFullText)
	assert.False(t, compiled.Distinct)
	assert.Equal(t, 0, len(compiled.Joins))
}

func TestCompileBooleanPrecedence(t *testing.T) {
	compiled, err := Compile("status:live OR status:draft AND priority:10", testSchemas(t), eventOptions())
	assert.NoError(t, err)

	assert.Equal(t, "status = $1 OR (status = $2 AND priority = $3)", compiled.Where)
	assert.Equal(t, []any{"live", "draft", int64(10)}, compiled.Args)
}

func TestCompileAssociationFilter(t *testing.T) {
	opts := eventOptions()
	opts.AllowedFields = []filterql.AllowedField{
		{Field: "status"},
		{As: "org.name", Field: "organization.name"},
	}

	compiled, err := Compile("status:live AND org.name:Bea*", testSchemas(t), opts)
	assert.NoError(t, err)

	assert.Equal(t, "status = $1 AND organization.name ILIKE $2", compiled.Where)
	assert.Equal(t, []any{"live", "Bea%"}, compiled.Args)

	assert.Equal(t, 1, len(compiled.Joins))
	join := compiled.Joins[0]
	assert.Equal(t, "organizations", join.Table)
	assert.Equal(t, "organization", join.Alias)
	assert.Equal(t, "events.organization_id = organization.id", join.On)
	assert.False(t, compiled.Distinct)
}

func TestCompileAliasEquivalence(t *testing.T) {
	aliased := eventOptions()
	aliased.AllowedFields = []filterql.AllowedField{{As: "org.name", Field: "organization.name"}}

	direct := eventOptions()
	direct.AllowedFields = []filterql.AllowedField{{Field: "organization.name"}}

	first, err := Compile("org.name:Bea*", testSchemas(t), aliased)
	assert.NoError(t, err)

	second, err := Compile("organization.name:Bea*", testSchemas(t), direct)
	assert.NoError(t, err)

	assert.Equal(t, second.Where, first.Where)
	assert.Equal(t, second.Args, first.Args)
}

func TestCompileSetWithNull(t *testing.T) {
	compiled, err := Compile("organization_id IN (NULL, 7, 8)", testSchemas(t), eventOptions())
	assert.NoError(t, err)

	assert.Equal(t, "(organization_id IN ($1, $2)) OR organization_id IS NULL", compiled.Where)
	assert.Equal(t, []any{int64(7), int64(8)}, compiled.Args)
}

func TestCompileNotInWithNull(t *testing.T) {
	compiled, err := Compile("organization_id NOT IN (NULL, 7)", testSchemas(t), eventOptions())
	assert.NoError(t, err)

	assert.Equal(t, "(organization_id NOT IN ($1)) AND organization_id IS NOT NULL", compiled.Where)
	assert.Equal(t, []any{int64(7)}, compiled.Args)
}

func TestCompileNullOnlyList(t *testing.T) {
	compiled, err := Compile("organization_id IN (NULL)", testSchemas(t), eventOptions())
	assert.NoError(t, err)
	assert.Equal(t, "organization_id IS NULL", compiled.Where)

	compiled, err = Compile("organization_id NOT IN (NULL)", testSchemas(t), eventOptions())
	assert.NoError(t, err)
	assert.Equal(t, "organization_id IS NOT NULL", compiled.Where)
}

func TestCompileDateOnlyExpansion(t *testing.T) {
	start := time.Date(2025, 8, 7, 0, 0, 0, 0, time.UTC)
	next := time.Date(2025, 8, 8, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		where string
		args  []any
	}{
		{"eq", "time_start:2025-08-07", "time_start >= $1 AND time_start < $2", []any{start, next}},
		{"gte", "time_start>=2025-08-07", "time_start >= $1", []any{start}},
		{"gt", "time_start>2025-08-07", "time_start >= $1", []any{next}},
		{"lte", "time_start<=2025-08-07", "time_start < $1", []any{next}},
		{"lt", "time_start<2025-08-07", "time_start < $1", []any{start}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := Compile(tt.input, testSchemas(t), eventOptions())
			assert.NoError(t, err)
			assert.Equal(t, tt.where, compiled.Where)
			assert.Equal(t, tt.args, compiled.Args)
		})
	}
}

func TestCompileFullTextWithField(t *testing.T) {
	opts := eventOptions()
	opts.SearchFields = []string{"title", "content"}

	compiled, err := Compile("elixir status:published", testSchemas(t), opts)
	assert.NoError(t, err)

	assert.Equal(t, "(title ILIKE $1 OR content ILIKE $2) AND status = $3", compiled.Where)
	assert.Equal(t, []any{"%elixir%", "%elixir%", "published"}, compiled.Args)
	assert.True(t, compiled.Meta.UsesFullText)
}

func TestCompileNullEquality(t *testing.T) {
	compiled, err := Compile("organization_id:NULL", testSchemas(t), eventOptions())
	assert.NoError(t, err)
	assert.Equal(t, "organization_id IS NULL", compiled.Where)
	assert.Equal(t, 0, len(compiled.Args))
}

func TestCompileNotRewrites(t *testing.T) {
	compiled, err := Compile("NOT status:live", testSchemas(t), eventOptions())
	assert.NoError(t, err)
	assert.Equal(t, "status <> $1", compiled.Where)

	compiled, err = Compile("NOT organization_id:NULL", testSchemas(t), eventOptions())
	assert.NoError(t, err)
	assert.Equal(t, "organization_id IS NOT NULL", compiled.Where)

	compiled, err = Compile("NOT (status:live OR status:draft)", testSchemas(t), eventOptions())
	assert.NoError(t, err)
	assert.Equal(t, "NOT (status = $1 OR status = $2)", compiled.Where)
}

func TestCompileNullOrderedComparisonFails(t *testing.T) {
	opts := eventOptions()
	opts.InvalidCast = filterql.PolicyError

	_, err := Compile("priority>NULL", testSchemas(t), opts)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, filterql.ErrInvalidNullComparison))
}

func TestCompileManyToManyDistinct(t *testing.T) {
	compiled, err := Compile("tags.name:urgent", testSchemas(t), eventOptions())
	assert.NoError(t, err)

	assert.True(t, compiled.Distinct)
	assert.Equal(t, 2, len(compiled.Joins))
	assert.Equal(t, "events_tags", compiled.Joins[0].Table)
	assert.Equal(t, "events_tags.event_id = events.id", compiled.Joins[0].On)
	assert.Equal(t, "tags", compiled.Joins[1].Table)
	assert.Equal(t, "tags.id = events_tags.tag_id", compiled.Joins[1].On)
	assert.Equal(t, "tags.name = $1", compiled.Where)
}

func TestCompileContainsAllAssociation(t *testing.T) {
	compiled, err := Compile("tags.name ALL (urgent, billing)", testSchemas(t), eventOptions())
	assert.NoError(t, err)

	assert.Equal(t, "tags.name IN ($1, $2)", compiled.Where)
	assert.Equal(t, []any{"urgent", "billing"}, compiled.Args)
	assert.Equal(t, []string{"events.id"}, compiled.GroupBy)
	assert.Equal(t, "COUNT(DISTINCT tags.name) = 2", compiled.Having)

	// the aggregation plan replaces DISTINCT
	assert.False(t, compiled.Distinct)
}

func TestCompileContainsAllDeduplicates(t *testing.T) {
	compiled, err := Compile("tags.name ALL (urgent, urgent, billing)", testSchemas(t), eventOptions())
	assert.NoError(t, err)

	assert.Equal(t, []any{"urgent", "billing"}, compiled.Args)
	assert.Equal(t, "COUNT(DISTINCT tags.name) = 2", compiled.Having)
}

func TestCompileContainsAllArrayColumn(t *testing.T) {
	compiled, err := Compile("labels ALL (alpha, beta)", testSchemas(t), eventOptions())
	assert.NoError(t, err)

	assert.Equal(t, "labels @> ARRAY[$1, $2]::text[]", compiled.Where)
	assert.Equal(t, 0, len(compiled.GroupBy))
}

func TestCompileContainsAllScalarDegrades(t *testing.T) {
	compiled, err := Compile("status ALL (live, draft)", testSchemas(t), eventOptions())
	assert.NoError(t, err)

	assert.Equal(t, "status IN ($1, $2)", compiled.Where)
	assert.Equal(t, 1, len(compiled.Meta.Warnings))
	assert.Equal(t, WarnDegradedContainsAll, compiled.Meta.Warnings[0].Kind)
}

func TestCompileUnknownFieldPolicies(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		opts := eventOptions()
		opts.UnknownField = filterql.PolicyError

		_, err := Compile("bogus:1", testSchemas(t), opts)
		assert.Error(t, err)
		assert.True(t, errors.Is(err, filterql.ErrUnknownField))
	})

	t.Run("warn drops predicate", func(t *testing.T) {
		opts := eventOptions()
		opts.UnknownField = filterql.PolicyWarn

		compiled, err := Compile("bogus:1 AND status:live", testSchemas(t), opts)
		assert.NoError(t, err)
		assert.Equal(t, "status = $1", compiled.Where)
		assert.Equal(t, 1, len(compiled.Meta.Warnings))
	})

	t.Run("ignore drops silently", func(t *testing.T) {
		opts := eventOptions()
		opts.UnknownField = filterql.PolicyIgnore

		compiled, err := Compile("bogus:1 AND status:live", testSchemas(t), opts)
		assert.NoError(t, err)
		assert.Equal(t, "status = $1", compiled.Where)
		assert.Equal(t, 0, len(compiled.Meta.Warnings))
	})
}

func TestCompileAllowListRejectsOutsiders(t *testing.T) {
	opts := eventOptions()
	opts.AllowedFields = []filterql.AllowedField{{Field: "status"}}
	opts.UnknownField = filterql.PolicyError

	_, err := Compile("priority:10", testSchemas(t), opts)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, filterql.ErrUnknownField))

	compiled, err := Compile("status:live", testSchemas(t), opts)
	assert.NoError(t, err)
	assert.Equal(t, "status = $1", compiled.Where)
}

func TestCompileInvalidCastPolicies(t *testing.T) {
	opts := eventOptions()
	opts.InvalidCast = filterql.PolicyError

	_, err := Compile("priority:abc", testSchemas(t), opts)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, filterql.ErrInvalidValue))

	opts.InvalidCast = filterql.PolicyWarn
	compiled, err := Compile("priority:abc AND status:live", testSchemas(t), opts)
	assert.NoError(t, err)
	assert.Equal(t, "status = $1", compiled.Where)
	assert.Equal(t, 1, len(compiled.Meta.Warnings))
}

func TestCompileEmptySourceNoPredicates(t *testing.T) {
	compiled, err := Compile("", testSchemas(t), eventOptions())
	assert.NoError(t, err)
	assert.True(t, compiled.NoPredicates())
}

func TestCompileNegatedFullTextOnlyIsNoPredicates(t *testing.T) {
	opts := eventOptions()
	opts.SearchFields = []string{"title"}

	compiled, err := Compile("NOT elixir", testSchemas(t), opts)
	assert.NoError(t, err)
	assert.True(t, compiled.NoPredicates())
	assert.False(t, compiled.Meta.UsesFullText)
}

func TestCompileDeterministic(t *testing.T) {
	opts := eventOptions()
	opts.SearchFields = []string{"title", "content"}

	first, err := Compile("elixir status:live tags.name IN (a, b)", testSchemas(t), opts)
	assert.NoError(t, err)

	second, err := Compile("elixir status:live tags.name IN (a, b)", testSchemas(t), opts)
	assert.NoError(t, err)

	assert.Equal(t, first.Where, second.Where)
	assert.Equal(t, first.Args, second.Args)
	assert.Equal(t, first.Joins, second.Joins)
}

func TestCompileDecimalCast(t *testing.T) {
	compiled, err := Compile("price>=19.99", testSchemas(t), eventOptions())
	assert.NoError(t, err)
	assert.Equal(t, "price >= $1", compiled.Where)
	assert.Equal(t, 1, len(compiled.Args))
}

func TestCompileJoinOverflow(t *testing.T) {
	opts := eventOptions()
	opts.AllowAll = true
	opts.JoinOverflow = filterql.JoinOverflowError

	_, err := Compile("organization.name:a AND tags.name:b", testSchemas(t), opts)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, filterql.ErrJoinOverflow))

	opts.JoinOverflow = filterql.JoinOverflowIgnore
	compiled, err := Compile("organization.name:a AND tags.name:b", testSchemas(t), opts)
	assert.NoError(t, err)
	assert.Equal(t, "organization.name = $1", compiled.Where)
	assert.Equal(t, 1, len(compiled.Meta.Warnings))
	assert.Equal(t, WarnJoinOverflow, compiled.Meta.Warnings[0].Kind)
}

func TestCompileStrictMode(t *testing.T) {
	opts := eventOptions()
	opts.Mode = filterql.ModeStrict

	_, err := Compile("bogus:1", testSchemas(t), opts)
	assert.Error(t, err)
}
