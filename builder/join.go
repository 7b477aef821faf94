package builder

import (
	"fmt"
	"strings"

	"github.com/shibukawa/filterql"
)

// requireJoin registers the single association join the query is allowed to
// add. A second association, or any association when max_joins is zero,
// follows the join_overflow policy.
func (c *compiler) requireJoin(assoc *filterql.Association) error {
	if c.join != nil && c.join.Name == assoc.Name {
		return nil
	}

	maxJoins := 1
	if c.opts.MaxJoins != nil {
		maxJoins = *c.opts.MaxJoins
	}

	if c.join != nil || maxJoins < 1 {
		if c.opts.JoinOverflow == filterql.JoinOverflowError {
			return filterql.NewError(filterql.StageBuild, filterql.ErrJoinOverflow,
				fmt.Sprintf("Too many joins: association %q exceeds the limit of %d", assoc.Name, maxJoins))
		}
		c.warnings = append(c.warnings, Warning{
			Kind:    WarnJoinOverflow,
			Field:   assoc.Name,
			Message: fmt.Sprintf("Association %q dropped: join limit of %d reached", assoc.Name, maxJoins),
		})
		return errDropPredicate
	}

	c.join = assoc

	return nil
}

// planJoins produces the LEFT JOIN plan for the registered association.
// Missing key metadata falls back to conventions: <name>_id for a
// belongs-to owner key, <table without a trailing s>_id for has-one/has-many
// related keys and join-table keys, and the schema view's primary key for
// the remaining keys.
func planJoins(rootTable, rootPK string, assoc *filterql.Association, view filterql.SchemaView) []Join {
	table := view.Table(assoc.Schema)
	if table == "" {
		table = assoc.Schema
	}

	switch assoc.Kind {
	case filterql.BelongsTo:
		ownerKey := assoc.OwnerKey
		if ownerKey == "" {
			ownerKey = assoc.Name + "_id"
		}
		relatedKey := assoc.RelatedKey
		if relatedKey == "" {
			relatedKey = view.PrimaryKey(assoc.Schema)
		}
		return []Join{{
			Kind:  assoc.Kind,
			Table: table,
			Alias: assoc.Name,
			On:    fmt.Sprintf("%s.%s = %s.%s", rootTable, ownerKey, assoc.Name, relatedKey),
		}}

	case filterql.HasOne, filterql.HasMany:
		ownerKey := assoc.OwnerKey
		if ownerKey == "" {
			ownerKey = rootPK
		}
		relatedKey := assoc.RelatedKey
		if relatedKey == "" {
			relatedKey = foreignKeyFor(rootTable)
		}
		return []Join{{
			Kind:  assoc.Kind,
			Table: table,
			Alias: assoc.Name,
			On:    fmt.Sprintf("%s.%s = %s.%s", assoc.Name, relatedKey, rootTable, ownerKey),
		}}

	default: // ManyToMany
		joinTable := assoc.JoinTable
		joinOwnerKey := assoc.JoinOwnerKey
		if joinOwnerKey == "" {
			joinOwnerKey = foreignKeyFor(rootTable)
		}
		joinRelatedKey := assoc.JoinRelatedKey
		if joinRelatedKey == "" {
			joinRelatedKey = foreignKeyFor(table)
		}
		relatedKey := assoc.RelatedKey
		if relatedKey == "" {
			relatedKey = view.PrimaryKey(assoc.Schema)
		}
		return []Join{
			{
				Kind:  assoc.Kind,
				Table: joinTable,
				On:    fmt.Sprintf("%s.%s = %s.%s", joinTable, joinOwnerKey, rootTable, rootPK),
			},
			{
				Kind:  assoc.Kind,
				Table: table,
				Alias: assoc.Name,
				On:    fmt.Sprintf("%s.%s = %s.%s", assoc.Name, relatedKey, joinTable, joinRelatedKey),
			},
		}
	}
}

// foreignKeyFor derives the conventional foreign key column for a table
// name by trimming a plural 's'.
func foreignKeyFor(table string) string {
	return strings.TrimSuffix(table, "s") + "_id"
}
