package builder

import (
	"strings"

	"github.com/shibukawa/filterql"
)

// AllowList is the immutable trust declaration over user-visible field
// paths. An alias maps the path the user writes to the canonical path the
// compiler resolves.
type AllowList struct {
	AllowAll bool
	Allowed  map[string]struct{}
	Aliases  map[string]string
}

// NewAllowList builds an allow-list from option entries. Entries without a
// field are dropped silently: the allow-list is a trust declaration, not a
// schema.
func NewAllowList(opts filterql.Options) *AllowList {
	al := &AllowList{
		AllowAll: opts.AllowAll,
		Allowed:  make(map[string]struct{}),
		Aliases:  make(map[string]string),
	}

	for _, entry := range opts.AllowedFields {
		if entry.Field == "" {
			continue
		}
		if entry.As != "" {
			al.Aliases[entry.As] = entry.Field
		} else {
			al.Allowed[entry.Field] = struct{}{}
		}
	}

	return al
}

// Resolve maps a parsed field path to its canonical form. The second result
// is false when the path is outside the allow-list.
func (al *AllowList) Resolve(fieldPath []string) ([]string, bool) {
	if al.AllowAll {
		return fieldPath, true
	}

	joined := strings.Join(fieldPath, ".")

	if target, ok := al.Aliases[joined]; ok {
		return strings.Split(target, "."), true
	}
	if _, ok := al.Allowed[joined]; ok {
		return fieldPath, true
	}

	return nil, false
}
