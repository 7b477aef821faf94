package filterql

import (
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-yaml"
)

// AssocKind identifies the shape of an association between two schemas.
type AssocKind int

const (
	BelongsTo AssocKind = iota + 1
	HasOne
	HasMany
	ManyToMany
)

// String returns the configuration name of the association kind.
func (k AssocKind) String() string {
	switch k {
	case BelongsTo:
		return "belongs_to"
	case HasOne:
		return "has_one"
	case HasMany:
		return "has_many"
	case ManyToMany:
		return "many_to_many"
	default:
		return "unknown"
	}
}

// Association carries the key metadata needed to plan one join.
//
// For BelongsTo, OwnerKey is the foreign key on the owning (root) table and
// RelatedKey the referenced column. For HasOne/HasMany, RelatedKey is the
// foreign key on the associated table and OwnerKey the referenced root
// column. For ManyToMany, JoinTable/JoinOwnerKey/JoinRelatedKey describe the
// join table and RelatedKey the primary key of the associated table.
type Association struct {
	Name           string
	Kind           AssocKind
	Schema         string
	OwnerKey       string
	RelatedKey     string
	JoinTable      string
	JoinOwnerKey   string
	JoinRelatedKey string
}

// SchemaView is the read-only type registry consumed by the builder.
// Implementations must be safe for concurrent use.
type SchemaView interface {
	// Table returns the table name backing the schema, or "" if unknown.
	Table(schema string) string
	// PrimaryKey returns the primary key column of the schema.
	PrimaryKey(schema string) string
	// Fields returns the sorted field names of the schema.
	Fields(schema string) []string
	// Type returns the declared type of a field and whether it exists.
	Type(schema, field string) (FieldType, bool)
	// Association returns association metadata by name, or nil.
	Association(schema, name string) *Association
}

// SchemaDef is the YAML shape of a single schema definition.
type SchemaDef struct {
	Table        string              `yaml:"table"`
	PrimaryKey   string              `yaml:"primary_key"`
	Fields       map[string]string   `yaml:"fields"`
	Associations map[string]AssocDef `yaml:"associations"`
}

// AssocDef is the YAML shape of an association definition.
type AssocDef struct {
	Kind           string `yaml:"kind"`
	Schema         string `yaml:"schema"`
	OwnerKey       string `yaml:"owner_key"`
	RelatedKey     string `yaml:"related_key"`
	JoinTable      string `yaml:"join_table"`
	JoinOwnerKey   string `yaml:"join_owner_key"`
	JoinRelatedKey string `yaml:"join_related_key"`
}

// Schemas is a SchemaView backed by parsed schema definitions.
type Schemas struct {
	schemas map[string]*schemaEntry
}

type schemaEntry struct {
	table        string
	primaryKey   string
	fields       map[string]FieldType
	fieldNames   []string
	associations map[string]*Association
}

// NewSchemas builds a SchemaView from schema definitions, validating field
// types and association kinds.
func NewSchemas(defs map[string]SchemaDef) (*Schemas, error) {
	schemas := make(map[string]*schemaEntry, len(defs))

	for name, def := range defs {
		entry := &schemaEntry{
			table:        def.Table,
			primaryKey:   def.PrimaryKey,
			fields:       make(map[string]FieldType, len(def.Fields)),
			associations: make(map[string]*Association, len(def.Associations)),
		}
		if entry.table == "" {
			entry.table = name
		}
		if entry.primaryKey == "" {
			entry.primaryKey = "id"
		}

		for field, typeName := range def.Fields {
			ft, err := ParseFieldType(typeName)
			if err != nil {
				return nil, fmt.Errorf("schema %s, field %s: %w", name, field, err)
			}
			entry.fields[field] = ft
			entry.fieldNames = append(entry.fieldNames, field)
		}
		sort.Strings(entry.fieldNames)

		for assocName, assocDef := range def.Associations {
			kind, err := parseAssocKind(assocDef.Kind)
			if err != nil {
				return nil, fmt.Errorf("schema %s, association %s: %w", name, assocName, err)
			}
			entry.associations[assocName] = &Association{
				Name:           assocName,
				Kind:           kind,
				Schema:         assocDef.Schema,
				OwnerKey:       assocDef.OwnerKey,
				RelatedKey:     assocDef.RelatedKey,
				JoinTable:      assocDef.JoinTable,
				JoinOwnerKey:   assocDef.JoinOwnerKey,
				JoinRelatedKey: assocDef.JoinRelatedKey,
			}
		}

		schemas[name] = entry
	}

	return &Schemas{schemas: schemas}, nil
}

// LoadSchemas reads schema definitions from a YAML file. The file may be a
// bare map of schema definitions or a document with a top-level "schemas" key.
func LoadSchemas(path string) (*Schemas, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	var wrapped struct {
		Schemas map[string]SchemaDef `yaml:"schemas"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err == nil && len(wrapped.Schemas) > 0 {
		return NewSchemas(wrapped.Schemas)
	}

	var defs map[string]SchemaDef
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	return NewSchemas(defs)
}

func parseAssocKind(name string) (AssocKind, error) {
	switch name {
	case "belongs_to":
		return BelongsTo, nil
	case "has_one":
		return HasOne, nil
	case "has_many":
		return HasMany, nil
	case "many_to_many":
		return ManyToMany, nil
	default:
		return 0, fmt.Errorf("%w: unknown association kind %q", ErrInvalidValue, name)
	}
}

// Table returns the table backing the schema.
func (s *Schemas) Table(schema string) string {
	if entry, ok := s.schemas[schema]; ok {
		return entry.table
	}
	return ""
}

// PrimaryKey returns the primary key column of the schema.
func (s *Schemas) PrimaryKey(schema string) string {
	if entry, ok := s.schemas[schema]; ok {
		return entry.primaryKey
	}
	return "id"
}

// Fields returns the sorted field names of the schema.
func (s *Schemas) Fields(schema string) []string {
	if entry, ok := s.schemas[schema]; ok {
		return entry.fieldNames
	}
	return nil
}

// Type returns the declared type of a field.
func (s *Schemas) Type(schema, field string) (FieldType, bool) {
	if entry, ok := s.schemas[schema]; ok {
		ft, ok := entry.fields[field]
		return ft, ok
	}
	return FieldType{}, false
}

// Association returns association metadata by name.
func (s *Schemas) Association(schema, name string) *Association {
	if entry, ok := s.schemas[schema]; ok {
		return entry.associations[name]
	}
	return nil
}
