package filterql

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// ErrConfigValidation is returned when configuration validation fails
var ErrConfigValidation = errors.New("configuration validation failed")

// Config represents the filterql project configuration
type Config struct {
	Dialect     string               `yaml:"dialect"`
	Databases   map[string]Database  `yaml:"databases"`
	Schemas     map[string]SchemaDef `yaml:"schemas"`
	SchemaFiles []string             `yaml:"schema_files"`
	Filter      FilterConfig         `yaml:"filter"`
}

// Database represents database connection configuration
type Database struct {
	Driver     string `yaml:"driver"`
	Connection string `yaml:"connection"`
}

// FilterConfig holds the application-level defaults for compile options
type FilterConfig struct {
	Mode          string              `yaml:"mode"`
	Schema        string              `yaml:"schema"`
	UnknownField  string              `yaml:"unknown_field"`
	UnknownAssoc  string              `yaml:"unknown_assoc"`
	InvalidCast   string              `yaml:"invalid_cast"`
	MaxJoins      *int                `yaml:"max_joins"`
	JoinOverflow  string              `yaml:"join_overflow"`
	EmptyIn       string              `yaml:"empty_in"`
	AllowedFields []AllowedFieldEntry `yaml:"allowed_fields"`
	Search        SearchConfig        `yaml:"search"`
}

// SearchConfig holds full-text search settings
type SearchConfig struct {
	Strategy      string   `yaml:"strategy"` // ilike, tsquery, column
	Config        string   `yaml:"config"`   // text search configuration, e.g. english
	Column        string   `yaml:"column"`   // precomputed tsvector column
	Fields        []string `yaml:"fields"`
	TsqueryMode   string   `yaml:"tsquery_mode"` // plainto, raw
	SanitizerExpr string   `yaml:"sanitizer_expr"`
}

// AllowedFieldEntry is one allow-list entry in YAML form: either a plain
// string path or a mapping {as: ..., field: ...}. Unrecognized entries are
// dropped silently at conversion time.
type AllowedFieldEntry struct {
	As    string
	Field string
}

// UnmarshalYAML accepts both the string and the mapping form.
func (e *AllowedFieldEntry) UnmarshalYAML(data []byte) error {
	var plain string
	if err := yaml.Unmarshal(data, &plain); err == nil {
		e.Field = plain
		return nil
	}

	var mapping struct {
		As    string `yaml:"as"`
		Field string `yaml:"field"`
	}
	if err := yaml.Unmarshal(data, &mapping); err == nil {
		e.As = mapping.As
		e.Field = mapping.Field
		return nil
	}

	// not a recognized entry shape; drop it
	return nil
}

// DefaultConfigPath is the config file name looked up in the working directory.
const DefaultConfigPath = "filterql.yaml"

// LoadConfig loads the configuration file, loading .env first and expanding
// ${VAR} references in connection settings. A missing file yields a zero
// config, not an error.
func LoadConfig(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	expandConfigEnvVars(&config)

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Dialect {
	case "", string(DialectPostgres), string(DialectMySQL), string(DialectSQLite):
	default:
		return fmt.Errorf("%w: unknown dialect %q", ErrConfigValidation, c.Dialect)
	}

	switch c.Filter.Search.Strategy {
	case "", "ilike", "tsquery", "column":
	default:
		return fmt.Errorf("%w: unknown search strategy %q", ErrConfigValidation, c.Filter.Search.Strategy)
	}

	if c.Filter.Search.Strategy == "column" && c.Filter.Search.Column == "" {
		return fmt.Errorf("%w: search strategy 'column' requires a column name", ErrConfigValidation)
	}

	return nil
}

// SchemaView builds the schema view from the inline definitions plus any
// referenced schema files. Later files win on name collisions.
func (c *Config) SchemaView() (*Schemas, error) {
	defs := make(map[string]SchemaDef, len(c.Schemas))
	for name, def := range c.Schemas {
		defs[name] = def
	}

	for _, file := range c.SchemaFiles {
		loaded, err := loadSchemaDefs(file)
		if err != nil {
			return nil, err
		}
		for name, def := range loaded {
			defs[name] = def
		}
	}

	return NewSchemas(defs)
}

func loadSchemaDefs(path string) (map[string]SchemaDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	var wrapped struct {
		Schemas map[string]SchemaDef `yaml:"schemas"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err == nil && len(wrapped.Schemas) > 0 {
		return wrapped.Schemas, nil
	}

	var defs map[string]SchemaDef
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	return defs, nil
}

// BuildOptions converts the configured defaults into compile options.
func (c *Config) BuildOptions() (Options, error) {
	opts := Options{
		Schema:  c.Filter.Schema,
		Dialect: Dialect(c.Dialect),
	}

	switch c.Filter.Mode {
	case "lenient":
		opts.Mode = ModeLenient
	case "strict":
		opts.Mode = ModeStrict
	case "":
	default:
		return opts, fmt.Errorf("%w: unknown mode %q", ErrConfigValidation, c.Filter.Mode)
	}

	var err error
	if opts.UnknownField, err = parsePolicy(c.Filter.UnknownField); err != nil {
		return opts, err
	}
	if opts.UnknownAssoc, err = parsePolicy(c.Filter.UnknownAssoc); err != nil {
		return opts, err
	}
	if opts.InvalidCast, err = parsePolicy(c.Filter.InvalidCast); err != nil {
		return opts, err
	}

	opts.MaxJoins = c.Filter.MaxJoins

	switch c.Filter.JoinOverflow {
	case "ignore":
		opts.JoinOverflow = JoinOverflowIgnore
	case "error":
		opts.JoinOverflow = JoinOverflowError
	case "":
	default:
		return opts, fmt.Errorf("%w: unknown join_overflow %q", ErrConfigValidation, c.Filter.JoinOverflow)
	}

	switch c.Filter.EmptyIn {
	case "false":
		opts.EmptyIn = EmptyInFalse
	case "true":
		opts.EmptyIn = EmptyInTrue
	case "error":
		opts.EmptyIn = EmptyInError
	case "":
	default:
		return opts, fmt.Errorf("%w: unknown empty_in %q", ErrConfigValidation, c.Filter.EmptyIn)
	}

	for _, entry := range c.Filter.AllowedFields {
		if entry.Field == "" {
			continue
		}
		opts.AllowedFields = append(opts.AllowedFields, AllowedField{As: entry.As, Field: entry.Field})
	}

	search := c.Filter.Search
	switch search.Strategy {
	case "ilike":
		opts.SearchStrategy = SearchStrategy{Kind: StrategyILike}
	case "tsquery":
		opts.SearchStrategy = SearchStrategy{Kind: StrategyTsQuery, Config: search.Config}
	case "column":
		opts.SearchStrategy = SearchStrategy{Kind: StrategyColumn, Config: search.Config, Column: search.Column}
	}
	opts.SearchFields = search.Fields

	switch search.TsqueryMode {
	case "plainto":
		opts.TsqueryMode = TsqueryPlainto
	case "raw":
		opts.TsqueryMode = TsqueryRaw
	case "":
	default:
		return opts, fmt.Errorf("%w: unknown tsquery_mode %q", ErrConfigValidation, search.TsqueryMode)
	}

	if search.SanitizerExpr != "" {
		sanitizer, err := NewCELSanitizer(search.SanitizerExpr)
		if err != nil {
			return opts, err
		}
		opts.Sanitizer = sanitizer
	}

	return opts, nil
}

func parsePolicy(name string) (Policy, error) {
	switch name {
	case "ignore":
		return PolicyIgnore, nil
	case "warn":
		return PolicyWarn, nil
	case "error":
		return PolicyError, nil
	case "":
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: unknown policy %q", ErrConfigValidation, name)
	}
}

// loadEnvFiles loads .env files if they exist
func loadEnvFiles() error {
	if fileExists(".env") {
		err := godotenv.Load(".env")
		if err != nil {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or $VAR
func expandEnvVars(s string) string {
	re1 := regexp.MustCompile(`\$\{([^}]+)\}`)
	s = re1.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})

	re2 := regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	s = re2.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		return os.Getenv(varName)
	})

	return s
}

// expandConfigEnvVars expands environment variables in connection settings
func expandConfigEnvVars(config *Config) {
	for name, db := range config.Databases {
		db.Connection = expandEnvVars(db.Connection)
		db.Driver = expandEnvVars(db.Driver)
		config.Databases[name] = db
	}

	for i, file := range config.SchemaFiles {
		config.SchemaFiles[i] = expandEnvVars(file)
	}
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
