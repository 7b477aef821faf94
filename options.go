package filterql

import "sync"

// Policy selects how the builder reacts to a recoverable problem.
type Policy int

const (
	// PolicyIgnore drops the offending predicate silently.
	PolicyIgnore Policy = iota + 1
	// PolicyWarn drops the offending predicate and records a warning.
	PolicyWarn
	// PolicyError fails the compile.
	PolicyError
)

// EmptyInPolicy selects the behavior for an empty IN list at lowering time.
type EmptyInPolicy int

const (
	// EmptyInFalse lowers an empty IN list to a constant-false predicate.
	EmptyInFalse EmptyInPolicy = iota + 1
	// EmptyInTrue lowers an empty IN list to a constant-true predicate.
	EmptyInTrue
	// EmptyInError fails the compile on an empty IN list.
	EmptyInError
)

// JoinOverflowPolicy selects the behavior when a query needs more joins than
// MaxJoins allows.
type JoinOverflowPolicy int

const (
	JoinOverflowIgnore JoinOverflowPolicy = iota + 1
	JoinOverflowError
)

// TsqueryMode selects the tsquery constructor and the default sanitizer.
type TsqueryMode int

const (
	// TsqueryPlainto uses plainto_tsquery with the basic sanitizer.
	TsqueryPlainto TsqueryMode = iota + 1
	// TsqueryRaw uses to_tsquery with the strict sanitizer.
	TsqueryRaw
)

// Mode is a preset over the three handling knobs.
type Mode int

const (
	// ModeLenient drops unknown fields, unknown associations, and uncastable
	// values, recording warnings.
	ModeLenient Mode = iota + 1
	// ModeStrict fails the compile on any of them.
	ModeStrict
)

// StrategyKind identifies the full-text search plan.
type StrategyKind int

const (
	// StrategyILike emits per-field case-insensitive substring predicates.
	StrategyILike StrategyKind = iota + 1
	// StrategyTsQuery emits to_tsvector(...) @@ ...tsquery(...) per field.
	StrategyTsQuery
	// StrategyColumn matches a precomputed tsvector column and exports a rank.
	StrategyColumn
)

// SearchStrategy is the full-text plan: the kind plus the text search
// configuration (for tsquery strategies) and the precomputed column name
// (for StrategyColumn).
type SearchStrategy struct {
	Kind   StrategyKind
	Config string
	Column string
}

// AllowedField is one allow-list entry: a plain field path, or an alias
// mapping when As is non-empty.
type AllowedField struct {
	As    string
	Field string
}

// Sanitizer normalizes a full-text term before compilation.
type Sanitizer interface {
	Sanitize(term string) string
}

// SanitizerFunc adapts a function to the Sanitizer interface.
type SanitizerFunc func(string) string

// Sanitize calls the wrapped function.
func (f SanitizerFunc) Sanitize(term string) string {
	return f(term)
}

// Options controls one compile. The zero value of every knob means "unset";
// unset knobs fall back to process defaults and then to lenient behavior.
type Options struct {
	Schema  string
	Dialect Dialect

	Mode         Mode
	UnknownField Policy
	UnknownAssoc Policy
	InvalidCast  Policy

	MaxJoins     *int
	JoinOverflow JoinOverflowPolicy
	EmptyIn      EmptyInPolicy

	TsqueryMode    TsqueryMode
	Sanitizer      Sanitizer
	SearchFields   []string
	SearchStrategy SearchStrategy

	// AllowedFields is the allow-list. An empty list admits every parseable
	// path (subject to the schema), the same as AllowAll.
	AllowedFields []AllowedField
	AllowAll      bool
}

var (
	processMu       sync.RWMutex
	processDefaults Options
)

// SetProcessDefaults installs process-wide default options. Per-call options
// override these. Config file defaults are not layered beneath them:
// Config.BuildOptions returns those as ordinary options for a call.
func SetProcessDefaults(opts Options) {
	processMu.Lock()
	defer processMu.Unlock()
	processDefaults = opts
}

// ProcessDefaults returns the current process-wide defaults.
func ProcessDefaults() Options {
	processMu.RLock()
	defer processMu.RUnlock()
	return processDefaults
}

// Resolved returns a copy with mode presets applied and every unset knob
// filled with its default.
func (o Options) Resolved() Options {
	switch o.Mode {
	case ModeStrict:
		o.fillPolicies(PolicyError, JoinOverflowError, EmptyInError)
	case ModeLenient:
		o.fillPolicies(PolicyWarn, JoinOverflowIgnore, EmptyInFalse)
	default:
		o.fillPolicies(PolicyWarn, JoinOverflowIgnore, EmptyInFalse)
	}

	if o.Dialect == "" {
		o.Dialect = DialectPostgres
	}
	if o.TsqueryMode == 0 {
		o.TsqueryMode = TsqueryPlainto
	}
	if o.SearchStrategy.Kind == 0 {
		o.SearchStrategy.Kind = StrategyILike
	}
	if o.MaxJoins == nil {
		one := 1
		o.MaxJoins = &one
	}
	if len(o.AllowedFields) == 0 {
		o.AllowAll = true
	}

	return o
}

func (o *Options) fillPolicies(p Policy, j JoinOverflowPolicy, e EmptyInPolicy) {
	if o.UnknownField == 0 {
		o.UnknownField = p
	}
	if o.UnknownAssoc == 0 {
		o.UnknownAssoc = p
	}
	if o.InvalidCast == 0 {
		o.InvalidCast = p
	}
	if o.JoinOverflow == 0 {
		o.JoinOverflow = j
	}
	if o.EmptyIn == 0 {
		o.EmptyIn = e
	}
}

// Merge overlays per-call options on top of o and returns the result.
// Set fields in override win; unset fields keep the receiver's values.
func (o Options) Merge(override Options) Options {
	if override.Schema != "" {
		o.Schema = override.Schema
	}
	if override.Dialect != "" {
		o.Dialect = override.Dialect
	}
	if override.Mode != 0 {
		o.Mode = override.Mode
		// a mode preset resets knobs so the preset applies cleanly
		o.UnknownField = 0
		o.UnknownAssoc = 0
		o.InvalidCast = 0
		o.JoinOverflow = 0
		o.EmptyIn = 0
	}
	if override.UnknownField != 0 {
		o.UnknownField = override.UnknownField
	}
	if override.UnknownAssoc != 0 {
		o.UnknownAssoc = override.UnknownAssoc
	}
	if override.InvalidCast != 0 {
		o.InvalidCast = override.InvalidCast
	}
	if override.MaxJoins != nil {
		o.MaxJoins = override.MaxJoins
	}
	if override.JoinOverflow != 0 {
		o.JoinOverflow = override.JoinOverflow
	}
	if override.EmptyIn != 0 {
		o.EmptyIn = override.EmptyIn
	}
	if override.TsqueryMode != 0 {
		o.TsqueryMode = override.TsqueryMode
	}
	if override.Sanitizer != nil {
		o.Sanitizer = override.Sanitizer
	}
	if override.SearchFields != nil {
		o.SearchFields = override.SearchFields
	}
	if override.SearchStrategy.Kind != 0 {
		o.SearchStrategy = override.SearchStrategy
	}
	if override.AllowedFields != nil {
		o.AllowedFields = override.AllowedFields
	}
	if override.AllowAll {
		o.AllowAll = true
	}
	return o
}
