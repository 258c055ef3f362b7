// Package config holds the rewrite configuration consumed by the
// orchestrator and rewriter (the "Rewrite configuration" data in
// SPEC_FULL.md §3), along with the defaults ported from the original
// tool's main.h.
package config

// Default ranges and prefixes, taken from original_source/src/main.h
// (D_UID_MIN, D_UID_MAX, ...) since spec.md names the fields but not
// their concrete defaults.
const (
	DefaultUIDMin = 200
	DefaultUIDMax = 60000
	DefaultGIDMin = 10
	DefaultGIDMax = 60000
	DefaultPIDMin = 500
	DefaultPIDMax = 65535

	DefaultTimeShiftMax = 604800 // 7 days, in seconds

	// FlushEveryBytes is the orchestrator's output flush cadence
	// (SPEC_FULL.md §4.6).
	FlushEveryBytes = 5_000_000
)

// DefaultPathPrefixes mirrors default_prefixes[] in main.h.
func DefaultPathPrefixes() []string {
	return []string{
		"/export/home/",
		"/home/",
		"/var/mail/",
		"/tmp/",
		"/var/tmp/",
	}
}

// Range is a half-open [Min, Max) interval used both as the
// rewrite-eligibility test input and as the pseudonym allocation
// bound. Per SPEC_FULL.md §9, eligibility itself is tested inclusively
// (Min <= value <= Max) while allocation stays half-open; Range only
// carries the two bounds, Eligible/contains logic lives with its
// callers to keep that asymmetry explicit at the call site.
type Range struct {
	Min uint32
	Max uint32
}

// Valid reports whether the range can ever produce a pseudonym — i.e.
// whether Min < Max. An invalid range means the corresponding class
// must be disabled (SPEC_FULL.md §7, "Range/config error").
func (r Range) Valid() bool {
	return r.Min < r.Max
}

// Config is the full rewrite configuration for one run.
type Config struct {
	RewriteUIDs  bool
	RewriteGIDs  bool
	RewritePIDs  bool
	RewritePaths bool
	RewriteAddrs bool
	RewriteTime  bool
	RewriteArgs  bool

	UIDRange Range
	GIDRange Range
	PIDRange Range

	TimeShiftMax uint32

	// PathPrefixes is matched in order; the first exact byte-prefix
	// match wins (SPEC_FULL.md §4.5).
	PathPrefixes []string
}

// Default returns the configuration the CLI starts from before flags
// are applied.
func Default() Config {
	return Config{
		RewriteUIDs:  true,
		RewriteGIDs:  true,
		RewritePIDs:  true,
		RewritePaths: true,
		RewriteAddrs: true,
		RewriteTime:  true,
		RewriteArgs:  true,

		UIDRange: Range{DefaultUIDMin, DefaultUIDMax},
		GIDRange: Range{DefaultGIDMin, DefaultGIDMax},
		PIDRange: Range{DefaultPIDMin, DefaultPIDMax},

		TimeShiftMax: DefaultTimeShiftMax,
		PathPrefixes: DefaultPathPrefixes(),
	}
}

// Normalize applies the "Range/config error" rule from SPEC_FULL.md
// §7: an invalid range or a non-positive time shift silently disables
// that rewrite class for the run, exactly as the original CLI's sanity
// checks do in parse_options().
func (c *Config) Normalize() {
	if !c.UIDRange.Valid() {
		c.RewriteUIDs = false
	}
	if !c.GIDRange.Valid() {
		c.RewriteGIDs = false
	}
	if !c.PIDRange.Valid() {
		c.RewritePIDs = false
	}
	if c.TimeShiftMax == 0 {
		c.RewriteTime = false
	}
}
