package config

import (
	"io/ioutil"
	"os"

	"github.com/pelletier/go-toml"
	"github.com/xyproto/env/v2"
)

// Options controls how the native lowering pass behaves.  Defaults are tuned
// for production; the debug toggles exist so miscompiles can be narrowed down
// without rebuilding.
type Options struct {
	// SlowAsserts enables emission of runtime assertion checks into the
	// generated code (sexp validity, expected sexptypes, promise-free force
	// results).  Expensive; off by default.
	SlowAsserts bool `toml:"slow-asserts"`

	// DumpIR prints the generated module to the log stream after a
	// successful compilation.
	DumpIR bool `toml:"dump-ir"`

	// LogLevel is one of "silent", "error", "warn", "verbose".
	LogLevel string `toml:"log-level"`

	// FastVectorAccess enables the speculative fast paths for vector
	// extract and subassign.
	FastVectorAccess bool `toml:"fast-vector-access"`

	// BindingCaches enables per-(environment, name) inline binding caches
	// for variable load and store.
	BindingCaches bool `toml:"binding-caches"`

	// StubEnvironments enables direct slot access into lazily materialized
	// stub environments.
	StubEnvironments bool `toml:"stub-environments"`

	// InlineBuiltins enables the safe-builtin inlining subtable.
	InlineBuiltins bool `toml:"inline-builtins"`
}

// Defaults returns the default option set.
func Defaults() *Options {
	return &Options{
		SlowAsserts:      false,
		DumpIR:           false,
		LogLevel:         "verbose",
		FastVectorAccess: true,
		BindingCaches:    true,
		StubEnvironments: true,
		InlineBuiltins:   true,
	}
}

// Load reads an options file and applies environment overrides on top of it.
// A missing file is not an error: the defaults are used.  The returned
// boolean indicates success.
func Load(path string) (*Options, bool) {
	opts := Defaults()

	if path != "" {
		f, err := os.Open(path)
		if err == nil {
			defer f.Close()

			buff, err := ioutil.ReadAll(f)
			if err != nil {
				return nil, false
			}

			if err := toml.Unmarshal(buff, opts); err != nil {
				return nil, false
			}
		} else if !os.IsNotExist(err) {
			return nil, false
		}
	}

	opts.applyEnv()
	return opts, true
}

// applyEnv overlays PYRITE_* environment variables onto the option set so a
// single run can be redirected without editing configuration.  The log level
// from the environment replaces the file's; PYRITE_SLOW_ASSERTS and
// PYRITE_DUMP_IR can only switch their toggle on, and the PYRITE_NO_*
// variables can only switch theirs off, so a file setting in the other
// direction is kept.
func (o *Options) applyEnv() {
	o.SlowAsserts = env.Bool("PYRITE_SLOW_ASSERTS") || o.SlowAsserts
	o.DumpIR = env.Bool("PYRITE_DUMP_IR") || o.DumpIR
	o.LogLevel = env.Str("PYRITE_LOG_LEVEL", o.LogLevel)

	if env.Has("PYRITE_NO_FAST_VECTOR") {
		o.FastVectorAccess = false
	}
	if env.Has("PYRITE_NO_BINDING_CACHES") {
		o.BindingCaches = false
	}
	if env.Has("PYRITE_NO_STUB_ENVS") {
		o.StubEnvironments = false
	}
	if env.Has("PYRITE_NO_INLINE_BUILTINS") {
		o.InlineBuiltins = false
	}
}
