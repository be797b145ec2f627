package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	opts := Defaults()

	if opts.SlowAsserts {
		t.Error("slow asserts must default off")
	}
	if !opts.FastVectorAccess || !opts.BindingCaches || !opts.StubEnvironments {
		t.Error("speculation toggles must default on")
	}
}

func TestLoadMissingFile(t *testing.T) {
	opts, ok := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if !ok {
		t.Fatal("a missing options file must fall back to defaults")
	}
	if opts.LogLevel != "verbose" {
		t.Errorf("unexpected default log level %q", opts.LogLevel)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opts.toml")
	content := "slow-asserts = true\nlog-level = \"warn\"\nfast-vector-access = false\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	opts, ok := Load(path)
	if !ok {
		t.Fatal("load failed")
	}
	if !opts.SlowAsserts {
		t.Error("slow-asserts from the file must apply")
	}
	if opts.LogLevel != "warn" {
		t.Errorf("log-level from the file must apply, got %q", opts.LogLevel)
	}
	if opts.FastVectorAccess {
		t.Error("fast-vector-access=false from the file must apply")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PYRITE_DUMP_IR", "1")
	t.Setenv("PYRITE_LOG_LEVEL", "silent")
	t.Setenv("PYRITE_NO_BINDING_CACHES", "1")

	opts, ok := Load("")
	if !ok {
		t.Fatal("load failed")
	}
	if !opts.DumpIR {
		t.Error("PYRITE_DUMP_IR must enable IR dumping")
	}
	if opts.LogLevel != "silent" {
		t.Errorf("PYRITE_LOG_LEVEL must win, got %q", opts.LogLevel)
	}
	if opts.BindingCaches {
		t.Error("PYRITE_NO_BINDING_CACHES must disable binding caches")
	}
}
