package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"

	"focus-stacker/internal/config"
)

func TestFlagKeysMatchConfig(t *testing.T) {
	keys := map[string]bool{}
	for _, kv := range config.Flatten(config.Default()) {
		keys[kv.Key] = true
	}
	for flag, key := range flagKeys {
		if !keys[key] {
			t.Errorf("flag --%s is bound to unknown key %q", flag, key)
		}
	}

	fs := pflag.NewFlagSet("all", pflag.ContinueOnError)
	addSortFlags(fs)
	addMergeFlags(fs)
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "dry-run" {
			return
		}
		if _, ok := flagKeys[f.Name]; !ok {
			t.Errorf("flag --%s is not bound to a config key", f.Name)
		}
	})
}

func isolateConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
}

func TestLoadConfigPrecedence(t *testing.T) {
	isolateConfig(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "sorter:\n  interval: 3\n  min_stack_size: 4\nmerge:\n  radius: 5\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FOCUS_STACKER_SORTER_MIN_STACK_SIZE", "6")

	opts := &rootOptions{configPath: path, logLevel: "info"}
	cmd := newSortAndMergeCommand(opts)
	if err := cmd.ParseFlags([]string{"--interval", "2.5"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	// flag beats file, env beats file, file beats default
	if cfg.Sorter.Interval != 2.5 {
		t.Errorf("interval = %g, want 2.5", cfg.Sorter.Interval)
	}
	if cfg.Sorter.MinStackSize != 6 {
		t.Errorf("min_stack_size = %d, want 6", cfg.Sorter.MinStackSize)
	}
	if cfg.Merge.Radius != 5 {
		t.Errorf("radius = %d, want 5", cfg.Merge.Radius)
	}
	if cfg.Merge.Smoothing != 1 {
		t.Errorf("smoothing = %d, want default 1", cfg.Merge.Smoothing)
	}
}

func TestLoadConfigRejectsBadFlag(t *testing.T) {
	isolateConfig(t)
	opts := &rootOptions{logLevel: "info"}
	cmd := newMergeCommand(opts)
	if err := cmd.ParseFlags([]string{"--radius", "12"}); err != nil {
		t.Fatal(err)
	}
	var ve *config.ValidationError
	if _, err := loadConfig(cmd, opts); !errors.As(err, &ve) {
		t.Fatalf("got %v, want ValidationError", err)
	}
}

func TestConfigInitWritesDefaults(t *testing.T) {
	isolateConfig(t)
	path := filepath.Join(t.TempDir(), "fs", "config.yaml")
	root := newRootCommand()
	root.SetArgs([]string{"config", "init", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	root = newRootCommand()
	root.SetArgs([]string{"config", "init", path})
	if err := root.Execute(); err == nil {
		t.Errorf("second init without --force should fail")
	}
}
