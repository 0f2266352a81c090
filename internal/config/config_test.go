package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/esbox/internal/locator"
	"github.com/spf13/pflag"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("esbox", pflag.ContinueOnError)
	fs.String("cwd", "", "")
	fs.String("config", "", "")
	fs.String("interpreter", DefaultInterp, "")
	fs.String("ext", locator.DefaultExtension, "")
	fs.Bool("kill-group", false, "")
	fs.String("serve", "", "")
	fs.String("history", "", "")
	fs.String("log-level", "warn", "")
	fs.String("log-file", "", "")
	fs.Bool("no-watch", false, "")
	fs.Bool("no-clear", false, "")
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func load(t *testing.T, arg string, args ...string) (RunConfig, error) {
	t.Helper()
	v := NewViper()
	if err := BindFlags(v, testFlags(t, args...)); err != nil {
		t.Fatalf("bind: %v", err)
	}
	return Load(v, arg)
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.js"), "")

	c, err := load(t, "app", "--cwd", dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.ScriptPath != filepath.Join(dir, "app.js") || c.WorkDir != dir {
		t.Fatalf("unexpected paths: %+v", c)
	}
	if !c.Clear || !c.Watch || c.KillGroup {
		t.Fatalf("unexpected toggles: %+v", c)
	}
	if c.Interpreter != "node" || c.Extension != ".js" {
		t.Fatalf("unexpected interpreter/ext: %q %q", c.Interpreter, c.Extension)
	}
	if c.QuietInterval != 10*time.Millisecond || c.MaxWait != time.Second {
		t.Fatalf("unexpected debounce policy: %s %s", c.QuietInterval, c.MaxWait)
	}
	if len(c.IgnoreDirs) != 2 || c.Log.Level != "warn" || c.ConfigFile != "" {
		t.Fatalf("unexpected ambient defaults: %+v", c)
	}
}

func TestLoadNegatedFlags(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.js"), "")

	c, err := load(t, "app.js", "--cwd", dir, "--no-watch", "--no-clear", "--kill-group", "--interpreter", "sh")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Clear || c.Watch || !c.KillGroup || c.Interpreter != "sh" {
		t.Fatalf("flags not applied: %+v", c)
	}
	spec := c.Spec()
	if spec.Script != c.ScriptPath || spec.Clear || !spec.KillGroup || spec.Interpreter != "sh" || spec.WorkDir != dir {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}

func TestLoadConfigFileAndEnvFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "main.ts"), "")
	writeFile(t, filepath.Join(dir, ".env"), "A=1\nB=from-file\n")
	writeFile(t, filepath.Join(dir, DefaultFileName), `
interpreter = "deno run"
interpreter_args = ["--allow-net"]
ext = "ts"
quiet_interval = "25ms"
max_wait = "2s"
clear = false
env_files = [".env"]
env = ["B=from-list"]
ignore_dirs = ["dist"]

[log]
level = "debug"
output_dir = "logs"
max_backups = 9

[history]
dsn = "sqlite://runs.db"

[server]
addr = "127.0.0.1:7070"
`)

	c, err := load(t, "src/main", "--cwd", dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.ConfigFile != filepath.Join(dir, DefaultFileName) {
		t.Fatalf("config file = %q", c.ConfigFile)
	}
	if c.ScriptPath != filepath.Join(dir, "src", "main.ts") || c.Extension != ".ts" {
		t.Fatalf("unexpected script: %q ext %q", c.ScriptPath, c.Extension)
	}
	if c.Interpreter != "deno run" || len(c.InterpreterArgs) != 1 || c.InterpreterArgs[0] != "--allow-net" {
		t.Fatalf("unexpected interpreter: %q %v", c.Interpreter, c.InterpreterArgs)
	}
	if c.Clear || c.QuietInterval != 25*time.Millisecond || c.MaxWait != 2*time.Second {
		t.Fatalf("unexpected run policy: %+v", c)
	}
	if len(c.Env) != 3 || c.Env[0] != "A=1" || c.Env[2] != "B=from-list" {
		t.Fatalf("unexpected env order: %v", c.Env)
	}
	if len(c.IgnoreDirs) != 1 || c.IgnoreDirs[0] != "dist" {
		t.Fatalf("ignore dirs = %v", c.IgnoreDirs)
	}
	if c.Log.Level != "debug" || c.Log.File.Dir != filepath.Join(dir, "logs") || c.Log.File.MaxBackups != 9 {
		t.Fatalf("log config = %+v", c.Log)
	}
	if c.HistoryDSN != "sqlite://runs.db" || c.ServeAddr != "127.0.0.1:7070" {
		t.Fatalf("history/server = %q %q", c.HistoryDSN, c.ServeAddr)
	}
}

func TestPrecedenceFlagOverEnvOverFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.js"), "")
	writeFile(t, filepath.Join(dir, DefaultFileName), "interpreter = \"deno\"\n[log]\nlevel = \"error\"\n")

	t.Setenv("ESBOX_INTERPRETER", "bun")
	t.Setenv("ESBOX_LOG_LEVEL", "info")

	c, err := load(t, "app.js", "--cwd", dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Interpreter != "bun" || c.Log.Level != "info" {
		t.Fatalf("env must override file: %q %q", c.Interpreter, c.Log.Level)
	}

	c, err = load(t, "app.js", "--cwd", dir, "--interpreter", "node", "--log-level", "debug")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Interpreter != "node" || c.Log.Level != "debug" {
		t.Fatalf("flags must override env: %q %q", c.Interpreter, c.Log.Level)
	}
}

func TestLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := load(t, "missing", "--cwd", dir)
	var nf *locator.NotFoundError
	if !errors.As(err, &nf) || nf.Error() != "Not found: missing" {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.js"), "")

	if _, err := load(t, "app.js", "--cwd", dir, "--config", "nope.toml"); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
	if _, err := load(t, "app.js", "--cwd", filepath.Join(dir, "app.js")); err == nil {
		t.Fatalf("expected error when cwd is a file")
	}
	if _, err := load(t, "app.js", "--cwd", dir, "--log-level", "loud"); err == nil {
		t.Fatalf("expected error for bad log level")
	}

	writeFile(t, filepath.Join(dir, "bad.toml"), "quiet_interval = \"2s\"\nmax_wait = \"1s\"\n")
	if _, err := load(t, "app.js", "--cwd", dir, "--config", "bad.toml"); err == nil {
		t.Fatalf("expected error when max_wait < quiet_interval")
	}

	writeFile(t, filepath.Join(dir, "envs.toml"), "env_files = [\"missing.env\"]\n")
	if _, err := load(t, "app.js", "--cwd", dir, "--config", "envs.toml"); err == nil {
		t.Fatalf("expected error for missing env file")
	}
}

func TestNormalizeExt(t *testing.T) {
	cases := map[string]string{"": ".js", "ts": ".ts", ".mjs": ".mjs", " py ": ".py"}
	for in, want := range cases {
		if got := normalizeExt(in); got != want {
			t.Fatalf("normalizeExt(%q) = %q, want %q", in, got, want)
		}
	}
}
