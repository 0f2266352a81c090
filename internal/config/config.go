// Package config assembles the immutable RunConfig from flags, esbox.toml and
// ESBOX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/esbox/internal/env"
	"github.com/loykin/esbox/internal/locator"
	"github.com/loykin/esbox/internal/logger"
	"github.com/loykin/esbox/internal/process"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix       = "ESBOX"
	DefaultFileName = "esbox.toml"
	DefaultInterp   = "node"
)

// Viper keys.
const (
	KeyCwd             = "cwd"
	KeyConfig          = "config"
	KeyClear           = "clear"
	KeyWatch           = "watch"
	KeyInterpreter     = "interpreter"
	KeyInterpreterArgs = "interpreter_args"
	KeyExt             = "ext"
	KeyQuietInterval   = "quiet_interval"
	KeyMaxWait         = "max_wait"
	KeyKillGroup       = "kill_group"
	KeyEnv             = "env"
	KeyEnvFiles        = "env_files"
	KeyIgnoreDirs      = "ignore_dirs"
	KeyLogLevel        = "log.level"
	KeyLogPath         = "log.path"
	KeyLogColor        = "log.color"
	KeyLogOutputDir    = "log.output_dir"
	KeyLogMaxSizeMB    = "log.max_size_mb"
	KeyLogMaxBackups   = "log.max_backups"
	KeyLogMaxAgeDays   = "log.max_age_days"
	KeyLogCompress     = "log.compress"
	KeyHistoryDSN      = "history.dsn"
	KeyServeAddr       = "server.addr"
)

// flagKeys maps CLI flag names onto viper keys. The negated flags
// (--no-watch, --no-clear) are applied separately.
var flagKeys = map[string]string{
	"cwd":         KeyCwd,
	"config":      KeyConfig,
	"interpreter": KeyInterpreter,
	"ext":         KeyExt,
	"kill-group":  KeyKillGroup,
	"serve":       KeyServeAddr,
	"history":     KeyHistoryDSN,
	"log-level":   KeyLogLevel,
	"log-file":    KeyLogPath,
}

var negatedFlags = map[string]string{
	"no-watch": KeyWatch,
	"no-clear": KeyClear,
}

// RunConfig is built once at startup and never mutated afterwards.
type RunConfig struct {
	ScriptPath      string
	WorkDir         string
	Clear           bool
	Watch           bool
	Interpreter     string
	InterpreterArgs []string
	Extension       string
	QuietInterval   time.Duration
	MaxWait         time.Duration
	KillGroup       bool
	Env             []string
	IgnoreDirs      []string
	Log             logger.Config
	HistoryDSN      string
	ServeAddr       string
	ConfigFile      string // file that was read, empty when none
}

// Spec returns the process spec for one run of the script.
func (c RunConfig) Spec() process.Spec {
	return process.Spec{
		Script:          c.ScriptPath,
		WorkDir:         c.WorkDir,
		Interpreter:     c.Interpreter,
		InterpreterArgs: c.InterpreterArgs,
		Env:             c.Env,
		Clear:           c.Clear,
		KillGroup:       c.KillGroup,
	}
}

// NewViper returns a viper instance with esbox defaults and env binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyClear, true)
	v.SetDefault(KeyWatch, true)
	v.SetDefault(KeyInterpreter, DefaultInterp)
	v.SetDefault(KeyExt, locator.DefaultExtension)
	v.SetDefault(KeyQuietInterval, "10ms")
	v.SetDefault(KeyMaxWait, "1s")
	v.SetDefault(KeyIgnoreDirs, []string{"node_modules", ".git"})
	v.SetDefault(KeyLogLevel, logger.DefaultLevel)
	v.SetDefault(KeyLogColor, true)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags wires the CLI flag set into v. Only flags the user actually set
// take precedence over the config file and the environment.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	for name, key := range negatedFlags {
		if !fs.Changed(name) {
			continue
		}
		on, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		v.Set(key, !on)
	}
	return nil
}

// Load resolves the work dir, reads the optional config file and locates the
// script named by arg. A missing script yields a *locator.NotFoundError.
func Load(v *viper.Viper, arg string) (RunConfig, error) {
	wd, err := resolveWorkDir(v.GetString(KeyCwd))
	if err != nil {
		return RunConfig{}, err
	}
	cfgFile, err := readConfigFile(v, wd)
	if err != nil {
		return RunConfig{}, err
	}

	c := RunConfig{
		WorkDir:         wd,
		Clear:           v.GetBool(KeyClear),
		Watch:           v.GetBool(KeyWatch),
		Interpreter:     strings.TrimSpace(v.GetString(KeyInterpreter)),
		InterpreterArgs: v.GetStringSlice(KeyInterpreterArgs),
		Extension:       normalizeExt(v.GetString(KeyExt)),
		QuietInterval:   v.GetDuration(KeyQuietInterval),
		MaxWait:         v.GetDuration(KeyMaxWait),
		KillGroup:       v.GetBool(KeyKillGroup),
		IgnoreDirs:      v.GetStringSlice(KeyIgnoreDirs),
		HistoryDSN:      v.GetString(KeyHistoryDSN),
		ServeAddr:       v.GetString(KeyServeAddr),
		ConfigFile:      cfgFile,
		Log: logger.Config{
			Level: v.GetString(KeyLogLevel),
			Path:  v.GetString(KeyLogPath),
			Color: v.GetBool(KeyLogColor),
			File: logger.FileConfig{
				Dir:        v.GetString(KeyLogOutputDir),
				MaxSizeMB:  v.GetInt(KeyLogMaxSizeMB),
				MaxBackups: v.GetInt(KeyLogMaxBackups),
				MaxAgeDays: v.GetInt(KeyLogMaxAgeDays),
				Compress:   v.GetBool(KeyLogCompress),
			},
		},
	}
	if err := c.validate(); err != nil {
		return RunConfig{}, err
	}
	if d := c.Log.File.Dir; d != "" && !filepath.IsAbs(d) {
		c.Log.File.Dir = filepath.Join(wd, d)
	}

	c.Env, err = loadEnv(wd, v.GetStringSlice(KeyEnvFiles), v.GetStringSlice(KeyEnv))
	if err != nil {
		return RunConfig{}, err
	}

	c.ScriptPath, err = locator.Locate(arg, wd, c.Extension)
	if err != nil {
		return RunConfig{}, err
	}
	return c, nil
}

func (c RunConfig) validate() error {
	if c.QuietInterval <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyQuietInterval, c.QuietInterval)
	}
	if c.MaxWait < c.QuietInterval {
		return fmt.Errorf("%s (%s) must not be shorter than %s (%s)", KeyMaxWait, c.MaxWait, KeyQuietInterval, c.QuietInterval)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

func resolveWorkDir(cwd string) (string, error) {
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		return wd, nil
	}
	abs, err := filepath.Abs(cwd)
	if err != nil {
		return "", fmt.Errorf("resolve cwd %q: %w", cwd, err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("cwd: %w", err)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("cwd %s is not a directory", abs)
	}
	return abs, nil
}

// readConfigFile merges an explicit --config file, or esbox.toml from the work
// dir when present. An explicit file that cannot be read is an error.
func readConfigFile(v *viper.Viper, wd string) (string, error) {
	path := v.GetString(KeyConfig)
	explicit := path != ""
	if !explicit {
		path = filepath.Join(wd, DefaultFileName)
		if _, err := os.Stat(path); err != nil {
			return "", nil
		}
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(wd, path)
	}
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !explicit && errors.As(err, &nf) {
			return "", nil
		}
		return "", fmt.Errorf("read config %s: %w", path, err)
	}
	return path, nil
}

// loadEnv merges env_files in order, then the env list on top.
func loadEnv(wd string, files, vars []string) ([]string, error) {
	var out []string
	for _, f := range files {
		if !filepath.IsAbs(f) {
			f = filepath.Join(wd, f)
		}
		pairs, err := env.LoadFile(f)
		if err != nil {
			return nil, fmt.Errorf("env file: %w", err)
		}
		out = append(out, pairs...)
	}
	return append(out, vars...), nil
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		return locator.DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
