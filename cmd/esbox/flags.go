package main

import (
	"github.com/spf13/pflag"

	"github.com/loykin/esbox/internal/locator"
)

// RootFlags mirrors the command line; config.BindFlags maps them onto config keys.
type RootFlags struct {
	Cwd         string
	ConfigPath  string
	Interpreter string
	Ext         string
	NoWatch     bool
	NoClear     bool
	KillGroup   bool
	Serve       string
	History     string
	LogLevel    string
	LogFile     string
}

func (f *RootFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.Cwd, "cwd", "", "working directory to watch and run the script in (default: current directory)")
	fs.StringVar(&f.ConfigPath, "config", "", "path to TOML config file (default: <cwd>/esbox.toml when present)")
	fs.StringVar(&f.Interpreter, "interpreter", "node", "program that runs the script; empty executes the script directly")
	fs.StringVar(&f.Ext, "ext", locator.DefaultExtension, "script extension used for lookup and for the watch filter")
	fs.BoolVar(&f.NoWatch, "no-watch", false, "run the script once and exit with its exit code")
	fs.BoolVar(&f.NoClear, "no-clear", false, "do not clear the terminal before each run")
	fs.BoolVar(&f.KillGroup, "kill-group", false, "run the script in its own process group and signal the whole group on restart")
	fs.StringVar(&f.Serve, "serve", "", "address for the control API (/status, /rerun, /history, /metrics), e.g. 127.0.0.1:7070")
	fs.StringVar(&f.History, "history", "", "record runs to a DSN: sqlite path, postgres://, clickhouse:// or opensearch://")
	fs.StringVar(&f.LogLevel, "log-level", "warn", "diagnostics level: debug, info, warn, error")
	fs.StringVar(&f.LogFile, "log-file", "", "write diagnostics to a rotated file instead of stderr")
}
