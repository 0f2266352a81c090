package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loykin/esbox"
)

var version = "dev"

const tooManyArgs = "Cannot run esbox with more than one file argument."

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// exitError carries the process exit code out of cobra. An empty msg means
// nothing more needs printing.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	root := newRootCommand()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.msg != "" {
			_, _ = fmt.Fprintln(errOut, ee.msg)
		}
		return ee.code
	}
	_, _ = fmt.Fprintln(errOut, err)
	return 1
}

func newRootCommand() *cobra.Command {
	flags := &RootFlags{}
	root := &cobra.Command{
		Use:   "esbox <FILENAME>",
		Short: "Rerun a script every time you save",
		Long: `esbox runs a script and reruns it in a fresh process whenever a script file
under the working directory is added, changed or deleted. The terminal is
cleared before each run and every run ends with its exit status.

FILENAME is resolved against --cwd; the extension may be omitted.

Examples:
  esbox app.js
  esbox app --cwd=./server --no-clear
  esbox main.ts --ext=.ts --interpreter="deno run"
  esbox build.js --no-watch            # run once, exit with the script's code
  esbox app.js --serve=127.0.0.1:7070  # POST /rerun to rerun without saving`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch len(args) {
			case 0:
				_ = cmd.Help()
				return nil
			case 1:
				return run(cmd, args[0])
			default:
				_ = cmd.Help()
				return &exitError{code: 1, msg: tooManyArgs}
			}
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")
	flags.register(root.Flags())
	return root
}

func run(cmd *cobra.Command, arg string) error {
	v := esbox.NewViper()
	if err := esbox.BindFlags(v, cmd.Flags()); err != nil {
		return &exitError{code: 1, msg: err.Error()}
	}
	cfg, err := esbox.LoadConfig(v, arg)
	if err != nil {
		var nf *esbox.NotFoundError
		if errors.As(err, &nf) {
			return &exitError{code: 1, msg: nf.Error()}
		}
		return &exitError{code: 1, msg: err.Error()}
	}

	l, closer, err := esbox.NewLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return &exitError{code: 1, msg: err.Error()}
	}
	defer func() { _ = closer.Close() }()
	prev := slog.Default()
	slog.SetDefault(l)
	defer slog.SetDefault(prev)
	if cfg.ConfigFile != "" {
		slog.Debug("config loaded", "file", cfg.ConfigFile)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := esbox.Run(ctx, cfg, esbox.IO{
		In:  cmd.InOrStdin(),
		Out: cmd.OutOrStdout(),
		Err: cmd.ErrOrStderr(),
	})
	if err != nil {
		if code == 0 {
			code = 1
		}
		return &exitError{code: code, msg: err.Error()}
	}
	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}
