package process

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// ClearScreen resets the terminal (ESC c) before a run.
const ClearScreen = "\x1bc"

const (
	tick  = "✔"
	cross = "✖"
)

// accentColor is the xterm brown used for banners and status lines.
const accentColor = lipgloss.Color("137")

// Reporter prints the user-facing lines around each run: screen clear, banner
// and exit status. It is safe for concurrent use because the exit of an old
// child can be observed while the next banner is printed.
type Reporter struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	clear  bool
	cwd    string
	box    string
	accent lipgloss.Style
	failed lipgloss.Style
}

// NewReporter writes run lines to out and start-up errors to errOut. Nil
// writers fall back to os.Stdout and os.Stderr. When clear is false the screen
// is never cleared.
func NewReporter(out, errOut io.Writer, clear bool) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	cwd, _ := os.Getwd()
	r := lipgloss.NewRenderer(out)
	return &Reporter{
		out:    out,
		errOut: errOut,
		clear:  clear,
		cwd:    cwd,
		box:    boxSymbol(),
		accent: r.NewStyle().Foreground(accentColor),
		failed: r.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

func boxSymbol() string {
	if runtime.GOOS == "darwin" {
		return "📦 "
	}
	return "esbox"
}

// Clear emits the clear-screen sequence when clearing is enabled.
func (r *Reporter) Clear() {
	if !r.clear {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = io.WriteString(r.out, ClearScreen)
}

// Banner names the script about to run, relative to the caller's directory.
func (r *Reporter) Banner(script string) {
	name := script
	if r.cwd != "" {
		if rel, err := filepath.Rel(r.cwd, script); err == nil {
			name = rel
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.accent.Render(r.box+" "+name))
}

// Exit prints the status line for a finished run and reports whether it wrote one.
// Runs ended by a controller restart (TerminatedExitCode) stay silent.
func (r *Reporter) Exit(code int) bool {
	if code < 0 || code == TerminatedExitCode {
		return false
	}
	symbol := tick
	if code != 0 {
		symbol = cross
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, "\n%s %s\n", r.accent.Render(symbol), r.accent.Render(fmt.Sprintf("exited with code %d", code)))
	if !r.clear {
		_, _ = fmt.Fprintln(r.out)
	}
	return true
}

// Error prints a fatal or start-up error in red on the error stream.
func (r *Reporter) Error(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.errOut, r.failed.Render(err.Error()))
}
