package process

import (
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/loykin/esbox/internal/env"
)

// ClearEnv carries the clear-screen setting into the child so scripts can honor it.
const ClearEnv = "ESBOX_CLEAR"

// Spec describes one invocation of the user script.
type Spec struct {
	Script          string    `json:"script"`           // absolute script path
	WorkDir         string    `json:"work_dir"`         // child working directory
	Interpreter     string    `json:"interpreter"`      // e.g. "node"; empty runs Script directly
	InterpreterArgs []string  `json:"interpreter_args"` // extra args placed before Script
	Env             []string  `json:"env"`              // overlaid on the inherited environment, ${VAR} expanded
	Clear           bool      `json:"clear"`            // forwarded as ESBOX_CLEAR
	KillGroup       bool      `json:"kill_group"`       // run in its own process group and signal the group
	Stdin           io.Reader `json:"-"`
	Stdout          io.Writer `json:"-"`
	Stderr          io.Writer `json:"-"`
}

// BuildCommand constructs the *exec.Cmd for the spec. The interpreter string may
// carry its own flags ("node --enable-source-maps"); they are split on whitespace.
func (s *Spec) BuildCommand() *exec.Cmd {
	interp := strings.Fields(s.Interpreter)
	if len(interp) == 0 {
		// #nosec G204
		return exec.Command(s.Script, s.InterpreterArgs...)
	}
	args := make([]string, 0, len(interp)+len(s.InterpreterArgs))
	args = append(args, interp[1:]...)
	args = append(args, s.InterpreterArgs...)
	args = append(args, s.Script)
	// ok: the script path was resolved by the locator and the interpreter comes from local config
	// #nosec G204
	return exec.Command(interp[0], args...)
}

// configureCmd applies workdir, environment and stdio to cmd.
func (s *Spec) configureCmd(cmd *exec.Cmd) {
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	cmd.Env = env.Merge(os.Environ(), s.Env, []string{ClearEnv + "=" + strconv.FormatBool(s.Clear)})

	cmd.Stdin = s.Stdin
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	cmd.Stdout = s.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = s.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	configureSysProcAttr(cmd, *s)
}
