package pump

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/pkg/errors"
)

// EnvParentFDs is the environment variable through which a parent announces
// the file descriptors of a child's parent Channel, as "<read-fd>,<write-fd>".
const EnvParentFDs = "SQL3_PARENT_FDS"

// Process is a child process connected to its parent by a Channel.
type Process struct {
	Channel
	Cmd *exec.Cmd
}

// Wait for the Process to exit. Closing the Process Channel signals the child
// to exit, as it observes the closure of its own parent Channel.
func (p *Process) Wait() error { return p.Cmd.Wait() }

// StartProcess starts |cmd| with two additional pipes which form a Channel
// between the current process and the child. The child obtains its side of
// the Channel with ParentFromEnv.
func StartProcess(cmd *exec.Cmd) (*Process, error) {
	var childR, parentW, err = os.Pipe()
	if err != nil {
		return nil, errors.WithMessage(err, "creating pipe")
	}
	parentR, childW, err := os.Pipe()
	if err != nil {
		_, _ = childR.Close(), parentW.Close()
		return nil, errors.WithMessage(err, "creating pipe")
	}

	// ExtraFiles[i] becomes descriptor 3+i of the child.
	var fdR = 3 + len(cmd.ExtraFiles)
	cmd.ExtraFiles = append(cmd.ExtraFiles, childR, childW)

	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, formatParentFDs(fdR, fdR+1))

	err = cmd.Start()

	// The child holds its own copies of its descriptors.
	_, _ = childR.Close(), childW.Close()

	if err != nil {
		_, _ = parentR.Close(), parentW.Close()
		return nil, errors.WithMessage(err, "starting process")
	}
	return &Process{Channel: NewStreamChannel(parentR, parentW), Cmd: cmd}, nil
}

// ParentFromEnv returns the parent Channel announced by EnvParentFDs, or nil
// if the current process has no parent context (and is therefore primary).
// The variable is unset, so that it's consumed only once.
func ParentFromEnv() (Channel, error) {
	var v, ok = os.LookupEnv(EnvParentFDs)
	if !ok || v == "" {
		return nil, nil
	}
	_ = os.Unsetenv(EnvParentFDs)

	var fdR, fdW, err = parseParentFDs(v)
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing %s", EnvParentFDs)
	}
	r, err := inheritFile(fdR, "sql3-parent-r")
	if err != nil {
		return nil, err
	}
	w, err := inheritFile(fdW, "sql3-parent-w")
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	return NewStreamChannel(r, w), nil
}

func formatParentFDs(r, w int) string {
	return fmt.Sprintf("%s=%d,%d", EnvParentFDs, r, w)
}
