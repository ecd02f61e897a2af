// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"jobshim/pkg/logging"
)

// ExitCodeNotStarted is reported when a command could not be started at all,
// mirroring the shell's "command not found".
const ExitCodeNotStarted = 127

// terminateGrace is how long a cancelled command gets between SIGTERM and SIGKILL.
const terminateGrace = 10 * time.Second

// CommandResult holds the outcome of a captured command execution.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Command is a subprocess invocation that can be configured before running.
type Command struct {
	name  string
	args  []string
	input string
	env   []string
	dir   string
}

// NewCommand creates a command for name and args. The command inherits the
// current process environment unless SetEnv is called.
func NewCommand(name string, args ...string) *Command {
	return &Command{name: name, args: args}
}

// SetInput makes the given string the command's stdin.
func (c *Command) SetInput(input string) {
	c.input = input
}

// SetEnv replaces the command environment ("KEY=value" entries).
func (c *Command) SetEnv(env []string) {
	c.env = env
}

// SetDir sets the working directory of the command.
func (c *Command) SetDir(dir string) {
	c.dir = dir
}

// String renders the command line for logging.
func (c *Command) String() string {
	return strings.Join(append([]string{c.name}, c.args...), " ")
}

func (c *Command) cmd(ctx context.Context) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	cmd.Env = c.env
	cmd.Dir = c.dir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = terminateGrace
	if c.input != "" {
		cmd.Stdin = strings.NewReader(c.input)
	}
	return cmd
}

// Execute runs the command to completion and captures its output.
func (c *Command) Execute() CommandResult {
	var stdout, stderr bytes.Buffer
	cmd := c.cmd(context.Background())
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Debug("Executing: %s", c)
	err := cmd.Run()
	res := CommandResult{
		ExitCode: ExitCode(err),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if res.ExitCode == ExitCodeNotStarted && res.Stderr == "" && err != nil {
		res.Stderr = err.Error()
	}
	return res
}

// Stream runs the command in the foreground, writing its output to stdout and
// stderr as it is produced, and returns its exit code. A non-nil error means
// the command could not be started; a non-zero exit code alone is not an
// error. When ctx is cancelled the command receives SIGTERM.
func (c *Command) Stream(ctx context.Context, stdout, stderr io.Writer) (int, error) {
	cmd := c.cmd(ctx)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logging.Debug("Executing: %s", c)
	if err := cmd.Start(); err != nil {
		return ExitCodeNotStarted, err
	}
	err := cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// I/O copy failures or WaitDelay expiry; the process itself has exited.
		logging.Warn("command %q: %v", c.name, err)
	}
	return exitCodeOf(cmd, err), nil
}

// ExecuteCommand runs name with args and captures the result.
func ExecuteCommand(name string, args ...string) CommandResult {
	return NewCommand(name, args...).Execute()
}

// ExitCode converts the error returned by exec.Cmd.Run into a process exit
// code. A process killed by signal N yields 128+N, like a POSIX shell.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return exitErr.ExitCode()
	}
	return ExitCodeNotStarted
}

func exitCodeOf(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return cmd.ProcessState.ExitCode()
	}
	return ExitCode(err)
}

// RandomString generates a random lowercase string of the given length.
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	seededRand := rand.New(rand.NewSource(time.Now().UnixNano()))
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[seededRand.Intn(len(charset))]
	}
	return string(b)
}
