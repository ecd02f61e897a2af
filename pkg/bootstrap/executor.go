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

package bootstrap

import (
	"context"
	"io"
	"os"

	"jobshim/pkg/shell"
)

// ShellExecutor runs commands as child processes that share the
// bootstrapper's stdout and stderr.
type ShellExecutor struct {
	Stdout io.Writer
	Stderr io.Writer
	// Dir is the working directory of the commands; empty means the
	// bootstrapper's own.
	Dir string
}

// NewShellExecutor returns an executor writing to the process's own stdout
// and stderr.
func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Execute resolves name through env's PATH and runs it.
func (e *ShellExecutor) Execute(ctx context.Context, env Environ, name string, args ...string) (int, error) {
	path, err := env.LookPath(name)
	if err != nil {
		return shell.ExitCodeNotStarted, err
	}
	cmd := shell.NewCommand(path, args...)
	cmd.SetEnv(env.Slice())
	cmd.SetDir(e.Dir)
	return cmd.Stream(ctx, e.Stdout, e.Stderr)
}
