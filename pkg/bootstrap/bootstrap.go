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

// Package bootstrap prepares a cached Python virtual environment and runs a
// training program inside it.
//
// A run walks the states CHECK, CREATE, INSTALL, ACTIVATE, RUN, DEACTIVATE
// and DONE. CREATE and INSTALL are skipped when the environment directory
// already exists, so the environment is built at most once per path and
// reused by every later job.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"jobshim/pkg/logging"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// State is a step of the bootstrap sequence.
type State string

const (
	StateCheck      State = "CHECK"
	StateCreate     State = "CREATE"
	StateInstall    State = "INSTALL"
	StateActivate   State = "ACTIVATE"
	StateRun        State = "RUN"
	StateDeactivate State = "DEACTIVATE"
	StateDone       State = "DONE"
)

// Defaults for Config fields left empty.
const (
	DefaultInterpreter      = "python3"
	DefaultLockPollInterval = 2 * time.Second
)

// CompleteMarker is written into the environment directory once INSTALL has
// succeeded. A directory without it is a leftover of an interrupted build.
const CompleteMarker = ".jobshim-complete"

// runInterpreter is resolved through the activated PATH, so it names the
// environment's own interpreter.
const runInterpreter = "python"

// Config holds everything a bootstrap run needs. Paths must be absolute so
// the run does not depend on the working directory.
type Config struct {
	EnvDir      string
	Manifest    string
	Entrypoint  string
	Interpreter string
	Args        []string

	// ExtraEnv is added to the training program's environment. It cannot
	// override the variables set by activation.
	ExtraEnv map[string]string

	// LockTimeout bounds the wait for another job preparing the same
	// environment. Zero waits until the context is done.
	LockTimeout      time.Duration
	LockPollInterval time.Duration

	// LockStaleAge, if positive, breaks locks older than this even when
	// their owner cannot be checked, e.g. a job on a node that was lost.
	LockStaleAge time.Duration
}

func (c *Config) validate() error {
	for _, p := range []struct{ name, path string }{
		{"environment directory", c.EnvDir},
		{"dependency manifest", c.Manifest},
		{"entry point", c.Entrypoint},
	} {
		if p.path == "" {
			return fmt.Errorf("%s must be set", p.name)
		}
		if !filepath.IsAbs(p.path) {
			return fmt.Errorf("%s %q must be an absolute path", p.name, p.path)
		}
	}
	if c.Interpreter == "" {
		c.Interpreter = DefaultInterpreter
	}
	if c.LockPollInterval <= 0 {
		c.LockPollInterval = DefaultLockPollInterval
	}
	return nil
}

// Executor runs a command in the foreground under env and returns its exit
// code. A non-nil error means the command could not be started.
type Executor interface {
	Execute(ctx context.Context, env Environ, name string, args ...string) (int, error)
}

// Bootstrapper drives one bootstrap run.
type Bootstrapper struct {
	cfg   Config
	fs    afero.Fs
	exec  Executor
	env   Environ
	trace []State
}

// New creates a Bootstrapper. fs is used to inspect and clean up the
// environment directory, exec to run the interpreter, installer and
// training program, and env is the environment activation applies to.
func New(cfg Config, fs afero.Fs, exec Executor, env Environ) (*Bootstrapper, error) {
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid bootstrap configuration")
	}
	if env == nil {
		env = Environ{}
	}
	return &Bootstrapper{cfg: cfg, fs: fs, exec: exec, env: env}, nil
}

// Environ returns the environment the bootstrapper activates. After Run it
// is back to its pre-activation state.
func (b *Bootstrapper) Environ() Environ {
	return b.env
}

// Trace returns the states visited by the last Run, in order.
func (b *Bootstrapper) Trace() []State {
	return append([]State(nil), b.trace...)
}

func (b *Bootstrapper) enter(s State) {
	b.trace = append(b.trace, s)
	logging.Debug("bootstrap: %s", s)
}

// Run performs the bootstrap sequence and returns the exit code the process
// should terminate with. When the training program ran, that is its exit
// code and err is nil. Otherwise err is an *Error and the code is derived
// from it.
func (b *Bootstrapper) Run(ctx context.Context) (int, error) {
	b.trace = nil
	defer b.enter(StateDone)

	if err := b.prepare(ctx); err != nil {
		return ExitCode(err), err
	}
	return b.activateAndRun(ctx)
}

// prepare makes sure the environment exists. It holds the environment lock
// across CHECK, CREATE and INSTALL.
func (b *Bootstrapper) prepare(ctx context.Context) error {
	lock, err := acquireLock(ctx, b.fs, b.cfg.EnvDir+".lock", lockOptions{
		timeout:  b.cfg.LockTimeout,
		poll:     b.cfg.LockPollInterval,
		staleAge: b.cfg.LockStaleAge,
	})
	if err != nil {
		return newError(CodeLockFailed, err)
	}
	defer lock.release()

	b.enter(StateCheck)
	fi, err := b.fs.Stat(b.cfg.EnvDir)
	switch {
	case err == nil && fi.IsDir():
		complete, err := afero.Exists(b.fs, filepath.Join(b.cfg.EnvDir, CompleteMarker))
		if err != nil {
			return newError(CodeCreateFailed, errors.Wrapf(err, "failed to inspect %s", b.cfg.EnvDir))
		}
		if complete {
			logging.Info("Reusing existing environment at %s", b.cfg.EnvDir)
			return nil
		}
		logging.Warn("Environment at %s was never completed, rebuilding it", b.cfg.EnvDir)
		if err := b.fs.RemoveAll(b.cfg.EnvDir); err != nil {
			return newError(CodeCreateFailed, errors.Wrapf(err, "failed to remove incomplete environment %s", b.cfg.EnvDir))
		}
	case err == nil:
		return newError(CodeCreateFailed, errors.Errorf("%s exists and is not a directory", b.cfg.EnvDir))
	case !os.IsNotExist(err):
		return newError(CodeCreateFailed, errors.Wrapf(err, "failed to inspect %s", b.cfg.EnvDir))
	}

	b.enter(StateCreate)
	if err := b.create(ctx); err != nil {
		b.discard()
		return err
	}

	b.enter(StateInstall)
	if err := b.install(ctx); err != nil {
		b.discard()
		return err
	}
	if err := afero.WriteFile(b.fs, filepath.Join(b.cfg.EnvDir, CompleteMarker), []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0o644); err != nil {
		b.discard()
		return newError(CodeInstallFailed, errors.Wrapf(err, "failed to mark %s complete", b.cfg.EnvDir))
	}
	return nil
}

func (b *Bootstrapper) create(ctx context.Context) error {
	logging.Info("Creating environment at %s with %s...", b.cfg.EnvDir, b.cfg.Interpreter)
	start := time.Now()
	code, err := b.exec.Execute(ctx, b.env, b.cfg.Interpreter, "-m", "venv", b.cfg.EnvDir)
	if err != nil {
		return newError(CodeCreateFailed, errors.Wrapf(err, "failed to start %s", b.cfg.Interpreter))
	}
	if code != 0 {
		return newError(CodeCreateFailed, errors.Errorf("%s -m venv exited with code %d", b.cfg.Interpreter, code))
	}
	logging.Info("Environment created in %s.", time.Since(start).Round(time.Millisecond))
	return nil
}

// install runs pip through the new environment's interpreter, so packages
// land in the environment that was just created.
func (b *Bootstrapper) install(ctx context.Context) error {
	python := filepath.Join(b.cfg.EnvDir, "bin", runInterpreter)
	logging.Info("Installing dependencies from %s...", b.cfg.Manifest)
	start := time.Now()
	code, err := b.exec.Execute(ctx, b.env, python, "-m", "pip", "install", "-r", b.cfg.Manifest)
	if err != nil {
		return newError(CodeInstallFailed, errors.Wrapf(err, "failed to start %s", python))
	}
	if code != 0 {
		return newError(CodeInstallFailed, errors.Errorf("pip install exited with code %d", code))
	}
	logging.Info("Dependencies installed in %s.", time.Since(start).Round(time.Millisecond))
	return nil
}

// discard removes a partially built environment so the next run starts from
// CREATE again.
func (b *Bootstrapper) discard() {
	logging.Warn("Removing incomplete environment at %s", b.cfg.EnvDir)
	if err := b.fs.RemoveAll(b.cfg.EnvDir); err != nil {
		logging.Error("Failed to remove %s: %v", b.cfg.EnvDir, err)
	}
}

func (b *Bootstrapper) activateAndRun(ctx context.Context) (int, error) {
	b.enter(StateActivate)
	binding := Activate(b.env, b.cfg.EnvDir)
	defer func() {
		b.enter(StateDeactivate)
		binding.Release()
	}()

	b.enter(StateRun)
	runEnv := b.env.Clone()
	for k, v := range b.cfg.ExtraEnv {
		if _, managed := binding.saved[k]; managed {
			logging.Warn("Ignoring %s from the extra environment, it is set by activation", k)
			continue
		}
		runEnv[k] = v
	}

	args := append([]string{b.cfg.Entrypoint}, b.cfg.Args...)
	logging.Info("Running %s %s", runInterpreter, b.cfg.Entrypoint)
	start := time.Now()
	code, err := b.exec.Execute(ctx, runEnv, runInterpreter, args...)
	if err != nil {
		return ExitRunFailed, newError(CodeRunFailed, errors.Wrapf(err, "failed to start %s", b.cfg.Entrypoint))
	}
	logging.Info("%s exited with code %d after %s.", b.cfg.Entrypoint, code, time.Since(start).Round(time.Second))
	return code, nil
}
