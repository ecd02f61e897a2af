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

package run

import (
	"context"
	"fmt"
	"io"
	"os"

	"jobshim/pkg/bootstrap"
	"jobshim/pkg/config"
	"jobshim/pkg/logging"
	"jobshim/pkg/orchestrator"
	"jobshim/pkg/orchestrator/slurm"
	"jobshim/pkg/run/jobscript"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// SubmitOptions holds all the necessary parameters for the 'submit' command logic
type SubmitOptions struct {
	Job          orchestrator.JobDefinition
	SubmitBinary string
	DryRun       bool      // print the batch script instead of submitting it
	Describe     bool      // print the job descriptor as YAML instead of submitting it
	Out          io.Writer // destination of DryRun and Describe output, os.Stdout if nil
}

// ExecuteSubmit renders the batch job and hands it to Slurm. It returns the
// scheduler's job ID, or an empty ID when nothing was submitted.
func ExecuteSubmit(opts SubmitOptions) (string, error) {
	logging.Info("Starting jobshim submit workflow...")
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if opts.Job.MailUser == "" && len(opts.Job.MailTypes) > 0 {
		logging.Warn("No mail user configured (%s), Slurm will send %s notifications to the submitting user", config.KeySubmitMailUser, opts.Job.MailTypes)
	}

	if opts.Describe {
		if err := opts.Job.Validate(); err != nil {
			return "", errors.Wrap(err, "invalid job definition")
		}
		desc, err := slurm.Describe(opts.Job)
		if err != nil {
			return "", err
		}
		_, err = fmt.Fprint(out, desc)
		return "", err
	}

	if opts.DryRun {
		if err := opts.Job.Validate(); err != nil {
			return "", errors.Wrap(err, "invalid job definition")
		}
		script, err := jobscript.GenerateJobScript(opts.Job)
		if err != nil {
			return "", errors.Wrap(err, "failed to generate batch script")
		}
		_, err = fmt.Fprint(out, script)
		return "", err
	}

	var slurmOpts []slurm.Option
	if opts.SubmitBinary != "" {
		slurmOpts = append(slurmOpts, slurm.WithSubmitBinary(opts.SubmitBinary))
	}
	var orch orchestrator.Orchestrator = slurm.NewSlurmOrchestrator(slurmOpts...)
	jobID, err := orch.SubmitJob(opts.Job)
	if err != nil {
		return "", err
	}
	logging.Info("jobshim submit workflow completed.")
	return jobID, nil
}

// BootstrapOptions holds all the necessary parameters for the 'bootstrap'
// command logic. Zero values of Fs, Executor and Env select the real
// filesystem, child processes and the process environment.
type BootstrapOptions struct {
	Config   *config.Config
	Args     []string
	Fs       afero.Fs
	Executor bootstrap.Executor
	Env      bootstrap.Environ
}

// ExecuteBootstrap prepares the training environment and runs the training
// program in it. The returned code is what the process should exit with.
func ExecuteBootstrap(ctx context.Context, opts BootstrapOptions) (int, error) {
	logging.Info("Starting jobshim bootstrap workflow...")

	bc, err := opts.Config.BootstrapConfig(opts.Args)
	if err != nil {
		return 1, err
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	exec := opts.Executor
	if exec == nil {
		exec = bootstrap.NewShellExecutor()
	}
	env := opts.Env
	if env == nil {
		env = bootstrap.OSEnviron()
	}

	b, err := bootstrap.New(bc, fs, exec, env)
	if err != nil {
		return 1, err
	}
	code, err := b.Run(ctx)
	logging.Debug("Bootstrap states: %v", b.Trace())
	if err != nil {
		return code, err
	}
	logging.Info("jobshim bootstrap workflow completed.")
	return code, nil
}
