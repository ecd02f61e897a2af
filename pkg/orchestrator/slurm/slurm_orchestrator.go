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

package slurm

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"jobshim/pkg/logging"
	"jobshim/pkg/orchestrator"
	"jobshim/pkg/run/jobscript"
	"jobshim/pkg/shell"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultSubmitBinary is the scheduler's batch submission command.
const DefaultSubmitBinary = "sbatch"

var (
	submittedJobRe = regexp.MustCompile(`Submitted batch job (\d+)`)
	parsableJobRe  = regexp.MustCompile(`^(\d+)(;\S+)?$`)
)

// SubmissionError is returned when the scheduler rejects a job descriptor.
// Output holds what the scheduler printed, unmodified.
type SubmissionError struct {
	Binary   string
	ExitCode int
	Output   string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s rejected the job (exit code %d): %s", e.Binary, e.ExitCode, e.Output)
}

// SlurmOrchestrator implements the Orchestrator interface for Slurm.
type SlurmOrchestrator struct {
	submitBinary string
}

// Option configures a SlurmOrchestrator.
type Option func(*SlurmOrchestrator)

// WithSubmitBinary overrides the sbatch executable.
func WithSubmitBinary(path string) Option {
	return func(s *SlurmOrchestrator) {
		s.submitBinary = path
	}
}

// NewSlurmOrchestrator creates and returns a new SlurmOrchestrator instance.
func NewSlurmOrchestrator(opts ...Option) *SlurmOrchestrator {
	s := &SlurmOrchestrator{submitBinary: DefaultSubmitBinary}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ orchestrator.Orchestrator = (*SlurmOrchestrator)(nil)

// SubmitJob renders the batch script for job and either writes it to
// job.OutputScript or hands it to sbatch. No retry is attempted.
func (s *SlurmOrchestrator) SubmitJob(job orchestrator.JobDefinition) (string, error) {
	if err := job.Validate(); err != nil {
		return "", errors.Wrap(err, "invalid job definition")
	}

	logging.Info("Generating Slurm batch script for job '%s'...", job.JobName)
	script, err := jobscript.GenerateJobScript(job)
	if err != nil {
		return "", errors.Wrap(err, "failed to generate batch script")
	}

	if job.OutputScript != "" {
		logging.Info("Saving batch script to %s", job.OutputScript)
		if err := os.WriteFile(job.OutputScript, []byte(script), 0755); err != nil {
			return "", errors.Wrapf(err, "failed to write batch script to file %s", job.OutputScript)
		}
		logging.Info("Batch script saved successfully.")
		return "", nil
	}

	return s.submit(script, job.Partition)
}

func (s *SlurmOrchestrator) submit(script, partition string) (string, error) {
	logging.Info("Submitting job to partition '%s'...", partition)
	logging.Debug("Batch script content:\n%s", script)

	// sbatch reads the script from stdin when no file is given.
	cmd := shell.NewCommand(s.submitBinary)
	cmd.SetInput(script)
	res := cmd.Execute()
	if res.ExitCode != 0 {
		return "", &SubmissionError{
			Binary:   s.submitBinary,
			ExitCode: res.ExitCode,
			Output:   strings.TrimSpace(res.Stderr + res.Stdout),
		}
	}

	jobID, err := ParseJobID(res.Stdout)
	if err != nil {
		return "", err
	}
	logging.Info("Submitted batch job %s.", jobID)
	return jobID, nil
}

// ParseJobID extracts the job ID from sbatch output, accepting both the
// default "Submitted batch job N" form and --parsable output.
func ParseJobID(stdout string) (string, error) {
	if m := submittedJobRe.FindStringSubmatch(stdout); m != nil {
		return m[1], nil
	}
	if m := parsableJobRe.FindStringSubmatch(strings.TrimSpace(stdout)); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("unable to parse job ID from sbatch output: %q", stdout)
}

// Describe renders the job descriptor as YAML, with the same values the
// batch script carries.
func Describe(job orchestrator.JobDefinition) (string, error) {
	mailTypes := make([]string, len(job.MailTypes))
	for i, mt := range job.MailTypes {
		mailTypes[i] = string(mt)
	}
	desc := struct {
		Partition string   `yaml:"partition"`
		JobName   string   `yaml:"jobName"`
		Gres      string   `yaml:"gres,omitempty"`
		TimeLimit string   `yaml:"timeLimitMinutes"`
		MailTypes []string `yaml:"mailTypes,omitempty"`
		MailUser  string   `yaml:"mailUser,omitempty"`
		Stdout    string   `yaml:"stdout"`
		Stderr    string   `yaml:"stderr"`
		WorkDir   string   `yaml:"workDir,omitempty"`
		Command   []string `yaml:"command"`
	}{
		Partition: job.Partition,
		JobName:   job.JobName,
		Gres:      jobscript.Gres(job.GPU),
		TimeLimit: jobscript.TimeMinutes(job.TimeLimit),
		MailTypes: mailTypes,
		MailUser:  job.MailUser,
		Stdout:    job.StdoutPath,
		Stderr:    job.StderrPath,
		WorkDir:   job.WorkDir,
		Command:   append([]string{"srun"}, job.Command...),
	}
	out, err := yaml.Marshal(desc)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal job descriptor")
	}
	return string(out), nil
}
