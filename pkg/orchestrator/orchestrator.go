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

package orchestrator

import (
	"fmt"
	"strings"
	"time"
)

// MailType is a job state change that triggers a notification.
type MailType string

const (
	MailBegin MailType = "BEGIN"
	MailEnd   MailType = "END"
	MailFail  MailType = "FAIL"
)

// GPURequest asks for Count accelerators of the named Type on the node.
type GPURequest struct {
	Type  string
	Count int
}

// JobDefinition holds all the necessary parameters to define a job.
// It is created once at submission time and handed to an Orchestrator as is.
type JobDefinition struct {
	Partition  string
	JobName    string
	GPU        GPURequest
	TimeLimit  time.Duration
	MailUser   string
	MailTypes  []MailType
	StdoutPath string
	StderrPath string
	WorkDir    string

	// Command is the argv run inside the allocation through srun.
	Command []string

	// OutputScript, if set, receives the rendered descriptor instead of
	// submitting it.
	OutputScript string
}

// Orchestrator defines the interface for submitting jobs to a cluster scheduler.
type Orchestrator interface {
	// SubmitJob hands the job to the scheduler and returns the job ID it
	// assigned. The ID is empty when the descriptor was only written out.
	SubmitJob(job JobDefinition) (string, error)
}

// ParseMailTypes splits a comma separated list such as "BEGIN,END,FAIL".
func ParseMailTypes(s string) ([]MailType, error) {
	var types []MailType
	for _, part := range strings.Split(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		mt := MailType(part)
		if !mt.valid() {
			return nil, fmt.Errorf("unknown mail type %q, expected one of BEGIN, END, FAIL", part)
		}
		types = append(types, mt)
	}
	return types, nil
}

func (m MailType) valid() bool {
	switch m {
	case MailBegin, MailEnd, MailFail:
		return true
	}
	return false
}

// Validate reports the first problem that would make the scheduler reject
// the descriptor.
func (j JobDefinition) Validate() error {
	if strings.TrimSpace(j.Partition) == "" {
		return fmt.Errorf("partition must not be empty")
	}
	if strings.TrimSpace(j.JobName) == "" {
		return fmt.Errorf("job name must not be empty")
	}
	if strings.ContainsAny(j.JobName, " \t\r\n") {
		return fmt.Errorf("job name %q must not contain whitespace", j.JobName)
	}
	// Each of these becomes part of a single #SBATCH line.
	for _, d := range []struct{ name, value string }{
		{"partition", j.Partition},
		{"GPU type", j.GPU.Type},
		{"mail user", j.MailUser},
		{"stdout path", j.StdoutPath},
		{"stderr path", j.StderrPath},
		{"working directory", j.WorkDir},
	} {
		if strings.ContainsAny(d.value, "\r\n") {
			return fmt.Errorf("%s %q must not contain line breaks", d.name, d.value)
		}
	}
	if j.GPU.Count < 0 {
		return fmt.Errorf("GPU count must not be negative, got %d", j.GPU.Count)
	}
	if j.GPU.Count > 0 && j.GPU.Type == "" {
		return fmt.Errorf("GPU type is required when requesting %d GPU(s)", j.GPU.Count)
	}
	if strings.ContainsAny(j.GPU.Type, ": ,") {
		return fmt.Errorf("invalid GPU type %q", j.GPU.Type)
	}
	if j.TimeLimit <= 0 {
		return fmt.Errorf("time limit must be positive, got %s", j.TimeLimit)
	}
	for _, mt := range j.MailTypes {
		if !mt.valid() {
			return fmt.Errorf("unknown mail type %q", mt)
		}
	}
	if j.StdoutPath == "" || j.StderrPath == "" {
		return fmt.Errorf("stdout and stderr log paths must be set")
	}
	if len(j.Command) == 0 {
		return fmt.Errorf("command must not be empty")
	}
	return nil
}
