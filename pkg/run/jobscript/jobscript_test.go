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

package jobscript

import (
	"testing"
	"time"

	"jobshim/pkg/orchestrator"

	"github.com/google/go-cmp/cmp"
)

func lstmJob() orchestrator.JobDefinition {
	return orchestrator.JobDefinition{
		Partition:  "medium",
		JobName:    "lstm",
		GPU:        orchestrator.GPURequest{Type: "a100", Count: 1},
		TimeLimit:  300 * time.Minute,
		MailUser:   "someone@example.com",
		MailTypes:  []orchestrator.MailType{orchestrator.MailBegin, orchestrator.MailEnd, orchestrator.MailFail},
		StdoutPath: "lstm_out.log",
		StderrPath: "lstm_err.log",
		Command:    []string{"jobshim", "bootstrap"},
	}
}

const lstmScript = `#!/bin/bash
#SBATCH --partition=medium
#SBATCH --job-name=lstm
#SBATCH --gres=gpu:a100:1
#SBATCH --time=300
#SBATCH --mail-type=BEGIN,END,FAIL
#SBATCH --mail-user=someone@example.com
#SBATCH --output=lstm_out.log
#SBATCH --error=lstm_err.log

srun jobshim bootstrap
`

func TestGenerateJobScriptSnapshot(t *testing.T) {
	got, err := GenerateJobScript(lstmJob())
	if err != nil {
		t.Fatalf("GenerateJobScript failed: %v", err)
	}
	if diff := cmp.Diff(lstmScript, got); diff != "" {
		t.Errorf("batch script mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateJobScriptDirectives(t *testing.T) {
	tests := []struct {
		name           string
		mutate         func(*orchestrator.JobDefinition)
		wantDirectives map[string]string
		wantBody       []string
	}{
		{
			name:   "descriptor table",
			mutate: func(*orchestrator.JobDefinition) {},
			wantDirectives: map[string]string{
				"partition": "medium",
				"job-name":  "lstm",
				"gres":      "gpu:a100:1",
				"time":      "300",
				"mail-type": "BEGIN,END,FAIL",
				"mail-user": "someone@example.com",
				"output":    "lstm_out.log",
				"error":     "lstm_err.log",
			},
			wantBody: []string{"srun jobshim bootstrap"},
		},
		{
			name: "CPU only without notifications",
			mutate: func(j *orchestrator.JobDefinition) {
				j.GPU = orchestrator.GPURequest{}
				j.MailUser = ""
				j.MailTypes = nil
				j.TimeLimit = 90*time.Second + time.Hour
			},
			wantDirectives: map[string]string{
				"partition": "medium",
				"job-name":  "lstm",
				"time":      "62",
				"output":    "lstm_out.log",
				"error":     "lstm_err.log",
			},
			wantBody: []string{"srun jobshim bootstrap"},
		},
		{
			name: "work dir and quoted arguments",
			mutate: func(j *orchestrator.JobDefinition) {
				j.WorkDir = "/scratch/lstm"
				j.Command = []string{"/opt/bin/jobshim", "bootstrap", "--", "--lr", "1e-3", "it's here"}
			},
			wantDirectives: map[string]string{
				"partition": "medium",
				"job-name":  "lstm",
				"gres":      "gpu:a100:1",
				"time":      "300",
				"mail-type": "BEGIN,END,FAIL",
				"mail-user": "someone@example.com",
				"output":    "lstm_out.log",
				"error":     "lstm_err.log",
				"chdir":     "/scratch/lstm",
			},
			wantBody: []string{`srun /opt/bin/jobshim bootstrap -- --lr 1e-3 'it'\''s here'`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := lstmJob()
			tt.mutate(&job)
			content, err := GenerateJobScript(job)
			if err != nil {
				t.Fatalf("GenerateJobScript failed: %v", err)
			}
			script, err := Parse(content)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if diff := cmp.Diff(tt.wantDirectives, script.Directives); diff != "" {
				t.Errorf("directives mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantBody, script.Body); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse(t *testing.T) {
	content := `#!/bin/bash
# a comment
#SBATCH --partition medium
#SBATCH --exclusive

echo start
#SBATCH --time=10
srun train
`
	script, err := Parse(content)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	wantDirectives := map[string]string{"partition": "medium", "exclusive": ""}
	if diff := cmp.Diff(wantDirectives, script.Directives); diff != "" {
		t.Errorf("directives mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"partition", "exclusive"}, script.Order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	wantBody := []string{"echo start", "#SBATCH --time=10", "srun train"}
	if diff := cmp.Diff(wantBody, script.Body); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}

	if _, err := Parse("#SBATCH -p medium\n"); err == nil {
		t.Errorf("expected error for short option directive")
	}
}

func TestTimeMinutes(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{300 * time.Minute, "300"},
		{5 * time.Hour, "300"},
		{time.Minute, "1"},
		{61 * time.Second, "2"},
		{time.Second, "1"},
	}
	for _, tt := range tests {
		if got := TimeMinutes(tt.d); got != tt.want {
			t.Errorf("TimeMinutes(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
