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
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func validJob() JobDefinition {
	return JobDefinition{
		Partition:  "medium",
		JobName:    "lstm",
		GPU:        GPURequest{Type: "a100", Count: 1},
		TimeLimit:  300 * time.Minute,
		MailUser:   "someone@example.com",
		MailTypes:  []MailType{MailBegin, MailEnd, MailFail},
		StdoutPath: "lstm_out.log",
		StderrPath: "lstm_err.log",
		Command:    []string{"jobshim", "bootstrap"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*JobDefinition)
		wantErr string
	}{
		{name: "valid", mutate: func(*JobDefinition) {}},
		{name: "no GPU", mutate: func(j *JobDefinition) { j.GPU = GPURequest{} }},
		{name: "empty partition", mutate: func(j *JobDefinition) { j.Partition = " " }, wantErr: "partition"},
		{name: "empty job name", mutate: func(j *JobDefinition) { j.JobName = "" }, wantErr: "job name"},
		{name: "job name with space", mutate: func(j *JobDefinition) { j.JobName = "my job" }, wantErr: "whitespace"},
		{name: "negative GPU count", mutate: func(j *JobDefinition) { j.GPU.Count = -1 }, wantErr: "negative"},
		{name: "GPU without type", mutate: func(j *JobDefinition) { j.GPU.Type = "" }, wantErr: "GPU type is required"},
		{name: "malformed GPU type", mutate: func(j *JobDefinition) { j.GPU.Type = "a100:2" }, wantErr: "invalid GPU type"},
		{name: "zero time limit", mutate: func(j *JobDefinition) { j.TimeLimit = 0 }, wantErr: "time limit"},
		{name: "bad mail type", mutate: func(j *JobDefinition) { j.MailTypes = []MailType{"NEVER"} }, wantErr: "mail type"},
		{name: "missing log path", mutate: func(j *JobDefinition) { j.StderrPath = "" }, wantErr: "log paths"},
		{name: "missing command", mutate: func(j *JobDefinition) { j.Command = nil }, wantErr: "command"},
		{name: "newline in partition", mutate: func(j *JobDefinition) { j.Partition = "medium\n#SBATCH --qos=high" }, wantErr: "line breaks"},
		{name: "carriage return in mail user", mutate: func(j *JobDefinition) { j.MailUser = "a@b.c\rx" }, wantErr: "line breaks"},
		{name: "newline in stdout path", mutate: func(j *JobDefinition) { j.StdoutPath = "out.log\nhostname" }, wantErr: "line breaks"},
		{name: "newline in stderr path", mutate: func(j *JobDefinition) { j.StderrPath = "err.log\n" }, wantErr: "line breaks"},
		{name: "newline in working directory", mutate: func(j *JobDefinition) { j.WorkDir = "/scratch\nrm -rf /" }, wantErr: "line breaks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := validJob()
			tt.mutate(&job)
			err := job.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseMailTypes(t *testing.T) {
	got, err := ParseMailTypes("begin, END,,fail")
	if err != nil {
		t.Fatalf("ParseMailTypes: %v", err)
	}
	if diff := cmp.Diff([]MailType{MailBegin, MailEnd, MailFail}, got); diff != "" {
		t.Errorf("ParseMailTypes mismatch (-want +got):\n%s", diff)
	}

	if got, err := ParseMailTypes(""); err != nil || len(got) != 0 {
		t.Errorf("ParseMailTypes(\"\") = %v, %v; want empty", got, err)
	}
	if _, err := ParseMailTypes("BEGIN,REQUEUE"); err == nil {
		t.Errorf("expected error for REQUEUE")
	}
}
