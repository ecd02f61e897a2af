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
	"bufio"
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strings"
	"text/template"
	"time"

	"jobshim/pkg/orchestrator"
)

// DirectivePrefix marks a scheduler directive line in a batch script.
const DirectivePrefix = "#SBATCH"

// SlurmBatchTemplate is the Go template for generating a Slurm batch script.
// The job step is launched with srun so that the scheduler controls placement.
const SlurmBatchTemplate = `#!/bin/bash
#SBATCH --partition={{.Partition}}
#SBATCH --job-name={{.JobName}}
{{- if .Gres }}
#SBATCH --gres={{.Gres}}
{{- end }}
#SBATCH --time={{.TimeMinutes}}
{{- if .MailType }}
#SBATCH --mail-type={{.MailType}}
{{- end }}
{{- if .MailUser }}
#SBATCH --mail-user={{.MailUser}}
{{- end }}
#SBATCH --output={{.Stdout}}
#SBATCH --error={{.Stderr}}
{{- if .WorkDir }}
#SBATCH --chdir={{.WorkDir}}
{{- end }}

srun {{.Command}}
`

var batchTemplate = template.Must(template.New("slurmBatch").Parse(SlurmBatchTemplate))

var safeShellWord = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// Gres renders the generic resource request for a GPU request, e.g.
// "gpu:a100:1". It returns an empty string when no GPU is requested.
func Gres(gpu orchestrator.GPURequest) string {
	if gpu.Count <= 0 {
		return ""
	}
	return fmt.Sprintf("gpu:%s:%d", gpu.Type, gpu.Count)
}

// TimeMinutes renders a wall-clock limit in whole minutes, rounding up. Slurm
// reads a bare number as minutes.
func TimeMinutes(d time.Duration) string {
	return fmt.Sprintf("%d", int64(math.Ceil(d.Minutes())))
}

// ShellQuote quotes args for a POSIX shell, leaving simple words untouched.
func ShellQuote(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if safeShellWord.MatchString(a) {
			quoted[i] = a
			continue
		}
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}

// GenerateJobScript generates the batch script for the job. The job must
// already be valid.
func GenerateJobScript(job orchestrator.JobDefinition) (string, error) {
	mailTypes := make([]string, len(job.MailTypes))
	for i, mt := range job.MailTypes {
		mailTypes[i] = string(mt)
	}

	data := struct {
		Partition   string
		JobName     string
		Gres        string
		TimeMinutes string
		MailType    string
		MailUser    string
		Stdout      string
		Stderr      string
		WorkDir     string
		Command     string
	}{
		Partition:   job.Partition,
		JobName:     job.JobName,
		Gres:        Gres(job.GPU),
		TimeMinutes: TimeMinutes(job.TimeLimit),
		MailType:    strings.Join(mailTypes, ","),
		MailUser:    job.MailUser,
		Stdout:      job.StdoutPath,
		Stderr:      job.StderrPath,
		WorkDir:     job.WorkDir,
		Command:     ShellQuote(job.Command),
	}

	var buf bytes.Buffer
	if err := batchTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute slurm batch template: %w", err)
	}
	return buf.String(), nil
}

// Script is a batch script split into its directives and its body.
type Script struct {
	// Directives maps option names (without leading dashes) to values, in
	// the order they appeared in Order.
	Directives map[string]string
	Order      []string
	Body       []string
}

// Parse reads the #SBATCH directives from a batch script. Like sbatch, it
// stops looking for directives at the first line that is neither blank nor
// a comment.
func Parse(content string) (*Script, error) {
	s := &Script{Directives: map[string]string{}}
	inHeader := true
	scanner := bufio.NewScanner(strings.NewReader(content))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if inHeader {
			if strings.HasPrefix(line, DirectivePrefix) {
				key, value, err := parseDirective(strings.TrimSpace(strings.TrimPrefix(line, DirectivePrefix)))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				if _, seen := s.Directives[key]; !seen {
					s.Order = append(s.Order, key)
				}
				s.Directives[key] = value
				continue
			}
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			inHeader = false
		}
		if line != "" {
			s.Body = append(s.Body, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch script: %w", err)
	}
	return s, nil
}

func parseDirective(opt string) (string, string, error) {
	if !strings.HasPrefix(opt, "--") {
		return "", "", fmt.Errorf("unsupported directive %q, only long options are recognized", opt)
	}
	opt = strings.TrimPrefix(opt, "--")
	if key, value, ok := strings.Cut(opt, "="); ok {
		return key, value, nil
	}
	if key, value, ok := strings.Cut(opt, " "); ok {
		return key, strings.TrimSpace(value), nil
	}
	return opt, "", nil
}
