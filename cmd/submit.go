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

package cmd

import (
	"fmt"
	"os"
	"time"

	"jobshim/pkg/config"
	"jobshim/pkg/logging"
	"jobshim/pkg/run"

	"github.com/spf13/cobra"
)

var (
	outputScript string
	dryRun       bool
	describe     bool
)

// submitFlagKeys maps config keys to the submit flags overriding them.
var submitFlagKeys = map[string]string{
	config.KeySubmitPartition: "partition",
	config.KeySubmitJobName:   "job-name",
	config.KeySubmitGPUType:   "gpu-type",
	config.KeySubmitGPUCount:  "gpus",
	config.KeySubmitTimeLimit: "time",
	config.KeySubmitMailUser:  "mail-user",
	config.KeySubmitMailTypes: "mail-type",
	config.KeySubmitStdout:    "output",
	config.KeySubmitStderr:    "error",
	config.KeySubmitWorkDir:   "chdir",
	config.KeySubmitCommand:   "command",
	config.KeySubmitBinary:    "sbatch",
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringP("partition", "p", "medium", "Slurm partition to submit to.")
	submitCmd.Flags().StringP("job-name", "J", "lstm", "Name of the job.")
	submitCmd.Flags().String("gpu-type", "a100", "GPU type to request.")
	submitCmd.Flags().Int("gpus", 1, "Number of GPUs to request. 0 requests none.")
	submitCmd.Flags().DurationP("time", "t", 300*time.Minute, "Time limit of the job (e.g. '5h', '90m'). Rounded up to whole minutes.")
	submitCmd.Flags().String("mail-user", "", "Address for job notifications. Slurm notifies the submitting user if empty.")
	submitCmd.Flags().String("mail-type", "BEGIN,END,FAIL", "Comma separated job events to send mail for.")
	submitCmd.Flags().StringP("output", "o", "lstm_out.log", "Path of the job's standard output log.")
	submitCmd.Flags().StringP("error", "e", "lstm_err.log", "Path of the job's standard error log.")
	submitCmd.Flags().StringP("chdir", "D", "", "Working directory of the job. Defaults to the submission directory.")
	submitCmd.Flags().StringSlice("command", []string{"jobshim", "bootstrap"}, "Command run in the allocation through srun.")
	submitCmd.Flags().String("sbatch", "sbatch", "sbatch executable to submit with.")

	submitCmd.Flags().StringVar(&outputScript, "output-script", "", "Path to write the generated batch script to instead of submitting it.")
	submitCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the generated batch script instead of submitting it.")
	submitCmd.Flags().BoolVar(&describe, "describe", false, "Print the job descriptor as YAML instead of submitting it.")

	submitCmd.MarkFlagsMutuallyExclusive("output-script", "dry-run", "describe")
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submits the training job to Slurm.",
	Long: `The 'submit' command renders a Slurm batch script for the training job and
pipes it to sbatch, printing the ID of the submitted job.

Settings come from the config file, JOBSHIM_SUBMIT_* environment variables and
the flags below, in increasing order of precedence. Use --dry-run or --describe
to inspect the job without submitting it, or --output-script to save the batch
script for a later 'sbatch <file>'.`,
	Args: cobra.NoArgs,
	Run:  runSubmitCmd,
}

func runSubmitCmd(cmd *cobra.Command, args []string) {
	cfg, err := GetConfig(cmd)
	if err != nil {
		logging.Fatal("%v", err)
	}
	if err := cfg.BindFlags(cmd.Flags(), submitFlagKeys); err != nil {
		logging.Fatal("%v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		logging.Fatal("Failed to determine working directory: %v", err)
	}
	if err := cfg.Resolve(wd); err != nil {
		logging.Fatal("%v", err)
	}

	job, err := cfg.JobDefinition()
	if err != nil {
		logging.Fatal("%v", err)
	}
	job.OutputScript = outputScript

	jobID, err := run.ExecuteSubmit(run.SubmitOptions{
		Job:          job,
		SubmitBinary: cfg.Submit.Sbatch,
		DryRun:       dryRun,
		Describe:     describe,
	})
	if err != nil {
		logging.Fatal("jobshim submit failed: %v", err)
	}
	if jobID != "" {
		fmt.Fprintln(cmd.OutOrStdout(), jobID)
	}
}
