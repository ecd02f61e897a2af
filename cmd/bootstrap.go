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
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobshim/pkg/config"
	"jobshim/pkg/logging"
	"jobshim/pkg/run"

	"github.com/spf13/cobra"
)

var baseDir string

var bootstrapFlagKeys = map[string]string{
	config.KeyBootstrapEnvDir:       "env-dir",
	config.KeyBootstrapRequirements: "requirements",
	config.KeyBootstrapEntrypoint:   "entrypoint",
	config.KeyBootstrapInterpreter:  "interpreter",
	config.KeyBootstrapEnvFile:      "env-file",
	config.KeyBootstrapLockTimeout:  "lock-timeout",
	config.KeyBootstrapLockStaleAge: "lock-stale-age",
}

func init() {
	rootCmd.AddCommand(bootstrapCmd)

	bootstrapCmd.Flags().String("env-dir", "env", "Directory of the Python virtual environment.")
	bootstrapCmd.Flags().StringP("requirements", "r", "requirements.txt", "Requirements file installed into a new environment.")
	bootstrapCmd.Flags().String("entrypoint", "lstm_train.py", "Training program run inside the environment.")
	bootstrapCmd.Flags().String("interpreter", "python3", "Interpreter used to create the environment.")
	bootstrapCmd.Flags().String("env-file", "", "Dotenv file with extra variables for the training program.")
	bootstrapCmd.Flags().Duration("lock-timeout", 60*time.Minute, "Maximum wait for another job preparing the same environment. 0 waits indefinitely.")
	bootstrapCmd.Flags().Duration("lock-stale-age", 6*time.Hour, "Age after which a lock left by a job that cannot be checked is broken. 0 disables.")
	bootstrapCmd.Flags().StringVar(&baseDir, "base-dir", "", "Directory relative paths are resolved against. Defaults to the working directory.")
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap [-- program-args...]",
	Short: "Prepares the Python environment and runs the training program in it.",
	Long: `The 'bootstrap' command runs inside the job allocation. It creates the
virtual environment and installs the requirements unless the environment
already exists, then runs the training program with the environment activated.

Jobs sharing an environment directory serialize on a lock next to it, so the
environment is built once. The command exits with the training program's exit
code, or with 120 (environment creation failed), 121 (dependency installation
failed), 122 (lock not acquired) or 127 (program could not be started).
Arguments after '--' are passed to the training program.`,
	Run: runBootstrapCmd,
}

func runBootstrapCmd(cmd *cobra.Command, args []string) {
	cfg, err := GetConfig(cmd)
	if err != nil {
		logging.Fatal("%v", err)
	}
	if err := cfg.BindFlags(cmd.Flags(), bootstrapFlagKeys); err != nil {
		logging.Fatal("%v", err)
	}
	if baseDir == "" {
		if baseDir, err = os.Getwd(); err != nil {
			logging.Fatal("Failed to determine working directory: %v", err)
		}
	}
	if err := cfg.Resolve(baseDir); err != nil {
		logging.Fatal("%v", err)
	}

	// Slurm sends SIGTERM on cancellation and at the time limit.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	code, err := run.ExecuteBootstrap(ctx, run.BootstrapOptions{Config: cfg, Args: args})
	stop()
	if err != nil {
		logging.Exit(code, "jobshim bootstrap failed: %v", err)
	}
	os.Exit(code)
}
