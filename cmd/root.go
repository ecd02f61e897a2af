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

// Package cmd defines the jobshim command line.
package cmd

import (
	"context"
	"errors"
	"os"

	"jobshim/pkg/config"
	"jobshim/pkg/logging"

	"github.com/spf13/cobra"
)

type contextKey string

const configContextKey contextKey = "jobshimconfig"

var (
	cfgFile string
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "jobshim",
		Short: "Submits an LSTM training job to Slurm and bootstraps its Python environment.",
		Long: `jobshim covers both ends of a GPU training job on a Slurm cluster.

'jobshim submit' renders a batch script requesting a partition, a GPU, a time
limit and mail notifications, and hands it to sbatch. Inside the allocation the
script runs 'jobshim bootstrap', which creates the job's Python virtual
environment on first use, installs its requirements, and runs the training
program in it, exiting with the program's exit code.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.SetVerbose(verbose)

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if f := cfg.ConfigFileUsed(); f != "" {
				logging.Debug("Using config file %s", f)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configContextKey, cfg))
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (YAML). Defaults to "+config.DefaultConfigFile+" in the working directory if present.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug output.")
}

// GetConfig retrieves the Config loaded for the running command.
func GetConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configContextKey).(*config.Config)
	if !ok {
		return nil, errors.New("no config in context")
	}
	return cfg, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logging.Error("%v", err)
		os.Exit(1)
	}
}
