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

// Package config loads jobshim settings. Values come from built-in defaults,
// then an optional YAML file, then JOBSHIM_* environment variables, then
// command line flags, each layer overriding the previous one.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"jobshim/pkg/bootstrap"
	"jobshim/pkg/orchestrator"
	"jobshim/pkg/orchestrator/slurm"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "JOBSHIM"

	// DefaultConfigFile is picked up from the working directory when no
	// config file is given explicitly.
	DefaultConfigFile = "jobshim.yaml"
)

// Keys of the settings.
const (
	KeySubmitPartition = "submit.partition"
	KeySubmitJobName   = "submit.job_name"
	KeySubmitGPUType   = "submit.gpu_type"
	KeySubmitGPUCount  = "submit.gpu_count"
	KeySubmitTimeLimit = "submit.time_limit"
	KeySubmitMailUser  = "submit.mail_user"
	KeySubmitMailTypes = "submit.mail_types"
	KeySubmitStdout    = "submit.stdout"
	KeySubmitStderr    = "submit.stderr"
	KeySubmitWorkDir   = "submit.work_dir"
	KeySubmitCommand   = "submit.command"
	KeySubmitBinary    = "submit.sbatch"

	KeyBootstrapEnvDir       = "bootstrap.env_dir"
	KeyBootstrapRequirements = "bootstrap.requirements"
	KeyBootstrapEntrypoint   = "bootstrap.entrypoint"
	KeyBootstrapInterpreter  = "bootstrap.interpreter"
	KeyBootstrapEnvFile      = "bootstrap.env_file"
	KeyBootstrapLockTimeout  = "bootstrap.lock_timeout"
	KeyBootstrapLockStaleAge = "bootstrap.lock_stale_age"
)

// SubmitConfig describes the batch job.
type SubmitConfig struct {
	Partition string        `mapstructure:"partition"`
	JobName   string        `mapstructure:"job_name"`
	GPUType   string        `mapstructure:"gpu_type"`
	GPUCount  int           `mapstructure:"gpu_count"`
	TimeLimit time.Duration `mapstructure:"time_limit"`
	MailUser  string        `mapstructure:"mail_user"`
	MailTypes string        `mapstructure:"mail_types"`
	Stdout    string        `mapstructure:"stdout"`
	Stderr    string        `mapstructure:"stderr"`
	WorkDir   string        `mapstructure:"work_dir"`
	Command   []string      `mapstructure:"command"`
	Sbatch    string        `mapstructure:"sbatch"`
}

// BootstrapConfig describes the environment the training program runs in.
type BootstrapConfig struct {
	EnvDir       string        `mapstructure:"env_dir"`
	Requirements string        `mapstructure:"requirements"`
	Entrypoint   string        `mapstructure:"entrypoint"`
	Interpreter  string        `mapstructure:"interpreter"`
	EnvFile      string        `mapstructure:"env_file"`
	LockTimeout  time.Duration `mapstructure:"lock_timeout"`
	LockStaleAge time.Duration `mapstructure:"lock_stale_age"`
}

// Config is the full jobshim configuration.
type Config struct {
	Submit    SubmitConfig    `mapstructure:"submit"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`

	v *viper.Viper
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeySubmitPartition, "medium")
	v.SetDefault(KeySubmitJobName, "lstm")
	v.SetDefault(KeySubmitGPUType, "a100")
	v.SetDefault(KeySubmitGPUCount, 1)
	v.SetDefault(KeySubmitTimeLimit, 300*time.Minute)
	v.SetDefault(KeySubmitMailUser, "")
	v.SetDefault(KeySubmitMailTypes, "BEGIN,END,FAIL")
	v.SetDefault(KeySubmitStdout, "lstm_out.log")
	v.SetDefault(KeySubmitStderr, "lstm_err.log")
	v.SetDefault(KeySubmitWorkDir, "")
	v.SetDefault(KeySubmitCommand, []string{"jobshim", "bootstrap"})
	v.SetDefault(KeySubmitBinary, slurm.DefaultSubmitBinary)

	v.SetDefault(KeyBootstrapEnvDir, "env")
	v.SetDefault(KeyBootstrapRequirements, "requirements.txt")
	v.SetDefault(KeyBootstrapEntrypoint, "lstm_train.py")
	v.SetDefault(KeyBootstrapInterpreter, bootstrap.DefaultInterpreter)
	v.SetDefault(KeyBootstrapEnvFile, "")
	v.SetDefault(KeyBootstrapLockTimeout, 60*time.Minute)
	v.SetDefault(KeyBootstrapLockStaleAge, 6*time.Hour)
}

// Load reads the configuration. cfgFile may be empty, in which case
// DefaultConfigFile is used if it exists in the working directory.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			cfgFile = DefaultConfigFile
		}
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", cfgFile)
		}
	}

	c := &Config{v: v}
	if err := c.unmarshal(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) unmarshal() error {
	var fresh Config
	if err := c.v.Unmarshal(&fresh); err != nil {
		return errors.Wrap(err, "unmarshaling config")
	}
	fresh.v = c.v
	*c = fresh
	return nil
}

// BindFlags lets the flags in keys (config key to flag name) override the
// loaded values. Only flags set on the command line take effect.
func (c *Config) BindFlags(flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		f := flags.Lookup(name)
		if f == nil {
			return errors.Errorf("no flag --%s for %s", name, key)
		}
		if err := c.v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "binding --%s", name)
		}
	}
	return c.unmarshal()
}

// ConfigFileUsed returns the config file that was read, if any.
func (c *Config) ConfigFileUsed() string {
	return c.v.ConfigFileUsed()
}

// Resolve turns the relative paths of the bootstrap settings, and the job's
// working directory, into absolute paths under baseDir. After Resolve no
// setting depends on the process's working directory.
func (c *Config) Resolve(baseDir string) error {
	base, err := filepath.Abs(baseDir)
	if err != nil {
		return errors.Wrapf(err, "resolving %s", baseDir)
	}
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Bootstrap.EnvDir = abs(c.Bootstrap.EnvDir)
	c.Bootstrap.Requirements = abs(c.Bootstrap.Requirements)
	c.Bootstrap.Entrypoint = abs(c.Bootstrap.Entrypoint)
	c.Bootstrap.EnvFile = abs(c.Bootstrap.EnvFile)
	c.Submit.WorkDir = abs(c.Submit.WorkDir)
	return nil
}

// JobDefinition builds the batch job described by the submit settings.
func (c *Config) JobDefinition() (orchestrator.JobDefinition, error) {
	mailTypes, err := orchestrator.ParseMailTypes(c.Submit.MailTypes)
	if err != nil {
		return orchestrator.JobDefinition{}, errors.Wrapf(err, "invalid %s", KeySubmitMailTypes)
	}
	return orchestrator.JobDefinition{
		Partition:  c.Submit.Partition,
		JobName:    c.Submit.JobName,
		GPU:        orchestrator.GPURequest{Type: c.Submit.GPUType, Count: c.Submit.GPUCount},
		TimeLimit:  c.Submit.TimeLimit,
		MailUser:   c.Submit.MailUser,
		MailTypes:  mailTypes,
		StdoutPath: c.Submit.Stdout,
		StderrPath: c.Submit.Stderr,
		WorkDir:    c.Submit.WorkDir,
		Command:    append([]string(nil), c.Submit.Command...),
	}, nil
}

// BootstrapConfig builds the bootstrapper configuration. args are forwarded
// to the entry point. Variables from the env file, if one is configured,
// become the program's extra environment.
func (c *Config) BootstrapConfig(args []string) (bootstrap.Config, error) {
	bc := bootstrap.Config{
		EnvDir:       c.Bootstrap.EnvDir,
		Manifest:     c.Bootstrap.Requirements,
		Entrypoint:   c.Bootstrap.Entrypoint,
		Interpreter:  c.Bootstrap.Interpreter,
		Args:         args,
		LockTimeout:  c.Bootstrap.LockTimeout,
		LockStaleAge: c.Bootstrap.LockStaleAge,
	}
	if c.Bootstrap.EnvFile != "" {
		extra, err := godotenv.Read(c.Bootstrap.EnvFile)
		if err != nil {
			return bootstrap.Config{}, errors.Wrapf(err, "reading env file %s", c.Bootstrap.EnvFile)
		}
		bc.ExtraEnv = extra
	}
	return bc, nil
}
