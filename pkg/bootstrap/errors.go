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

package bootstrap

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code identifies which bootstrap step failed.
type Code string

const (
	CodeCreateFailed  Code = "create_failed"
	CodeInstallFailed Code = "install_failed"
	CodeLockFailed    Code = "lock_failed"
	CodeRunFailed     Code = "run_failed"
)

// Process exit codes for failures of the bootstrapper itself. A training
// program that runs and exits non-zero is not a failure of the bootstrapper;
// its exit code is passed through unchanged.
const (
	ExitCreateFailed  = 120
	ExitInstallFailed = 121
	ExitLockFailed    = 122
	ExitRunFailed     = 127
)

// Error carries a Code plus the underlying error.
type Error struct {
	Code Code
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

func newError(code Code, err error) error {
	return &Error{Code: code, err: err}
}

// IsCode reports whether err is, or wraps, a bootstrap Error with code.
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// ExitCode maps a bootstrap error to the process exit code. Errors that are
// not bootstrap errors map to 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if !errors.As(err, &e) {
		return 1
	}
	switch e.Code {
	case CodeCreateFailed:
		return ExitCreateFailed
	case CodeInstallFailed:
		return ExitInstallFailed
	case CodeLockFailed:
		return ExitLockFailed
	case CodeRunFailed:
		return ExitRunFailed
	default:
		return 1
	}
}
