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

// Package logging provides printf-style leveled logging for jobshim.
//
// All output goes to stderr so that, under Slurm, it lands in the job's
// error log next to whatever the training program prints.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var logger = newLogger(os.Stderr)

// exitFunc is swapped out in tests.
var exitFunc = os.Exit

type formatter struct {
	colored bool
}

func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	prefix := levelPrefix(entry.Level)
	if f.colored {
		prefix = levelColor(entry.Level).Sprint(prefix)
	}
	b.WriteString(prefix)
	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelPrefix(level logrus.Level) string {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return "debug: "
	case logrus.WarnLevel:
		return "warning: "
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return "error: "
	default:
		return ""
	}
}

func levelColor(level logrus.Level) *color.Color {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return color.New(color.FgHiBlack)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.Reset)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&formatter{colored: isTerminal(w)})
	return l
}

// SetOutput redirects all log output to w. Coloring is only enabled when w is
// a terminal.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
	logger.SetFormatter(&formatter{colored: isTerminal(w)})
}

// SetVerbose enables or disables debug output.
func SetVerbose(verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
}

// Debug logs a message that is only shown with --verbose.
func Debug(f string, a ...any) {
	logger.Debug(fmt.Sprintf(f, a...))
}

// Info logs an informational message.
func Info(f string, a ...any) {
	logger.Info(fmt.Sprintf(f, a...))
}

// Warn logs a warning.
func Warn(f string, a ...any) {
	logger.Warn(fmt.Sprintf(f, a...))
}

// Error logs an error without exiting.
func Error(f string, a ...any) {
	logger.Error(fmt.Sprintf(f, a...))
}

// Fatal logs an error and exits with status 1.
func Fatal(f string, a ...any) {
	Exit(1, f, a...)
}

// Exit logs an error and exits with the given status.
func Exit(code int, f string, a ...any) {
	logger.Error(fmt.Sprintf(f, a...))
	exitFunc(code)
}
