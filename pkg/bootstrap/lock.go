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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"jobshim/pkg/logging"
	"jobshim/pkg/shell"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const lockOwnerFile = "owner"

// dirLock is a mutual exclusion guard shared by every job that uses the same
// environment directory. Creating a directory is atomic on the shared
// filesystems clusters use, so whoever creates it holds the lock.
type dirLock struct {
	fs    afero.Fs
	path  string
	token string
}

func hostname() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

func lockToken() string {
	return fmt.Sprintf("%s:%d:%s", hostname(), os.Getpid(), shell.RandomString(8))
}

// processAlive reports whether pid names a running process on this host.
var processAlive = func(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

// lockOptions bound how long acquireLock waits and when it breaks a lock.
type lockOptions struct {
	timeout time.Duration
	poll    time.Duration
	// staleAge, if positive, is the age after which a lock is broken
	// whoever holds it.
	staleAge time.Duration
}

// acquireLock blocks until the lock at path is held, ctx is done, or timeout
// (if positive) expires. Locks left by dead processes are broken.
func acquireLock(ctx context.Context, fs afero.Fs, path string, opts lockOptions) (*dirLock, error) {
	timeout, poll := opts.timeout, opts.poll
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create parent of lock %s", path)
	}

	l := &dirLock{fs: fs, path: path, token: lockToken()}
	waiting := false
	for {
		err := fs.Mkdir(path, 0o755)
		if err == nil {
			if err := afero.WriteFile(fs, filepath.Join(path, lockOwnerFile), []byte(l.token), 0o644); err != nil {
				_ = fs.RemoveAll(path)
				return nil, errors.Wrapf(err, "failed to record owner of lock %s", path)
			}
			logging.Debug("Acquired lock %s as %s", path, l.token)
			return l, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Wrapf(err, "failed to create lock %s", path)
		}

		owner := l.owner()
		if reason := staleReason(fs, path, owner, opts.staleAge); reason != "" {
			if l.breakStale(owner, reason) {
				continue
			}
		}
		if !waiting {
			logging.Info("Environment is being prepared by %s, waiting for lock %s...", owner, path)
			waiting = true
		}
		select {
		case <-ctx.Done():
			return nil, errors.Errorf("gave up waiting for lock %s held by %s: %v", path, owner, ctx.Err())
		case <-time.After(poll):
		}
	}
}

// staleReason explains why the lock held by owner can be broken, or returns
// "" if it is still valid.
func staleReason(fs afero.Fs, path, owner string, staleAge time.Duration) string {
	parts := strings.Split(owner, ":")
	if len(parts) == 3 && parts[0] == hostname() {
		if pid, err := strconv.Atoi(parts[1]); err == nil && pid > 0 && !processAlive(pid) {
			return fmt.Sprintf("process %d is gone", pid)
		}
	}
	if staleAge > 0 {
		if fi, err := fs.Stat(path); err == nil {
			if age := time.Since(fi.ModTime()); age > staleAge {
				return fmt.Sprintf("it is %s old", age.Round(time.Second))
			}
		}
	}
	return ""
}

// breakStale removes a lock still held by owner.
func (l *dirLock) breakStale(owner, reason string) bool {
	if l.owner() != owner {
		return false
	}
	logging.Warn("Breaking lock %s held by %s: %s", l.path, owner, reason)
	if err := l.fs.RemoveAll(l.path); err != nil {
		logging.Warn("Failed to remove stale lock %s: %v", l.path, err)
		return false
	}
	return true
}

func (l *dirLock) owner() string {
	b, err := afero.ReadFile(l.fs, filepath.Join(l.path, lockOwnerFile))
	if err != nil || len(b) == 0 {
		return "another job"
	}
	return strings.TrimSpace(string(b))
}

// release removes the lock if it is still ours.
func (l *dirLock) release() {
	if owner := l.owner(); owner != l.token {
		logging.Warn("Lock %s is now owned by %s, leaving it in place", l.path, owner)
		return
	}
	if err := l.fs.RemoveAll(l.path); err != nil {
		logging.Warn("Failed to remove lock %s: %v", l.path, err)
		return
	}
	logging.Debug("Released lock %s", l.path)
}
