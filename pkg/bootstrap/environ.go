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
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Variables touched by activating a virtual environment.
const (
	envVirtualEnv = "VIRTUAL_ENV"
	envPath       = "PATH"
	envPythonHome = "PYTHONHOME"
)

// Environ is the set of environment variables the bootstrapper hands to the
// commands it runs. It plays the role a shell's exported variables play for
// "activate": tool resolution follows its PATH.
type Environ map[string]string

// ParseEnviron builds an Environ from "KEY=value" entries.
func ParseEnviron(kvs []string) Environ {
	env := make(Environ, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}

// OSEnviron returns the environment of the current process.
func OSEnviron() Environ {
	return ParseEnviron(os.Environ())
}

// Clone returns an independent copy.
func (e Environ) Clone() Environ {
	c := make(Environ, len(e))
	for k, v := range e {
		c[k] = v
	}
	return c
}

// Slice renders the environment as sorted "KEY=value" entries.
func (e Environ) Slice() []string {
	kvs := make([]string, 0, len(e))
	for k, v := range e {
		kvs = append(kvs, k+"="+v)
	}
	sort.Strings(kvs)
	return kvs
}

// LookPath searches the directories of the environment's PATH for an
// executable named file. Names containing a slash are returned unchanged.
func (e Environ) LookPath(file string) (string, error) {
	if strings.Contains(file, "/") {
		return file, nil
	}
	for _, dir := range filepath.SplitList(e[envPath]) {
		if dir == "" {
			dir = "."
		}
		path := filepath.Join(dir, file)
		fi, err := os.Stat(path)
		if err == nil && !fi.IsDir() && fi.Mode()&0o111 != 0 {
			return path, nil
		}
	}
	return "", fmt.Errorf("executable %q not found in PATH %q", file, e[envPath])
}

// Binding is an activated environment. Release restores every variable it
// changed to its previous value.
type Binding struct {
	env      Environ
	envDir   string
	saved    map[string]*string
	released bool
}

// Activate binds env to the virtual environment at envDir: VIRTUAL_ENV points
// at it, its bin directory leads PATH and PYTHONHOME is unset.
func Activate(env Environ, envDir string) *Binding {
	b := &Binding{env: env, envDir: envDir, saved: map[string]*string{}}
	for _, k := range []string{envVirtualEnv, envPath, envPythonHome} {
		if v, ok := env[k]; ok {
			v := v
			b.saved[k] = &v
		} else {
			b.saved[k] = nil
		}
	}

	path := filepath.Join(envDir, "bin")
	if old := env[envPath]; old != "" {
		path += string(filepath.ListSeparator) + old
	}
	env[envVirtualEnv] = envDir
	env[envPath] = path
	delete(env, envPythonHome)
	return b
}

// EnvDir returns the directory the binding activated.
func (b *Binding) EnvDir() string {
	return b.envDir
}

// Release undoes the activation. It is safe to call more than once.
func (b *Binding) Release() {
	if b.released {
		return
	}
	b.released = true
	for k, v := range b.saved {
		if v == nil {
			delete(b.env, k)
		} else {
			b.env[k] = *v
		}
	}
}
