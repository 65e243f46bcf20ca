// Copyright 2023 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// ParentProcessDirEnv names the environment variable a parent process sets
// to tell a spawned child which directory relative config paths should
// resolve against, in place of the child's own working directory.
const ParentProcessDirEnv = "SFTPFS_PARENT_PROCESS_DIR"

// GetResolvedPath resolves filePath to an absolute path: "~" expands to the
// user's home directory, an empty path stays empty, and an already-absolute
// path is returned unchanged. Any other relative path is resolved against
// ParentProcessDirEnv when set, and the current working directory otherwise.
func GetResolvedPath(filePath string) (string, error) {
	if filePath == "" {
		return "", nil
	}

	if strings.HasPrefix(filePath, "~/") || filePath == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(filePath, "~")), nil
	}

	if filepath.IsAbs(filePath) {
		return filePath, nil
	}

	base := os.Getenv(ParentProcessDirEnv)
	if base == "" {
		var err error
		base, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(base, filePath), nil
}

// IsolateContextFromParentContext returns a context that inherits no
// deadline or cancellation from parent, so work started under parent (such
// as a flush triggered by a request whose context is about to be torn
// down) can continue to completion.
func IsolateContextFromParentContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}
