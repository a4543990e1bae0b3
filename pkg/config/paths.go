// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package config locates the lectern data directory and loads the layered
// configuration (flags, environment, lectern.yaml, defaults).
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// GetDataDir returns the lectern data directory.
//
// Priority:
// 1. LECTERN_DATA_DIR environment variable (if set and non-empty)
// 2. ~/.lectern (default)
//
// The returned path is always absolute. A leading ~ is expanded to the
// user's home directory.
//
// Examples:
//
//	LECTERN_DATA_DIR=/srv/lectern     -> /srv/lectern
//	LECTERN_DATA_DIR=~/books          -> /home/user/books
//	LECTERN_DATA_DIR=relative/path    -> /current/dir/relative/path
//	LECTERN_DATA_DIR not set          -> /home/user/.lectern
//
// It reads os.Getenv directly because it is needed to find the config file
// before viper is initialized.
func GetDataDir() string {
	if dataDir := os.Getenv("LECTERN_DATA_DIR"); dataDir != "" {
		return expandPath(dataDir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".lectern"
	}
	return filepath.Join(homeDir, ".lectern")
}

// GetSubDir returns a path inside the data directory.
// Example: GetSubDir("corpus") returns ~/.lectern/corpus
func GetSubDir(subdir string) string {
	return filepath.Join(GetDataDir(), subdir)
}

// expandPath expands ~ and resolves to an absolute path.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
