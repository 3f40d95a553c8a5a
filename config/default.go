//
// Copyright (c) SAS Institute Inc.
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
//

package config

import (
	"os"
	"path/filepath"
)

// DefaultDir returns the per-user configuration directory
func DefaultDir() string {
	profile := os.Getenv("USERPROFILE")
	if profile != "" {
		// windows
		return filepath.Join(profile, "apkseal")
	}
	home := os.Getenv("HOME")
	if home != "" {
		return filepath.Join(home, ".config", "apkseal")
	}
	return ""
}

// DefaultConfig returns the path of the configuration file read when none is
// given on the command line
func DefaultConfig() string {
	dir := DefaultDir()
	if dir != "" {
		dir = filepath.Join(dir, "apkseal.yml")
	}
	return dir
}

// Version is set at build time by the linker
var Version = "unknown"
