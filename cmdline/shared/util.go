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

package shared

import (
	"errors"
	"fmt"
	"os"

	"github.com/sassoftware/apkseal/config"
)

// InitConfig reads the configuration file named by --config. Without
// --config the default file is used if it exists, otherwise built-in
// defaults apply.
func InitConfig() error {
	if CurrentConfig != nil {
		return nil
	}
	usedDefault := false
	path := ArgConfig
	if path == "" {
		path = config.DefaultConfig()
		usedDefault = true
	}
	if path == "" {
		CurrentConfig = new(config.Config)
		return nil
	}
	cfg, err := config.ReadFile(path)
	if err != nil {
		if usedDefault && errors.Is(err, os.ErrNotExist) {
			CurrentConfig = new(config.Config)
			return nil
		}
		return err
	}
	CurrentConfig = cfg
	return nil
}

// Fail prints err and exits with a status distinct from usage errors
func Fail(err error) error {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(70)
	}
	return err
}
