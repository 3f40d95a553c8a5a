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

// Package shared holds the root command and the state common to all
// subcommands
package shared

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sassoftware/apkseal/config"
	"github.com/sassoftware/apkseal/internal/logging"
)

var (
	ArgConfig     string
	CurrentConfig *config.Config
	argVersion    bool
	argLogLevel   string
)

var RootCmd = &cobra.Command{
	Use:               "apkseal",
	Short:             "Sign Android packages",
	PersistentPreRunE: setup,
	RunE:              bailUnlessVersion,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&ArgConfig, "config", "c", "", "Configuration file")
	RootCmd.PersistentFlags().StringVar(&argLogLevel, "log-level", "", "Log level, overriding the configuration file")
	RootCmd.PersistentFlags().BoolVar(&argVersion, "version", false, "Show version and exit")
}

func setup(cmd *cobra.Command, args []string) error {
	if argVersion {
		fmt.Printf("apkseal version %s\n", config.Version)
		os.Exit(0)
	}
	if err := InitConfig(); err != nil {
		return err
	}
	level := CurrentConfig.Logging.Level
	if argLogLevel != "" {
		level = argLogLevel
	}
	return logging.Setup(level, CurrentConfig.Logging.File)
}

func bailUnlessVersion(cmd *cobra.Command, args []string) error {
	if !argVersion {
		return errors.New("expected a command")
	}
	return nil
}

func Main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
