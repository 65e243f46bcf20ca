// Copyright 2024 Google Inc. All Rights Reserved.
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

package cmd

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sftpfs/sftpfs/cfg"
	"github.com/sftpfs/sftpfs/internal/util"
)

// connection is the parsed form of a "user@host:/backing/dir" argument.
type connection struct {
	user       string
	host       string
	backingDir string
}

func parseConnectionSpec(spec string) (connection, error) {
	at := strings.Index(spec, "@")
	colon := strings.Index(spec, ":")
	if at < 0 || colon < at {
		return connection{}, fmt.Errorf("connection spec %q must look like user@host:/backing/dir", spec)
	}
	return connection{
		user:       spec[:at],
		host:       spec[at+1 : colon],
		backingDir: spec[colon+1:],
	}, nil
}

// NewRootCmd builds the root command. runMount is invoked with the fully
// resolved configuration once flags, config file, and positional arguments
// have all been parsed; tests substitute their own runMount to observe the
// resolved cfg.Config without actually mounting anything.
func NewRootCmd(runMount func(mountPoint string, conn connection, config cfg.Config) error) (*cobra.Command, error) {
	viper.Reset()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "sftpfs [flags] <mount-point> <user@host:backing-directory>",
		Short: "Mount a remote directory tree reached over SFTP as a local file system",
		Long: `sftpfs is a FUSE adapter that mounts a remote directory tree reached
over SFTP-over-SSH as a local file system, backed by a local on-disk cache.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				resolved, err := util.GetResolvedPath(cfgFile)
				if err != nil {
					return fmt.Errorf("resolving config file path: %w", err)
				}
				viper.SetConfigFile(resolved)
				viper.SetConfigType("yaml")
				if err := viper.ReadInConfig(); err != nil {
					return fmt.Errorf("reading config file: %w", err)
				}
			}

			config := cfg.Config{Logging: cfg.GetDefaultLoggingConfig()}
			decodeYAMLTags := func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }
			if err := viper.Unmarshal(&config, viper.DecodeHook(cfg.DecodeHook()), decodeYAMLTags); err != nil {
				return fmt.Errorf("unmarshalling config: %w", err)
			}

			mountPoint, err := util.GetResolvedPath(args[0])
			if err != nil {
				return fmt.Errorf("resolving mount point: %w", err)
			}

			conn, err := parseConnectionSpec(args[1])
			if err != nil {
				return err
			}
			config.Connection.Spec = args[1]

			if err := cfg.ValidateConfig(&config); err != nil {
				return err
			}

			return runMount(mountPoint, conn, config)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file")
	if err := cfg.BindFlags(cmd.PersistentFlags()); err != nil {
		return nil, err
	}
	return cmd, nil
}

var rootCmd *cobra.Command

func init() {
	var err error
	rootCmd, err = NewRootCmd(runMount)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Execute is the CLI entry point invoked from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, path.Base(os.Args[0])+": "+err.Error())
		os.Exit(1)
	}
}
