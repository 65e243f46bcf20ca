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

package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the root of the mount process's configuration, populated from
// command-line flags and optionally overridden by a YAML config file.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`

	FileSystem FileSystemConfig `yaml:"file-system"`

	Logging LoggingConfig `yaml:"logging"`

	Metrics MetricsConfig `yaml:"metrics"`
}

// ConnectionConfig describes the remote side of the mount: the
// user@host:/backing/dir spec, and how to authenticate to it.
type ConnectionConfig struct {
	Spec string `yaml:"spec"`

	PrivateKey ResolvedPath `yaml:"private-key"`

	ConnectTimeoutSecs int `yaml:"connect-timeout-secs"`
}

// FileSystemConfig describes local staging. Uid, Gid, DirMode and FileMode
// are parsed but not passed to the engine: attribute projection always
// falls back to the process owner and to modes 0755/0644.
type FileSystemConfig struct {
	CacheDir ResolvedPath `yaml:"cache-dir"`

	Uid int `yaml:"uid"`

	Gid int `yaml:"gid"`

	DirMode Octal `yaml:"dir-mode"`

	FileMode Octal `yaml:"file-mode"`
}

// LoggingConfig controls the structured logger's severity, format, and
// optional rotating file destination.
type LoggingConfig struct {
	Severity LogSeverity `yaml:"severity"`

	Format string `yaml:"format"`

	FilePath ResolvedPath `yaml:"file-path"`

	LogRotate LogRotateLoggingConfig `yaml:"log-rotate"`
}

// LogRotateLoggingConfig mirrors lumberjack.Logger's rotation knobs.
type LogRotateLoggingConfig struct {
	MaxFileSizeMb int `yaml:"max-file-size-mb"`

	BackupFileCount int `yaml:"backup-file-count"`

	Compress bool `yaml:"compress"`
}

// MetricsConfig controls whether an OpenTelemetry/Prometheus metrics
// endpoint is served alongside the mount.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	Port int `yaml:"port"`
}

// BindFlags registers every flag this config understands on flagSet and
// binds each to its viper key, so a later viper.Unmarshal populates Config
// from whichever source (flag default, flag override, or config file) wins.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("private-key", "", "", "Path to the SSH private key used to authenticate to the remote host.")
	if err = viper.BindPFlag("connection.private-key", flagSet.Lookup("private-key")); err != nil {
		return err
	}

	flagSet.IntP("connect-timeout-secs", "", 30, "Timeout, in seconds, for the initial SSH handshake.")
	if err = viper.BindPFlag("connection.connect-timeout-secs", flagSet.Lookup("connect-timeout-secs")); err != nil {
		return err
	}

	flagSet.StringP("cache-dir", "", "", "Directory under which remote files are staged locally.")
	if err = viper.BindPFlag("file-system.cache-dir", flagSet.Lookup("cache-dir")); err != nil {
		return err
	}

	flagSet.IntP("uid", "", -1, "Owner uid setting. Parsed but not applied: entries whose remote owner is unknown are reported as owned by the process owner.")
	if err = viper.BindPFlag("file-system.uid", flagSet.Lookup("uid")); err != nil {
		return err
	}

	flagSet.IntP("gid", "", -1, "Owner gid setting. Parsed but not applied: entries whose remote group is unknown are reported with the process's group.")
	if err = viper.BindPFlag("file-system.gid", flagSet.Lookup("gid")); err != nil {
		return err
	}

	flagSet.IntP("dir-mode", "", 0755, "Directory permission bits setting. Parsed but not applied: directories whose remote mode is unknown are reported as 0755.")
	if err = viper.BindPFlag("file-system.dir-mode", flagSet.Lookup("dir-mode")); err != nil {
		return err
	}

	flagSet.IntP("file-mode", "", 0644, "File permission bits setting. Parsed but not applied: files whose remote mode is unknown are reported as 0644.")
	if err = viper.BindPFlag("file-system.file-mode", flagSet.Lookup("file-mode")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", string(InfoLogSeverity), "Minimum severity logged: TRACE, DEBUG, INFO, WARNING, ERROR, or OFF.")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "text", "Log output format: text or json.")
	if err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.StringP("log-file", "", "", "Path to a log file. Logs go to stderr when unset.")
	if err = viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	flagSet.BoolP("metrics", "", false, "Serve Prometheus metrics alongside the mount.")
	if err = viper.BindPFlag("metrics.enabled", flagSet.Lookup("metrics")); err != nil {
		return err
	}

	flagSet.IntP("metrics-port", "", 9100, "Port the metrics endpoint listens on.")
	if err = viper.BindPFlag("metrics.port", flagSet.Lookup("metrics-port")); err != nil {
		return err
	}

	return nil
}
