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

// Package logger provides the structured logger used throughout the mount
// process: a slog.Logger selectable between a human-readable text format and
// a JSON format, with five severities (TRACE below slog's own Debug, through
// ERROR) and optional log-rotation to a file.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"sync"

	"github.com/sftpfs/sftpfs/cfg"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Custom slog levels. slog only defines Debug/Info/Warn/Error; TRACE sits
// below Debug and OFF sits above Error so that it never matches a record.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

var severityToLevel = map[cfg.LogSeverity]slog.Level{
	cfg.TraceLogSeverity:   LevelTrace,
	cfg.DebugLogSeverity:   LevelDebug,
	cfg.InfoLogSeverity:    LevelInfo,
	cfg.WarningLogSeverity: LevelWarn,
	cfg.ErrorLogSeverity:   LevelError,
	cfg.OffLogSeverity:     LevelOff,
}

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
}

type loggerFactory struct {
	mu        sync.Mutex
	format    string
	levelVar  *slog.LevelVar
	rotator   *lumberjack.Logger
	sysWriter io.Writer
}

func (f *loggerFactory) writer() io.Writer {
	if f.rotator != nil {
		return f.rotator
	}
	if f.sysWriter != nil {
		return f.sysWriter
	}
	return os.Stderr
}

func (f *loggerFactory) createHandler(prefix string) slog.Handler {
	replace := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.LevelKey {
			level := a.Value.Any().(slog.Level)
			name, ok := levelNames[level]
			if !ok {
				name = level.String()
			}
			a.Value = slog.StringValue(name)
			a.Key = "severity"
		}
		if a.Key == slog.MessageKey && prefix != "" {
			a.Value = slog.StringValue(prefix + a.Value.String())
		}
		return a
	}
	opts := &slog.HandlerOptions{Level: f.levelVar, ReplaceAttr: replace}
	if f.format == "json" {
		return slog.NewJSONHandler(f.writer(), opts)
	}
	return slog.NewTextHandler(f.writer(), opts)
}

var (
	defaultLoggerFactory = &loggerFactory{
		format:   "json",
		levelVar: func() *slog.LevelVar { v := new(slog.LevelVar); v.Set(LevelInfo); return v }(),
	}
	defaultLogger = slog.New(defaultLoggerFactory.createHandler(""))
)

// Init configures the package-level logger from the mount's LoggingConfig.
func Init(c cfg.LoggingConfig) error {
	defaultLoggerFactory.mu.Lock()
	defer defaultLoggerFactory.mu.Unlock()

	format := c.Format
	if format == "" {
		format = "json"
	}
	defaultLoggerFactory.format = format

	level, ok := severityToLevel[c.Severity]
	if !ok {
		level = LevelInfo
	}
	defaultLoggerFactory.levelVar.Set(level)

	if c.FilePath != "" {
		defaultLoggerFactory.rotator = &lumberjack.Logger{
			Filename:   string(c.FilePath),
			MaxSize:    c.LogRotate.MaxFileSizeMb,
			MaxBackups: c.LogRotate.BackupFileCount,
			Compress:   c.LogRotate.Compress,
		}
	}

	defaultLogger = slog.New(defaultLoggerFactory.createHandler(""))
	return nil
}

// NewLegacyLogger adapts the structured logger to the *log.Logger shape that
// fuse.MountConfig's ErrorLogger/DebugLogger fields expect.
func NewLegacyLogger(severity cfg.LogSeverity, prefix string) *log.Logger {
	level, ok := severityToLevel[severity]
	if !ok {
		level = LevelInfo
	}
	factory := &loggerFactory{
		format:   defaultLoggerFactory.format,
		levelVar: func() *slog.LevelVar { v := new(slog.LevelVar); v.Set(level); return v }(),
		rotator:  defaultLoggerFactory.rotator,
	}
	return slog.NewLogLogger(factory.createHandler(prefix), level)
}

func log_(ctx context.Context, level slog.Level, format string, v ...any) {
	defaultLogger.Log(ctx, level, fmt.Sprintf(format, v...))
}

func Tracef(format string, v ...any) { log_(context.Background(), LevelTrace, format, v...) }
func Debugf(format string, v ...any) { log_(context.Background(), LevelDebug, format, v...) }
func Infof(format string, v ...any)  { log_(context.Background(), LevelInfo, format, v...) }
func Warnf(format string, v ...any)  { log_(context.Background(), LevelWarn, format, v...) }
func Errorf(format string, v ...any) { log_(context.Background(), LevelError, format, v...) }
