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
	"testing"

	"github.com/stretchr/testify/assert"
)

func validLogRotateConfig() LogRotateLoggingConfig {
	return LogRotateLoggingConfig{
		BackupFileCount: 0,
		Compress:        false,
		MaxFileSizeMb:   1,
	}
}

func TestValidateConfig(t *testing.T) {
	testCases := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: &Config{
				Connection: ConnectionConfig{Spec: "user@host:/data"},
				Logging:    LoggingConfig{Format: "text", LogRotate: validLogRotateConfig()},
			},
			wantErr: false,
		},
		{
			name: "bad log rotate config",
			config: &Config{
				Connection: ConnectionConfig{Spec: "user@host:/data"},
				Logging:    LoggingConfig{Format: "text", LogRotate: LogRotateLoggingConfig{MaxFileSizeMb: 0}},
			},
			wantErr: true,
		},
		{
			name: "bad log format",
			config: &Config{
				Connection: ConnectionConfig{Spec: "user@host:/data"},
				Logging:    LoggingConfig{Format: "xml", LogRotate: validLogRotateConfig()},
			},
			wantErr: true,
		},
		{
			name: "missing connection spec",
			config: &Config{
				Logging: LoggingConfig{Format: "text", LogRotate: validLogRotateConfig()},
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateConfig(tc.config)

			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
