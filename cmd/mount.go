// Copyright 2024 Google LLC
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
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/sftpfs/sftpfs/cfg"
	"github.com/sftpfs/sftpfs/internal/cachestore"
	"github.com/sftpfs/sftpfs/internal/engine"
	"github.com/sftpfs/sftpfs/internal/logger"
	"github.com/sftpfs/sftpfs/internal/remote"
	"github.com/sftpfs/sftpfs/internal/sshsession"
	"github.com/sftpfs/sftpfs/metrics"
)

// namespaceTag derives the cache-store namespace for a connection: an MD5
// digest of "user@host", hex-encoded, matching the reference client's
// md5::compute(&hostname) scheme so two mounts of different backing
// directories on the same host still share one cache namespace.
func namespaceTag(conn connection) string {
	sum := md5.Sum([]byte(conn.user + "@" + conn.host))
	return hex.EncodeToString(sum[:])
}

// runMount wires the SSH dial, the SFTP client, the Remote Adapter, the
// Cache Store, and the VFS Request Handler together, then mounts the
// result at mountPoint and blocks until it is unmounted.
func runMount(mountPoint string, conn connection, config cfg.Config) error {
	if err := logger.Init(config.Logging); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	timeout := time.Duration(config.Connection.ConnectTimeoutSecs) * time.Second
	logger.Infof("Dialing %s@%s...", conn.user, conn.host)
	sshClient, err := sshsession.Dial(conn.user, conn.host, string(config.Connection.PrivateKey), timeout)
	if err != nil {
		return fmt.Errorf("connecting to %s@%s: %w", conn.user, conn.host, err)
	}

	sftpClient, err := sshsession.NewSFTPClient(sshClient)
	if err != nil {
		sshClient.Close()
		return fmt.Errorf("starting sftp session: %w", err)
	}

	tag := namespaceTag(conn)
	store, err := cachestore.New(string(config.FileSystem.CacheDir), tag)
	if err != nil {
		return fmt.Errorf("preparing cache store: %w", err)
	}

	adapter := remote.NewSFTPAdapter(sftpClient, conn.backingDir)
	fs := engine.New(adapter, store)

	if config.Metrics.Enabled {
		handler, err := metrics.InstallPrometheusProvider()
		if err != nil {
			return fmt.Errorf("installing metrics provider: %w", err)
		}
		handle, err := metrics.NewOTelHandle()
		if err != nil {
			return fmt.Errorf("constructing metrics handle: %w", err)
		}
		fs.WithMetrics(handle)

		addr := fmt.Sprintf(":%d", config.Metrics.Port)
		logger.Infof("Serving metrics on %s/metrics", addr)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", handler)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Errorf("metrics server: %v", err)
			}
		}()
	}

	logger.Infof("Mounting %s at %s...", conn.backingDir, mountPoint)
	mfs, err := fuse.Mount(mountPoint, fuseutil.NewFileSystemServer(fs), getFuseMountConfig(tag, &config))
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	return mfs.Join(context.Background())
}

func getFuseMountConfig(tag string, config *cfg.Config) *fuse.MountConfig {
	options := map[string]string{
		"auto_unmount":        "",
		"default_permissions": "",
	}

	mountCfg := &fuse.MountConfig{
		FSName:     "sftpfs",
		Subtype:    "sftpfs",
		VolumeName: tag,
		Options:    options,
	}

	if config.Logging.Severity.Rank() <= cfg.ErrorLogSeverity.Rank() {
		mountCfg.ErrorLogger = logger.NewLegacyLogger(cfg.ErrorLogSeverity, "fuse: ")
	}
	if config.Logging.Severity.Rank() <= cfg.TraceLogSeverity.Rank() {
		mountCfg.DebugLogger = logger.NewLegacyLogger(cfg.TraceLogSeverity, "fuse_debug: ")
	}
	return mountCfg
}
