// Package sshsession assembles the SSH+SFTP session this engine treats as an
// opaque session factory: it is responsible only for the handshake and
// authentication, never for filesystem semantics.
package sshsession

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Dial opens an SSH connection to host as user, authenticating with the
// private key found at privateKeyPath. Host key verification is
// intentionally not performed: the spec names no verification strategy, and
// the reference client this engine follows performs none either.
func Dial(user, host, privateKeyPath string, timeout time.Duration) (*ssh.Client, error) {
	key, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key %q: %w", privateKeyPath, err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parsing private key %q: %w", privateKeyPath, err)
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(host, "22")
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return client, nil
}

// NewSFTPClient wraps an established SSH connection in an SFTP client.
func NewSFTPClient(conn *ssh.Client) (*sftp.Client, error) {
	client, err := sftp.NewClient(conn)
	if err != nil {
		return nil, fmt.Errorf("starting sftp session: %w", err)
	}
	return client, nil
}
