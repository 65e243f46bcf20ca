package sshsession

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDial_MissingPrivateKeyFile(t *testing.T) {
	_, err := Dial("bob", "example.com", filepath.Join(t.TempDir(), "does-not-exist"), time.Second)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "reading private key")
}

func TestDial_UnparseablePrivateKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, []byte("not a key"), 0o600))

	_, err := Dial("bob", "example.com", keyPath, time.Second)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parsing private key")
}
