package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromWalletFileIsStable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"kty":"RSA"}`), 0o600))

	id1, err := FromWalletFile(path)
	require.NoError(t, err)
	id2, err := FromWalletFile(path)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.NotEmpty(t, id1)
}

func TestFromWalletFileRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(path, []byte{}, 0o600))

	_, err := FromWalletFile(path)
	assert.Error(t, err)
}

func TestFromWalletFileErrorsOnMissingFile(t *testing.T) {
	_, err := FromWalletFile("/does/not/exist")
	assert.Error(t, err)
}
