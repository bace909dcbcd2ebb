package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResolvesProductionIdentityFromEnvironment(t *testing.T) {
	t.Cleanup(reset)
	require.NoError(t, os.Setenv("ENVIRONMENT", "production"))
	t.Cleanup(func() { os.Unsetenv("ENVIRONMENT") })

	c := New(Options{WalletPath: "/wallet.json"})
	assert.Equal(t, prodAppName, c.AppName)
	assert.Equal(t, prodContractAddress, c.ContractAddress)
}

func TestNewResolvesDevIdentityByDefault(t *testing.T) {
	t.Cleanup(reset)
	os.Unsetenv("ENVIRONMENT")

	c := New(Options{WalletPath: "/wallet.json"})
	assert.Equal(t, devAppName, c.AppName)
	assert.Equal(t, devContractAddress, c.ContractAddress)
}

func TestNewDefaultsWriterDirectoryWhenUnset(t *testing.T) {
	t.Cleanup(reset)
	c := New(Options{})
	assert.NotEmpty(t, c.WriterDirectory)
}

func TestNewIgnoresLaterCalls(t *testing.T) {
	t.Cleanup(reset)
	first := New(Options{WalletPath: "/first.json"})
	second := New(Options{WalletPath: "/second.json"})
	assert.Same(t, first, second)
	assert.Equal(t, "/first.json", second.WalletPath)
}

func TestGetPanicsBeforeNew(t *testing.T) {
	t.Cleanup(reset)
	reset()
	assert.Panics(t, func() { Get() })
}
