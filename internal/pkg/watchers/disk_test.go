package watchers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreeBytesReportsNonZeroForExistingPath(t *testing.T) {
	free, err := freeBytes("/tmp")
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))
}

func TestFreeBytesErrorsForMissingPath(t *testing.T) {
	_, err := freeBytes("/this/path/does/not/exist/at/all")
	assert.Error(t, err)
}
