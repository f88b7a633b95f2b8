package lifecycle

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLockRejectsSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "active")

	first, err := acquireLock(path)
	require.NoError(t, err)
	defer first.Close()

	_, err = acquireLock(path)
	assert.Error(t, err)
}

func TestAcquireLockReleasedOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "active")

	first, err := acquireLock(path)
	require.NoError(t, err)

	s := &System{lock: first}
	s.releaseLock()

	second, err := acquireLock(path)
	require.NoError(t, err)
	defer second.Close()
}

func TestAcquireLockCreatesParentlessFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "active")

	f, err := acquireLock(path)
	require.NoError(t, err)
	defer f.Close()

	assert.FileExists(t, path)
}
