package vectorstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func mkCollection(t *testing.T, root, name string, files ...string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o600))
	}
}

func TestOrphanedCollections(t *testing.T) {
	root := t.TempDir()
	mkCollection(t, root, "aaaaaaaa", chromemMetadataFile, "0badc0de.gob") // healthy
	mkCollection(t, root, "bbbbbbbb", "0badc0de.gob")                      // orphaned
	mkCollection(t, root, "cccccccc")                                      // empty
	mkCollection(t, root, "not-a-hash", "0badc0de.gob")                    // ignored
	mkCollection(t, root, quarantineDir, "0badc0de.gob")                   // ignored

	broken, err := orphanedCollections(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"bbbbbbbb"}, broken)
}

func TestOrphanedCollections_MissingDir(t *testing.T) {
	_, err := orphanedCollections(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestQuarantine(t *testing.T) {
	root := t.TempDir()
	mkCollection(t, root, "bbbbbbbb", "0badc0de.gob")

	moved, err := quarantine(root, []string{"bbbbbbbb", "../escape"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"bbbbbbbb"}, moved)

	assert.NoDirExists(t, filepath.Join(root, "bbbbbbbb"))
	assert.FileExists(t, filepath.Join(root, quarantineDir, "bbbbbbbb", "0badc0de.gob"))
}

func TestOpenChromemDB_Empty(t *testing.T) {
	db, err := openChromemDB(t.TempDir(), false, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, db)
}
