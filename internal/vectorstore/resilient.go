package vectorstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

const (
	quarantineDir = ".quarantine"

	// chromemMetadataFile is the per-collection file chromem-go writes first.
	chromemMetadataFile = "00000000.gob"
)

// chromem-go names collection directories by an 8-hex-digit hash.
var collectionDirPattern = regexp.MustCompile(`^[a-f0-9]{8}$`)

// openChromemDB opens the persistent chromem database at path. A collection
// directory holding documents but no metadata file, as left by an interrupted
// write, is moved to path/.quarantine and the open is retried once.
func openChromemDB(path string, compress bool, logger *zap.Logger) (*chromem.DB, error) {
	db, err := chromem.NewPersistentDB(path, compress)
	if err == nil {
		return db, nil
	}
	if !strings.Contains(err.Error(), "collection metadata file not found") {
		return nil, err
	}

	broken, scanErr := orphanedCollections(path)
	if scanErr != nil {
		logger.Error("scanning chromem collections failed", zap.Error(scanErr))
		return nil, err
	}
	if len(broken) == 0 {
		return nil, err
	}

	moved, qerr := quarantine(path, broken, logger)
	if qerr != nil {
		return nil, qerr
	}

	db, err = chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("reopening after quarantine: %w", err)
	}
	logger.Warn("chromem collections quarantined",
		zap.String("path", path),
		zap.Strings("collections", moved),
	)
	return db, nil
}

// orphanedCollections lists collection directories under path that contain
// document files but no metadata file.
func orphanedCollections(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var broken []string
	for _, entry := range entries {
		if !entry.IsDir() || !collectionDirPattern.MatchString(entry.Name()) {
			continue
		}
		dir := filepath.Join(path, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, chromemMetadataFile)); !os.IsNotExist(err) {
			continue
		}
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("reading collection %s: %w", entry.Name(), err)
		}
		for _, f := range files {
			if !f.IsDir() && strings.HasSuffix(f.Name(), ".gob") {
				broken = append(broken, entry.Name())
				break
			}
		}
	}
	return broken, nil
}

// quarantine moves the named collection directories into path/.quarantine and
// returns the ones actually moved.
func quarantine(path string, names []string, logger *zap.Logger) ([]string, error) {
	target := filepath.Join(path, quarantineDir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, fmt.Errorf("creating quarantine directory: %w", err)
	}

	var moved []string
	for _, name := range names {
		if !collectionDirPattern.MatchString(name) {
			continue
		}
		if err := os.Rename(filepath.Join(path, name), filepath.Join(target, name)); err != nil {
			logger.Error("quarantining collection failed", zap.String("collection", name), zap.Error(err))
			continue
		}
		moved = append(moved, name)
	}
	return moved, nil
}
