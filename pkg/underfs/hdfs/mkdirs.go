package hdfs

import (
	"errors"
	"fmt"

	"github.com/underfs/underfs/internal/logger"
	"github.com/underfs/underfs/pkg/underfs"
)

// makeDirectoryTree creates path and every missing ancestor, one level at a
// time, each with the fixed permission mask. Returns false without touching
// the namespace when path already exists.
func (u *HdfsUnderFileSystem) makeDirectoryTree(path string) (bool, error) {
	found, err := u.client.Exists(path)
	if err != nil {
		return false, err
	}
	if found {
		logger.Debug("mkdirs: %s already exists", path)
		return false, nil
	}

	plan, err := underfs.AncestorPlan(path, u.client.Exists)
	if err != nil {
		return false, err
	}

	for _, dir := range plan {
		logger.Debug("mkdirs: creating directory %s", dir)
		if err := u.client.Mkdir(dir, Permission); err != nil {
			// A concurrent creator beating us to a level is success for
			// that level, not a failure.
			if exists, probeErr := u.client.Exists(dir); probeErr == nil && exists {
				continue
			}
			if errors.Is(err, underfs.ErrPathNotFound) {
				return false, fmt.Errorf("mkdirs %s: %w", dir, err)
			}
			return false, err
		}
	}
	return true, nil
}
