package gateways

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ochairo/alembic/internal/domain/interfaces"
)

// SourceStager copies a pristine source tree into a per-variant working
// tree, so patches and builds never touch the pristine copy
type SourceStager struct {
	logger interfaces.Logger
}

// NewSourceStager creates a new source stager
func NewSourceStager(logger interfaces.Logger) *SourceStager {
	return &SourceStager{logger: interfaces.OrNoOp(logger)}
}

// Stage copies pristine into dest. dest must be empty or absent. Symlinks
// are recreated as links.
func (s *SourceStager) Stage(ctx context.Context, pristine, dest string) error {
	info, err := os.Stat(pristine)
	if err != nil {
		return fmt.Errorf("source tree %s: %w", pristine, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source tree %s is not a directory", pristine)
	}
	if entries, err := os.ReadDir(dest); err == nil && len(entries) > 0 {
		return fmt.Errorf("working tree %s is not empty", dest)
	}

	files := 0
	err = filepath.WalkDir(pristine, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(pristine, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0750)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("failed to read symlink %s: %w", rel, err)
			}
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			files++
			return copyFile(path, target)
		default:
			s.logger.Debug("Skipping special file", interfaces.F("path", rel))
			return nil
		}
	})
	if err != nil {
		return fmt.Errorf("failed to stage source tree: %w", err)
	}

	s.logger.Debug("Staged source tree", interfaces.F("from", pristine), interfaces.F("to", dest), interfaces.F("files", files))
	return nil
}
