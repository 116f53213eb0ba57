package gateways

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"github.com/ochairo/alembic/internal/domain/entities"
	"github.com/ochairo/alembic/internal/domain/interfaces"
)

// PatchApplier applies git-style unified diffs to a source tree in place
type PatchApplier struct {
	logger interfaces.Logger
}

// NewPatchApplier creates a new patch applier
func NewPatchApplier(logger interfaces.Logger) *PatchApplier {
	return &PatchApplier{logger: interfaces.OrNoOp(logger)}
}

// fileChange is the computed result of one file diff
type fileChange struct {
	path    string
	content []byte
	mode    os.FileMode
	remove  bool
}

// ApplyPatchSet applies every entry whose predicate matches the platform, in
// order. Patch files are resolved relative to patchDir. The first patch that
// does not apply aborts the set with a PatchConflict error.
func (a *PatchApplier) ApplyPatchSet(ctx context.Context, patches []entities.PatchEntry, patchDir, sourceRoot string, platform entities.Platform) ([]string, error) {
	var applied []string
	for _, entry := range patches {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		if !entry.Matches(platform) {
			a.logger.Debug("Skipping patch", interfaces.F("patch", entry.File), interfaces.F("platform", platform.String()))
			continue
		}

		patchPath := entry.File
		if !filepath.IsAbs(patchPath) {
			patchPath = filepath.Join(patchDir, filepath.FromSlash(entry.File))
		}
		if err := a.ApplyPatch(patchPath, sourceRoot); err != nil {
			return applied, err
		}
		a.logger.Info("Applied patch", interfaces.F("patch", entry.File))
		applied = append(applied, entry.File)
	}
	return applied, nil
}

// ApplyPatch applies one patch file. All file diffs are computed before any
// file is written, so a conflicting patch leaves the tree untouched.
func (a *PatchApplier) ApplyPatch(patchPath, sourceRoot string) error {
	//nolint:gosec // G304: patch path comes from the recipe
	data, err := os.ReadFile(patchPath)
	if err != nil {
		return conflict(patchPath, fmt.Errorf("failed to read patch: %w", err))
	}

	files, _, err := gitdiff.Parse(bytes.NewReader(data))
	if err != nil {
		return conflict(patchPath, fmt.Errorf("failed to parse patch: %w", err))
	}
	if len(files) == 0 {
		return conflict(patchPath, fmt.Errorf("patch contains no file changes"))
	}

	changes := make([]fileChange, 0, len(files))
	for _, f := range files {
		change, err := computeChange(f, sourceRoot)
		if err != nil {
			return conflict(patchPath, err)
		}
		changes = append(changes, change)
	}

	for _, c := range changes {
		if err := writeChange(c); err != nil {
			return conflict(patchPath, err)
		}
	}
	return nil
}

func computeChange(f *gitdiff.File, sourceRoot string) (fileChange, error) {
	name := f.NewName
	if f.IsDelete {
		name = f.OldName
	}
	target, err := resolveInRoot(sourceRoot, name)
	if err != nil {
		return fileChange{}, err
	}

	var original []byte
	mode := os.FileMode(0644)
	info, statErr := os.Stat(target)
	switch {
	case f.IsNew && statErr == nil:
		return fileChange{}, fmt.Errorf("%s: file already exists", name)
	case f.IsNew:
	case statErr != nil:
		return fileChange{}, fmt.Errorf("%s: %w", name, statErr)
	default:
		mode = info.Mode().Perm()
		//nolint:gosec // G304: target is resolved inside the source root
		original, err = os.ReadFile(target)
		if err != nil {
			return fileChange{}, fmt.Errorf("%s: %w", name, err)
		}
	}
	if f.IsRename || f.IsCopy {
		return fileChange{}, fmt.Errorf("%s: renames and copies are not supported", name)
	}
	if f.NewMode != 0 {
		mode = f.NewMode.Perm()
	}

	var out bytes.Buffer
	if err := gitdiff.Apply(&out, bytes.NewReader(original), f); err != nil {
		return fileChange{}, fmt.Errorf("%s: %w", name, err)
	}

	return fileChange{path: target, content: out.Bytes(), mode: mode, remove: f.IsDelete}, nil
}

func writeChange(c fileChange) error {
	if c.remove {
		return os.Remove(c.path)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0750); err != nil {
		return err
	}
	return os.WriteFile(c.path, c.content, c.mode)
}

// resolveInRoot joins a patch path to the root and rejects escapes
func resolveInRoot(root, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("patch entry has no file name")
	}
	target := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: path escapes source root", name)
	}
	return target, nil
}

func conflict(patchPath string, err error) error {
	return entities.NewPipelineError(entities.ErrPatchConflict, entities.StagePatch, filepath.Base(patchPath), err)
}
