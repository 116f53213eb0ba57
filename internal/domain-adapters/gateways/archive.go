package gateways

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ochairo/alembic/internal/domain/interfaces"
)

// Archiver writes and reads gzipped tarballs
type Archiver struct {
	logger interfaces.Logger
}

// NewArchiver creates a new archiver
func NewArchiver(logger interfaces.Logger) *Archiver {
	return &Archiver{logger: interfaces.OrNoOp(logger)}
}

// CreateTarball archives sourceDir into tarballPath. Entry names are
// relative to sourceDir and symlinks are stored as links.
func (a *Archiver) CreateTarball(sourceDir, tarballPath string) (err error) {
	if err := os.MkdirAll(filepath.Dir(tarballPath), 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	//nolint:gosec // G304: tarballPath is constructed for package output
	file, err := os.Create(tarballPath)
	if err != nil {
		return fmt.Errorf("failed to create tarball file: %w", err)
	}
	gzipWriter := gzip.NewWriter(file)
	tarWriter := tar.NewWriter(gzipWriter)
	defer func() {
		err = errors.Join(err, tarWriter.Close(), gzipWriter.Close(), file.Close())
	}()

	return filepath.Walk(sourceDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(sourceDir, p)
		if err != nil {
			return fmt.Errorf("failed to get relative path: %w", err)
		}
		if relPath == "." {
			return nil
		}

		var linkTarget string
		if info.Mode()&os.ModeSymlink != 0 {
			linkTarget, err = os.Readlink(p)
			if err != nil {
				a.logger.Warn("Skipping unreadable symlink", interfaces.F("path", p), interfaces.Err(err))
				return nil
			}
		}

		header, err := tar.FileInfoHeader(info, linkTarget)
		if err != nil {
			return fmt.Errorf("failed to create tar header: %w", err)
		}
		header.Name = filepath.ToSlash(relPath)
		if info.IsDir() {
			header.Name += "/"
		}

		if err := tarWriter.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write tar header: %w", err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		//nolint:gosec // G304: path comes from walking the layout
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("failed to open file: %w", err)
		}
		_, err = io.Copy(tarWriter, f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("failed to write file to tar: %w", err)
		}
		return nil
	})
}

// ExtractTarball unpacks a gzipped tarball into destDir, dropping the
// first stripComponents path elements of every entry
func (a *Archiver) ExtractTarball(r io.Reader, destDir string, stripComponents int) error {
	gzipReader, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	//nolint:errcheck // Defer close on reader
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar entry: %w", err)
		}

		name := stripPath(header.Name, stripComponents)
		if name == "" {
			continue
		}
		target, err := resolveInRoot(destDir, name)
		if err == nil {
			err = checkNoSymlinkParents(destDir, name)
		}
		if err != nil {
			return fmt.Errorf("unsafe archive entry %s: %w", header.Name, err)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0750); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			if err := writeEntry(tarReader, target, os.FileMode(header.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := checkLinkInRoot(destDir, target, header.Linkname); err != nil {
				return fmt.Errorf("unsafe archive entry %s: %w", header.Name, err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("failed to create symlink: %w", err)
			}
		default:
			a.logger.Debug("Skipping archive entry", interfaces.F("name", header.Name), interfaces.F("type", header.Typeflag))
		}
	}
}

// checkNoSymlinkParents fails when an already extracted directory on the
// way to name is a symlink, so later entries cannot write through it.
func checkNoSymlinkParents(root, name string) error {
	parts := strings.Split(name, "/")
	cur := root
	for _, part := range parts[:len(parts)-1] {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%s: path goes through symlink %s", name, part)
		}
	}
	return nil
}

func checkLinkInRoot(root, target, linkname string) error {
	if linkname == "" || path.IsAbs(linkname) || filepath.IsAbs(linkname) {
		return fmt.Errorf("symlink target %q must be relative", linkname)
	}
	resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(linkname))
	rel, err := filepath.Rel(filepath.Clean(root), resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("symlink target %q escapes destination", linkname)
	}
	return nil
}

func writeEntry(r io.Reader, target string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if perm == 0 {
		perm = 0600
	}
	//nolint:gosec // G304: target was checked by resolveInRoot
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	//nolint:gosec // G110: source archives are checksum-verified before extraction
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to extract file: %w", err)
	}
	return f.Close()
}

func stripPath(name string, n int) string {
	parts := strings.Split(strings.Trim(path.Clean(name), "/"), "/")
	if n >= len(parts) {
		return ""
	}
	return path.Join(parts[n:]...)
}
