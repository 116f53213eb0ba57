package services

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ochairo/alembic/internal/domain/entities"
	"github.com/ochairo/alembic/internal/domain/interfaces"
)

// sbomToolVersion is reported in generated SBOM metadata
const sbomToolVersion = "1.0.0"

// ReleaseArtifactsService writes checksum and SBOM files next to a package archive
type ReleaseArtifactsService struct {
	logger interfaces.Logger
	now    func() time.Time
}

// NewReleaseArtifactsService creates a new release artifacts service
func NewReleaseArtifactsService(logger interfaces.Logger, now func() time.Time) *ReleaseArtifactsService {
	if now == nil {
		now = time.Now
	}
	return &ReleaseArtifactsService{logger: interfaces.OrNoOp(logger), now: now}
}

// GenerateSHA256 writes "<hash>  <name>" to filePath.sha256
func (s *ReleaseArtifactsService) GenerateSHA256(filePath string) (string, error) {
	return s.writeChecksum(filePath, ".sha256", sha256.New)
}

// GenerateSHA512 writes "<hash>  <name>" to filePath.sha512
func (s *ReleaseArtifactsService) GenerateSHA512(filePath string) (string, error) {
	return s.writeChecksum(filePath, ".sha512", sha512.New)
}

func (s *ReleaseArtifactsService) writeChecksum(filePath, ext string, newHash func() hash.Hash) (string, error) {
	sum, err := hashFile(filePath, newHash)
	if err != nil {
		return "", err
	}

	checksumPath := filePath + ext
	content := fmt.Sprintf("%s  %s\n", sum, filepath.Base(filePath))
	if err := os.WriteFile(checksumPath, []byte(content), 0600); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", strings.TrimPrefix(ext, "."), err)
	}

	s.logger.Debug("checksum written", interfaces.F("path", checksumPath))
	return checksumPath, nil
}

// BuildSBOM describes every file of a package layout
func (s *ReleaseArtifactsService) BuildSBOM(recipe *entities.Recipe, layoutRoot string) (*entities.SBOM, error) {
	var components []entities.Component
	err := filepath.WalkDir(layoutRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(layoutRoot, path)
		if err != nil {
			return err
		}
		sum, err := hashFile(path, sha256.New)
		if err != nil {
			return err
		}

		componentType := "file"
		if strings.HasPrefix(filepath.ToSlash(rel), entities.LayoutLib+"/") || strings.HasPrefix(filepath.ToSlash(rel), entities.LayoutBin+"/") {
			componentType = "library"
		}
		components = append(components, entities.Component{
			Type:    componentType,
			Name:    filepath.ToSlash(rel),
			Version: recipe.Version,
			Hashes:  []entities.Hash{{Algorithm: "SHA-256", Value: sum}},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk package layout: %w", err)
	}

	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	return &entities.SBOM{
		BOMFormat:   "CycloneDX",
		SpecVersion: "1.5",
		Version:     1,
		Metadata: entities.Metadata{
			Timestamp: s.now().UTC(),
			Tools:     []entities.Tool{{Name: "alembic", Version: sbomToolVersion}},
			Component: entities.Component{Type: "library", Name: recipe.Name, Version: recipe.Version},
		},
		Components: components,
	}, nil
}

// GenerateSBOM writes the layout SBOM to archivePath.sbom.json
func (s *ReleaseArtifactsService) GenerateSBOM(recipe *entities.Recipe, layoutRoot, archivePath string) (string, error) {
	sbom, err := s.BuildSBOM(recipe, layoutRoot)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(sbom, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal SBOM: %w", err)
	}

	sbomPath := archivePath + ".sbom.json"
	if err := os.WriteFile(sbomPath, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write SBOM file: %w", err)
	}
	return sbomPath, nil
}

func hashFile(filePath string, newHash func() hash.Hash) (string, error) {
	//nolint:gosec // G304: filePath is a package artifact produced by this run
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	h := newHash()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
