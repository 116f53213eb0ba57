package gateways

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ochairo/alembic/internal/domain/entities"
)

// ArtifactFinder locates files in package layouts and publish output
type ArtifactFinder struct{}

// NewArtifactFinder creates a new artifact finder
func NewArtifactFinder() *ArtifactFinder {
	return &ArtifactFinder{}
}

// DynamicLibraries returns the signable dynamic libraries of a layout
func (f *ArtifactFinder) DynamicLibraries(layout entities.PackageLayout) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(layout.Dir(entities.LayoutBin), "*.dll"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob dynamic libraries: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// CollectLibs lists the library names a consumer links against
func (f *ArtifactFinder) CollectLibs(layout entities.PackageLayout) ([]string, error) {
	entries, err := os.ReadDir(layout.Dir(entities.LayoutLib))
	if err != nil {
		return nil, fmt.Errorf("failed to read lib dir: %w", err)
	}

	seen := make(map[string]bool)
	var libs []string
	for _, e := range entries {
		name := e.Name()
		var lib string
		switch ext := filepath.Ext(name); ext {
		case ".lib":
			lib = strings.TrimSuffix(name, ext)
		case ".a", ".so", ".dylib":
			lib = strings.TrimPrefix(strings.TrimSuffix(name, ext), "lib")
		default:
			continue
		}
		if lib != "" && !seen[lib] {
			seen[lib] = true
			libs = append(libs, lib)
		}
	}
	sort.Strings(libs)
	return libs, nil
}

// FindPublished returns the archives published for a recipe version along
// with their sidecar files
// Finds: .tar.gz, .sha256, .sha512, .sbom.json, .asc
func (f *ArtifactFinder) FindPublished(outputDir, name, version string) ([]string, error) {
	if _, err := os.Stat(outputDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("output directory does not exist: %s", outputDir)
	}

	var artifacts []string
	for _, suffix := range []string{"", ".sha256", ".sha512", ".sbom.json", ".asc"} {
		pattern := fmt.Sprintf("%s-%s-*.tar.gz%s", name, version, suffix)
		matches, err := filepath.Glob(filepath.Join(outputDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to glob pattern %s: %w", pattern, err)
		}
		artifacts = append(artifacts, matches...)
	}
	sort.Strings(artifacts)
	return artifacts, nil
}
