package entities

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout directory names
const (
	LayoutLib     = "lib"
	LayoutBin     = "bin"
	LayoutInclude = "include"
)

// PackageLayout is the destination tree of one packaging run
type PackageLayout struct {
	Root string
}

// NewPackageLayout returns a layout rooted at root
func NewPackageLayout(root string) PackageLayout {
	return PackageLayout{Root: root}
}

// Dir returns the absolute path of a layout subdirectory
func (l PackageLayout) Dir(name string) string {
	return filepath.Join(l.Root, name)
}

// Prepare creates the layout directories. It refuses a root that already
// has content so artifacts from an earlier run can never leak into a package.
func (l PackageLayout) Prepare() error {
	entries, err := os.ReadDir(l.Root)
	if err == nil && len(entries) > 0 {
		return fmt.Errorf("package layout %s is not empty", l.Root)
	}
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to inspect package layout: %w", err)
	}

	for _, dir := range []string{LayoutLib, LayoutBin, LayoutInclude} {
		if err := os.MkdirAll(l.Dir(dir), 0750); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// PackageContext carries the variant-specific values a packaging run
// substitutes into copy rule directories
type PackageContext struct {
	Variant       Variant
	Configuration string   // native configuration or generator build type
	SearchDirs    []string // used by the default rules when the recipe has none
	AllowMissing  bool     // rules matching nothing warn instead of failing
}

// PackageResult lists what a packaging run copied
type PackageResult struct {
	Copied  []string // layout-relative paths
	Missing []string // rules that matched nothing but were allowed to
}
