package gateways

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ochairo/alembic/internal/domain/entities"
	"github.com/ochairo/alembic/internal/domain/interfaces"
	"github.com/ochairo/alembic/internal/domain/services"
)

// Packager copies build outputs into a package layout. Copying is additive:
// nothing already in the layout is removed.
type Packager struct {
	logger interfaces.Logger
}

// NewPackager creates a new packager
func NewPackager(logger interfaces.Logger) *Packager {
	return &Packager{logger: interfaces.OrNoOp(logger)}
}

// DefaultRules returns the platform's standard library rules, used when no
// recipe rule applies to the variant
func DefaultRules(os string, dirs []string) []entities.CopyRule {
	if strings.EqualFold(os, "Windows") {
		return []entities.CopyRule{
			{Patterns: []string{"*.lib"}, Dirs: dirs, Dst: entities.LayoutLib},
			{Patterns: []string{"*.dll"}, Dirs: dirs, Dst: entities.LayoutBin},
			{Patterns: []string{"*.pdb"}, Dirs: dirs, Dst: entities.LayoutBin, Optional: true},
		}
	}
	return []entities.CopyRule{
		{Patterns: []string{"*.a"}, Dirs: dirs, Dst: entities.LayoutLib},
		{Patterns: []string{"*.so", "*.so.*", "*.dylib"}, Dirs: dirs, Dst: entities.LayoutLib, Optional: true},
	}
}

// Package copies libraries, dynamic libraries, debug symbols and headers
// from buildRoot into the layout. A rule that matches no files fails the
// run with ErrMissingArtifact unless it is optional or pc.AllowMissing is set.
func (p *Packager) Package(ctx context.Context, pkg entities.RecipePackage, buildRoot string, layout entities.PackageLayout, pc entities.PackageContext) (*entities.PackageResult, error) {
	result := &entities.PackageResult{}
	var missing []string

	var rules []entities.CopyRule
	for _, rule := range pkg.Rules {
		if rule.AppliesTo(pc.Variant) {
			rules = append(rules, rule)
		}
	}
	if len(rules) == 0 {
		rules = DefaultRules(pc.Variant.Platform.OS, pc.SearchDirs)
	}
	preserveLinks := !pc.Variant.Platform.IsWindows()

	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if rule.Dst != entities.LayoutLib && rule.Dst != entities.LayoutBin {
			return result, fmt.Errorf("copy rule destination %q must be lib or bin", rule.Dst)
		}

		matches, err := p.globRule(rule.Patterns, expandDirs(rule.Dirs, pc), buildRoot)
		if err != nil {
			return result, err
		}
		if len(matches) == 0 {
			desc := describeRule(rule.Patterns, rule.Dirs)
			if rule.Optional {
				p.logger.Debug("Optional rule matched nothing", interfaces.F("rule", desc))
				continue
			}
			missing = append(missing, desc)
			continue
		}

		for _, src := range matches {
			rel, err := copyInto(src, layout.Dir(rule.Dst), preserveLinks)
			if err != nil {
				return result, err
			}
			result.Copied = append(result.Copied, filepath.Join(rule.Dst, rel))
		}
	}

	for _, rule := range pkg.Headers {
		headers, err := p.findHeaders(rule, pc, buildRoot)
		if err != nil {
			return result, err
		}
		if len(headers) == 0 {
			missing = append(missing, describeRule(rule.Patterns, rule.Dirs))
			continue
		}
		for _, src := range headers {
			rel, err := copyInto(src, layout.Dir(entities.LayoutInclude), false)
			if err != nil {
				return result, err
			}
			result.Copied = append(result.Copied, filepath.Join(entities.LayoutInclude, rel))
		}
	}

	if len(missing) > 0 {
		if !pc.AllowMissing {
			return result, entities.NewPipelineError(entities.ErrMissingArtifact, entities.StagePackage,
				"no files matched "+strings.Join(missing, ", "), nil)
		}
		for _, m := range missing {
			p.logger.Warn("Copy rule matched no files", interfaces.F("rule", m))
		}
		result.Missing = missing
	}

	p.logger.Info("Packaged artifacts", interfaces.F("files", len(result.Copied)), interfaces.F("layout", layout.Root))
	return result, nil
}

// globRule returns regular files and symlinks matching any pattern in any
// dir, deduplicated, in a stable order
func (p *Packager) globRule(patterns, dirs []string, buildRoot string) ([]string, error) {
	seen := make(map[string]bool)
	var matches []string
	for _, dir := range dirs {
		for _, pattern := range patterns {
			full := filepath.Join(buildRoot, filepath.FromSlash(dir), pattern)
			found, err := filepath.Glob(full)
			if err != nil {
				return nil, fmt.Errorf("failed to glob pattern %s: %w", pattern, err)
			}
			for _, m := range found {
				info, err := os.Lstat(m)
				if err != nil || info.IsDir() || seen[m] {
					continue
				}
				seen[m] = true
				matches = append(matches, m)
			}
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// findHeaders walks each header dir recursively
func (p *Packager) findHeaders(rule entities.HeaderRule, pc entities.PackageContext, buildRoot string) ([]string, error) {
	var headers []string
	for _, dir := range expandDirs(rule.Dirs, pc) {
		root := filepath.Join(buildRoot, filepath.FromSlash(dir))
		if _, err := os.Stat(root); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			for _, pattern := range rule.Patterns {
				if ok, _ := filepath.Match(pattern, d.Name()); ok {
					headers = append(headers, path)
					break
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk header dir %s: %w", dir, err)
		}
	}
	return headers, nil
}

// copyInto copies src into dstDir under its base name. Symlinks are
// recreated when preserveLinks is set and dereferenced otherwise.
func copyInto(src, dstDir string, preserveLinks bool) (string, error) {
	name := filepath.Base(src)
	dst := filepath.Join(dstDir, name)
	if err := os.MkdirAll(dstDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dstDir, err)
	}

	info, err := os.Lstat(src)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", src, err)
	}

	if info.Mode()&os.ModeSymlink != 0 && preserveLinks {
		target, err := os.Readlink(src)
		if err != nil {
			return "", fmt.Errorf("failed to read symlink %s: %w", src, err)
		}
		if _, err := os.Lstat(dst); err == nil {
			if err := os.Remove(dst); err != nil {
				return "", fmt.Errorf("failed to replace %s: %w", dst, err)
			}
		}
		if err := os.Symlink(target, dst); err != nil {
			return "", fmt.Errorf("failed to create symlink %s: %w", dst, err)
		}
		return name, nil
	}

	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	return name, nil
}

func copyFile(src, dst string) error {
	//nolint:gosec // G304: src is a build output matched by a recipe rule
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	//nolint:gosec // G304: dst is inside the package layout
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

// expandDirs substitutes {arch}, {platform}, {configuration} and {build_type}
func expandDirs(dirs []string, pc entities.PackageContext) []string {
	r := strings.NewReplacer(
		"{arch}", pc.Variant.Platform.Arch,
		"{platform}", services.ProjectPlatform(pc.Variant.Platform.Arch),
		"{configuration}", pc.Configuration,
		"{build_type}", string(pc.Variant.BuildType),
	)
	out := make([]string, len(dirs))
	for i, d := range dirs {
		out[i] = r.Replace(d)
	}
	return out
}

func describeRule(patterns, dirs []string) string {
	return fmt.Sprintf("%s in [%s]", strings.Join(patterns, "|"), strings.Join(dirs, ", "))
}
