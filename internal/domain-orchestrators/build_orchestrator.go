// Package orchestrators coordinates complex workflows across multiple domain services.
package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ochairo/alembic/internal/domain/entities"
	"github.com/ochairo/alembic/internal/domain/interfaces"
	"github.com/ochairo/alembic/internal/domain/interfaces/repositories"
	"github.com/ochairo/alembic/internal/domain/services"
)

// SourceStager copies the pristine source tree into a working tree
type SourceStager interface {
	Stage(ctx context.Context, pristine, dest string) error
}

// PatchApplier applies a recipe's patch set to a working tree
type PatchApplier interface {
	ApplyPatchSet(ctx context.Context, patches []entities.PatchEntry, patchDir, sourceRoot string, platform entities.Platform) ([]string, error)
}

// Builder runs the selected build strategy
type Builder interface {
	Build(ctx context.Context, strategy services.Strategy, sourceRoot string) error
}

// Packager copies build outputs into a package layout
type Packager interface {
	Package(ctx context.Context, pkg entities.RecipePackage, buildRoot string, layout entities.PackageLayout, pc entities.PackageContext) (*entities.PackageResult, error)
}

// LayoutInspector lists files of a finished layout
type LayoutInspector interface {
	DynamicLibraries(layout entities.PackageLayout) ([]string, error)
	CollectLibs(layout entities.PackageLayout) ([]string, error)
}

// Signer code-signs dynamic libraries
type Signer interface {
	SignAll(ctx context.Context, opts entities.BuildOptions, platform entities.Platform, files []string) (int, error)
}

// Archiver turns a layout into a distributable tarball
type Archiver interface {
	CreateTarball(sourceDir, tarballPath string) error
}

// ArchiveSigner writes a detached signature next to an archive
type ArchiveSigner interface {
	SignFile(filePath string) (string, error)
}

// Dependencies are the collaborators of a BuildOrchestrator. ArchiveSigner
// is optional; without it published archives are not signed.
type Dependencies struct {
	Recipes       repositories.RecipeRepository
	Stager        SourceStager
	Patcher       PatchApplier
	Builder       Builder
	Packager      Packager
	Inspector     LayoutInspector
	Signer        Signer
	Archiver      Archiver
	ArchiveSigner ArchiveSigner
	Logger        interfaces.Logger
}

// BuildOrchestratorConfig holds configuration for the orchestrator
type BuildOrchestratorConfig struct {
	SourceDir             string // pristine source tree
	OutputDir             string // layouts and published archives
	WorkDir               string // per-variant working trees; defaults to OutputDir/.work
	AllowMissingArtifacts bool
	Publish               bool
	// Clean removes the variant's previous layout and working tree before
	// the run instead of refusing to reuse them
	Clean bool
	Now   func() time.Time
}

// BuildRequest selects what one pipeline run produces
type BuildRequest struct {
	Version  string // overrides the recipe version when set
	Platform entities.Platform
	Options  entities.BuildOptions
	// DLLSign overrides the recipe's dll_sign default when set
	DLLSign *bool
}

// BuildOrchestrator coordinates the complete package build workflow
type BuildOrchestrator struct {
	deps     Dependencies
	logger   interfaces.Logger
	releases *services.ReleaseArtifactsService
	config   BuildOrchestratorConfig
}

// NewBuildOrchestrator creates a new build orchestrator
func NewBuildOrchestrator(deps Dependencies, config BuildOrchestratorConfig) *BuildOrchestrator {
	if config.OutputDir == "" {
		config.OutputDir = "dist"
	}
	if config.WorkDir == "" {
		config.WorkDir = filepath.Join(config.OutputDir, ".work")
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	logger := interfaces.OrNoOp(deps.Logger)

	return &BuildOrchestrator{
		deps:     deps,
		logger:   logger,
		releases: services.NewReleaseArtifactsService(logger, config.Now),
		config:   config,
	}
}

// BuildResult contains the result of a build operation
type BuildResult struct {
	Recipe     *entities.Recipe
	Variant    entities.Variant
	Version    string
	Layout     entities.PackageLayout
	Patches    []string // applied patch files
	Strategy   services.Strategy
	Packaged   *entities.PackageResult
	Libs       []string // link names collected from lib/
	SignCalls  int
	Published  []string // archive and sidecar files
	Duration   time.Duration
	FailedStep entities.Stage
	Success    bool
	Error      error
}

// BuildPackage loads a recipe by name and runs the pipeline once
func (o *BuildOrchestrator) BuildPackage(ctx context.Context, recipeName string, req BuildRequest) (*BuildResult, error) {
	recipe, err := o.deps.Recipes.GetRecipe(ctx, recipeName)
	if err != nil {
		return &BuildResult{Error: err}, fmt.Errorf("failed to load recipe: %w", err)
	}
	return o.BuildRecipe(ctx, recipe, req)
}

// BuildAllVariants runs the pipeline once per variant of the recipe's
// settings matrix, sequentially, stopping at the first failure. The
// request's platform and build type are replaced by each variant's.
func (o *BuildOrchestrator) BuildAllVariants(ctx context.Context, recipe *entities.Recipe, req BuildRequest, exclusions ...services.Exclusion) ([]*BuildResult, error) {
	variants, err := services.ExpandVariants(recipe.Settings, exclusions...)
	if err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("every variant of %s is excluded", recipe.Name)
	}

	results := make([]*BuildResult, 0, len(variants))
	for _, v := range variants {
		vreq := req
		vreq.Platform = v.Platform
		vreq.Options.BuildType = v.BuildType

		result, err := o.BuildRecipe(ctx, recipe, vreq)
		results = append(results, result)
		if err != nil {
			return results, fmt.Errorf("variant %s: %w", v, err)
		}
	}
	return results, nil
}

// BuildRecipe runs version, patch, build, package, sign and publish for one
// variant. Any stage error aborts the rest of the run.
func (o *BuildOrchestrator) BuildRecipe(ctx context.Context, recipe *entities.Recipe, req BuildRequest) (*BuildResult, error) {
	start := o.config.Now()
	result := &BuildResult{Recipe: recipe}

	fail := func(err error) (*BuildResult, error) {
		var pe *entities.PipelineError
		if errors.As(err, &pe) {
			result.FailedStep = pe.Stage
		}
		result.Error = err
		result.Duration = o.config.Now().Sub(start)
		o.logger.Error("Pipeline failed", interfaces.F("recipe", recipe.Name), interfaces.F("stage", string(result.FailedStep)), interfaces.Err(err))
		return result, err
	}

	version := req.Version
	if version == "" {
		version = recipe.Version
	}
	result.Version = version

	opts := req.Options
	if opts.BuildType == "" {
		opts.BuildType = entities.BuildTypeRelease
	}
	opts.DLLSign = recipe.Options.DLLSign
	if req.DLLSign != nil {
		opts.DLLSign = *req.DLLSign
	}
	platform := req.Platform
	variant := entities.Variant{Platform: platform, BuildType: opts.BuildType}
	result.Variant = variant

	// Version descriptor, checked before anything touches disk
	header, err := services.GenerateVersionHeader(version, o.config.Now())
	if err != nil {
		return fail(err)
	}

	if !services.SupportsPlatform(recipe.Settings, platform) {
		o.logger.Warn("Platform is outside the recipe settings", interfaces.F("recipe", recipe.Name), interfaces.F("platform", platform.String()))
	}

	id := PackageID(recipe.Name, version, variant)
	o.logger.Info("Building package", interfaces.F("package", id))

	layout := entities.NewPackageLayout(filepath.Join(o.config.OutputDir, id))
	workTree := filepath.Join(o.config.WorkDir, id)
	if o.config.Clean {
		for _, dir := range []string{layout.Root, workTree} {
			if err := os.RemoveAll(dir); err != nil {
				return fail(fmt.Errorf("failed to clean %s: %w", dir, err))
			}
		}
	}
	if err := layout.Prepare(); err != nil {
		return fail(fmt.Errorf("failed to prepare layout: %w", err))
	}
	result.Layout = layout

	if err := o.deps.Stager.Stage(ctx, o.config.SourceDir, workTree); err != nil {
		return fail(err)
	}

	// Patches
	applied, err := o.deps.Patcher.ApplyPatchSet(ctx, recipe.Patches, recipe.Dir, workTree, platform)
	result.Patches = applied
	if err != nil {
		return fail(err)
	}

	if err := o.writeVersionHeader(recipe, workTree, header); err != nil {
		return fail(err)
	}

	// Build
	strategy, err := services.SelectStrategy(platform, opts, recipe.Build)
	if err != nil {
		return fail(err)
	}
	result.Strategy = strategy
	o.logger.Info("Selected build strategy", interfaces.F("family", strategy.Family().String()))

	if err := o.deps.Builder.Build(ctx, strategy, workTree); err != nil {
		return fail(err)
	}

	// Package
	pc := entities.PackageContext{
		Variant:       variant,
		Configuration: configurationOf(strategy),
		SearchDirs:    defaultSearchDirs(strategy),
		AllowMissing:  o.config.AllowMissingArtifacts,
	}
	packaged, err := o.deps.Packager.Package(ctx, recipe.Package, workTree, layout, pc)
	if err != nil {
		return fail(err)
	}
	result.Packaged = packaged

	libs, err := o.deps.Inspector.CollectLibs(layout)
	if err != nil {
		return fail(err)
	}
	result.Libs = libs

	// Sign
	dlls, err := o.deps.Inspector.DynamicLibraries(layout)
	if err != nil {
		return fail(err)
	}
	calls, err := o.deps.Signer.SignAll(ctx, opts, platform, dlls)
	result.SignCalls = calls
	if err != nil {
		return fail(err)
	}

	// Publish
	if o.config.Publish {
		published, err := o.publish(recipe, version, layout, id)
		result.Published = published
		if err != nil {
			return fail(err)
		}
	}

	result.Success = true
	result.Duration = o.config.Now().Sub(start)
	o.logger.Info("Package complete", interfaces.F("package", id), interfaces.F("layout", layout.Root), interfaces.F("signed", calls))
	return result, nil
}

// writeVersionHeader writes the header into the working tree and copies the
// recipe's resource files next to it
func (o *BuildOrchestrator) writeVersionHeader(recipe *entities.Recipe, workTree, header string) error {
	cfg := recipe.VersionHeader
	if cfg.Path == "" {
		o.logger.Debug("Recipe has no version header path, skipping write")
		return nil
	}

	headerPath, err := withinRoot(workTree, cfg.Path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(headerPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := os.WriteFile(headerPath, []byte(header), 0600); err != nil {
		return fmt.Errorf("failed to write version header: %w", err)
	}

	for _, res := range cfg.Resources {
		src := filepath.Join(recipe.Dir, filepath.FromSlash(res))
		if err := copyResource(src, filepath.Join(dir, filepath.Base(res))); err != nil {
			return err
		}
	}
	o.logger.Debug("Wrote version header", interfaces.F("path", cfg.Path), interfaces.F("resources", len(cfg.Resources)))
	return nil
}

// publish archives the layout and writes checksums, the SBOM and, when a
// signing key is configured, an armored signature
func (o *BuildOrchestrator) publish(recipe *entities.Recipe, version string, layout entities.PackageLayout, id string) ([]string, error) {
	archive := filepath.Join(o.config.OutputDir, id+".tar.gz")
	publishErr := func(msg string, err error) error {
		return entities.NewPipelineError(entities.ErrPublishFailed, entities.StagePublish, msg, err)
	}

	if err := o.deps.Archiver.CreateTarball(layout.Root, archive); err != nil {
		return nil, publishErr("archive "+filepath.Base(archive), err)
	}
	published := []string{archive}

	for _, gen := range []func(string) (string, error){o.releases.GenerateSHA256, o.releases.GenerateSHA512} {
		sum, err := gen(archive)
		if err != nil {
			return published, publishErr("checksum", err)
		}
		published = append(published, sum)
	}

	described := *recipe
	described.Version = version
	sbom, err := o.releases.GenerateSBOM(&described, layout.Root, archive)
	if err != nil {
		return published, publishErr("sbom", err)
	}
	published = append(published, sbom)

	if o.deps.ArchiveSigner != nil {
		sig, err := o.deps.ArchiveSigner.SignFile(archive)
		if err != nil {
			return published, publishErr("signature", err)
		}
		published = append(published, sig)
	}

	o.logger.Info("Published package", interfaces.F("archive", archive), interfaces.F("files", len(published)))
	return published, nil
}

// PackageID names a variant's layout and archive
func PackageID(name, version string, v entities.Variant) string {
	return fmt.Sprintf("%s-%s-%s", name, version, v)
}

func configurationOf(s services.Strategy) string {
	switch st := s.(type) {
	case services.NativeStrategy:
		return st.Configuration
	case services.GeneratorStrategy:
		return st.BuildType
	}
	return ""
}

// defaultSearchDirs are the candidate output dirs for recipes without
// explicit copy rules
func defaultSearchDirs(s services.Strategy) []string {
	switch st := s.(type) {
	case services.NativeStrategy:
		base := filepath.ToSlash(filepath.Dir(st.Solution))
		return []string{
			base + "/{platform}/{configuration}",
			base + "/{configuration}",
		}
	case services.GeneratorStrategy:
		base := filepath.ToSlash(st.BuildDir)
		return []string{base, base + "/{configuration}", base + "/lib", base + "/bin"}
	}
	return nil
}

func withinRoot(root, rel string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(rel))
	r, err := filepath.Rel(root, target)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s escapes the source tree", rel)
	}
	return target, nil
}

func copyResource(src, dst string) error {
	//nolint:gosec // G304: resource path comes from the recipe
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open resource: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer in.Close()

	//nolint:gosec // G304: dst is inside the working tree
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy resource: %w", err)
	}
	return out.Close()
}

// Summary returns a human-readable summary of the build
func (r *BuildResult) Summary() string {
	if !r.Success {
		if r.FailedStep != "" {
			return fmt.Sprintf("Build failed at %s: %v", r.FailedStep, r.Error)
		}
		return fmt.Sprintf("Build failed: %v", r.Error)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Build successful!\n")
	fmt.Fprintf(&b, "Package: %s %s\n", r.Recipe.Name, r.Version)
	fmt.Fprintf(&b, "Variant: %s\n", r.Variant)
	if r.Strategy != nil {
		fmt.Fprintf(&b, "Toolchain: %s\n", r.Strategy.Family())
	}
	fmt.Fprintf(&b, "Patches: %d\n", len(r.Patches))
	if r.Packaged != nil {
		fmt.Fprintf(&b, "Files: %d\n", len(r.Packaged.Copied))
	}
	if len(r.Libs) > 0 {
		fmt.Fprintf(&b, "Libs: %s\n", strings.Join(r.Libs, ", "))
	}
	fmt.Fprintf(&b, "Signatures: %d\n", r.SignCalls)
	fmt.Fprintf(&b, "Layout: %s\n", r.Layout.Root)
	for _, p := range r.Published {
		fmt.Fprintf(&b, "Published: %s\n", p)
	}
	fmt.Fprintf(&b, "Total: %v", r.Duration)
	return b.String()
}
