package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ochairo/alembic/internal/domain-adapters/gateways"
	"github.com/ochairo/alembic/internal/domain/entities"
	"github.com/ochairo/alembic/internal/domain/interfaces"
	"github.com/ochairo/alembic/internal/domain/services"
)

const propsPatch = `diff --git a/src/vsprojects/libtcmalloc_minimal/release-patch.props b/src/vsprojects/libtcmalloc_minimal/release-patch.props
new file mode 100644
--- /dev/null
+++ b/src/vsprojects/libtcmalloc_minimal/release-patch.props
@@ -0,0 +1,3 @@
+<Project>
+  <Import Project="version.props" />
+</Project>
`

var (
	fixedNow   = time.Date(2026, 10, 19, 14, 5, 9, 0, time.UTC)
	windowsX64 = entities.Platform{OS: "Windows", Arch: "x86_64", Compiler: "Visual Studio", CompilerVersion: "17"}
	linuxGCC   = entities.Platform{OS: "Linux", Arch: "x86_64", Compiler: "gcc", CompilerVersion: "13"}
)

// Mock implementations for testing
type mockRecipeRepository struct {
	recipe *entities.Recipe
	err    error
}

func (m *mockRecipeRepository) GetRecipe(_ context.Context, _ string) (*entities.Recipe, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.recipe, nil
}

func (m *mockRecipeRepository) ListRecipes(_ context.Context) ([]*entities.Recipe, error) {
	return nil, errors.New("not implemented")
}

func (m *mockRecipeRepository) GetRecipesByOS(_ context.Context, _ string) ([]*entities.Recipe, error) {
	return nil, errors.New("not implemented")
}

// fakeBuilder records strategies and drops the files a real toolchain
// would produce into the working tree
type fakeBuilder struct {
	strategies []services.Strategy
	err        error
}

func (b *fakeBuilder) Build(_ context.Context, strategy services.Strategy, sourceRoot string) error {
	b.strategies = append(b.strategies, strategy)
	if b.err != nil {
		return b.err
	}

	var outputs []string
	switch s := strategy.(type) {
	case services.NativeStrategy:
		dir := filepath.Join(sourceRoot, "src", s.Platform, s.Configuration)
		for _, ext := range []string{".lib", ".dll", ".pdb"} {
			outputs = append(outputs, filepath.Join(dir, "libtcmalloc_minimal"+ext))
		}
	case services.GeneratorStrategy:
		outputs = append(outputs, filepath.Join(sourceRoot, s.BuildDir, "libtcmalloc_minimal.a"))
	}
	for _, out := range outputs {
		if err := os.MkdirAll(filepath.Dir(out), 0750); err != nil {
			return err
		}
		if err := os.WriteFile(out, []byte("built"), 0600); err != nil {
			return err
		}
	}
	return nil
}

// recordingRunner stands in for signtool
type recordingRunner struct {
	commands []interfaces.Command
	failOn   string
}

func (r *recordingRunner) Run(_ context.Context, cmd interfaces.Command) (*interfaces.CommandResult, error) {
	r.commands = append(r.commands, cmd)
	if r.failOn != "" && cmd.Description == r.failOn {
		return &interfaces.CommandResult{ExitCode: 1, Output: "SignTool Error"}, fmt.Errorf("%s exited with status 1", cmd.Description)
	}
	return &interfaces.CommandResult{}, nil
}

func (r *recordingRunner) args() [][]string {
	out := make([][]string, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c.Args)
	}
	return out
}

type fakeArchiveSigner struct{}

func (fakeArchiveSigner) SignFile(filePath string) (string, error) {
	sig := filePath + ".asc"
	return sig, os.WriteFile(sig, []byte("-----BEGIN PGP SIGNATURE-----\n"), 0600)
}

// fixture is a recipe directory, a pristine source tree and an orchestrator
// wired to real gateways
type fixture struct {
	recipe    *entities.Recipe
	sourceDir string
	outputDir string
	builder   *fakeBuilder
	runner    *recordingRunner
	orch      *BuildOrchestrator
}

func testRecipe(dir string) *entities.Recipe {
	outDir := "src/{platform}/{configuration}"
	return &entities.Recipe{
		Name:    "tcmalloc",
		Version: "2.8.20236.14001",
		Dir:     dir,
		Settings: entities.RecipeSettings{
			OS:        []string{"Windows"},
			Compiler:  []string{"Visual Studio"},
			Arch:      []string{"x86_64", "x86"},
			BuildType: []string{"Debug", "Release"},
		},
		Options: entities.RecipeOptions{DLLSign: true},
		Patches: []entities.PatchEntry{
			{File: "patches/release-patch.patch", OS: []string{"Windows"}},
		},
		VersionHeader: entities.VersionHeaderConfig{
			Path:      "src/vsprojects/libtcmalloc_minimal/version.h",
			Resources: []string{"tcmalloc.rc"},
		},
		Build: entities.RecipeBuild{
			Native: &entities.NativeBuild{
				Solution:       "src/gperftools.sln",
				Targets:        []string{"libtcmalloc_minimal"},
				Configurations: map[string]string{"Release": "Release-Patch", "Debug": "Debug"},
			},
			Generator: &entities.GeneratorBuild{BuildDir: "build", Generator: "Ninja"},
		},
		Package: entities.RecipePackage{
			Rules: []entities.CopyRule{
				{Patterns: []string{"*.lib"}, Dirs: []string{outDir}, Dst: entities.LayoutLib, OS: []string{"Windows"}},
				{Patterns: []string{"*.dll"}, Dirs: []string{outDir}, Dst: entities.LayoutBin, OS: []string{"Windows"}},
				{Patterns: []string{"*.pdb"}, Dirs: []string{outDir}, Dst: entities.LayoutBin, OS: []string{"Windows"}, BuildType: "Debug"},
			},
			Headers: []entities.HeaderRule{
				{Patterns: []string{"*.h"}, Dirs: []string{"src/gperftools"}},
			},
		},
		Signing: entities.RecipeSigning{TimestampURL: "http://timestamp.example.com"},
	}
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0600))
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	//nolint:gosec // G304: test file
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func newFixture(t *testing.T, configure func(*BuildOrchestratorConfig)) *fixture {
	t.Helper()
	root := t.TempDir()
	recipeDir := filepath.Join(root, "recipes", "tcmalloc")
	writeFiles(t, recipeDir, map[string]string{
		"patches/release-patch.patch": propsPatch,
		"tcmalloc.rc":                 "VS_VERSION_INFO VERSIONINFO\n",
	})

	sourceDir := filepath.Join(root, "source")
	writeFiles(t, sourceDir, map[string]string{
		"src/gperftools.sln":          "solution",
		"src/gperftools/tcmalloc.h":   "#pragma once\n",
		"src/gperftools/nested/api.h": "#pragma once\n",
	})

	f := &fixture{
		recipe:    testRecipe(recipeDir),
		sourceDir: sourceDir,
		outputDir: filepath.Join(root, "dist"),
		builder:   &fakeBuilder{},
		runner:    &recordingRunner{},
	}

	config := BuildOrchestratorConfig{
		SourceDir: sourceDir,
		OutputDir: f.outputDir,
		Now:       func() time.Time { return fixedNow },
	}
	if configure != nil {
		configure(&config)
	}

	f.orch = NewBuildOrchestrator(Dependencies{
		Recipes:   &mockRecipeRepository{recipe: f.recipe},
		Stager:    gateways.NewSourceStager(nil),
		Patcher:   gateways.NewPatchApplier(nil),
		Builder:   f.builder,
		Packager:  gateways.NewPackager(nil),
		Inspector: gateways.NewArtifactFinder(),
		Signer: gateways.NewSigntoolSigner(f.runner, nil, gateways.SigntoolConfig{
			TimestampURL: f.recipe.Signing.TimestampURL,
		}),
		Archiver:      gateways.NewArchiver(nil),
		ArchiveSigner: fakeArchiveSigner{},
	}, config)
	return f
}

func (f *fixture) workTree(result *BuildResult) string {
	return filepath.Join(f.outputDir, ".work", PackageID(result.Recipe.Name, result.Version, result.Variant))
}

func listNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestBuildOrchestrator_WindowsRelease(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.orch.BuildPackage(context.Background(), "tcmalloc", BuildRequest{
		Platform: windowsX64,
		Options:  entities.BuildOptions{BuildType: entities.BuildTypeRelease},
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	// strategy
	require.Len(t, f.builder.strategies, 1)
	native, ok := result.Strategy.(services.NativeStrategy)
	require.True(t, ok)
	assert.Equal(t, "Release-Patch", native.Configuration)
	assert.Equal(t, "x64", native.Platform)

	// version header and resource in the working tree
	work := f.workTree(result)
	header := readFile(t, filepath.Join(work, "src", "vsprojects", "libtcmalloc_minimal", "version.h"))
	assert.Contains(t, header, "#define VERSION_FULL           2.8.20236.14001\n")
	assert.Contains(t, header, "#define VERSION_DATE           \"2026-10-19\"\n")
	assert.Contains(t, header, "#define VERSION_PRODUCTSTR     \"2.8\"\n")
	assert.FileExists(t, filepath.Join(work, "src", "vsprojects", "libtcmalloc_minimal", "tcmalloc.rc"))

	// patch applied to the working tree only
	assert.Equal(t, []string{"patches/release-patch.patch"}, result.Patches)
	assert.FileExists(t, filepath.Join(work, "src", "vsprojects", "libtcmalloc_minimal", "release-patch.props"))
	assert.NoFileExists(t, filepath.Join(f.sourceDir, "src", "vsprojects", "libtcmalloc_minimal", "release-patch.props"))

	// layout
	layout := result.Layout
	assert.Equal(t, filepath.Join(f.outputDir, "tcmalloc-2.8.20236.14001-windows-x86_64-msvc-release"), layout.Root)
	assert.Equal(t, []string{"libtcmalloc_minimal.lib"}, listNames(t, layout.Dir(entities.LayoutLib)))
	assert.Equal(t, []string{"libtcmalloc_minimal.dll"}, listNames(t, layout.Dir(entities.LayoutBin)))
	assert.ElementsMatch(t, []string{"tcmalloc.h", "api.h"}, listNames(t, layout.Dir(entities.LayoutInclude)))
	assert.Equal(t, []string{"libtcmalloc_minimal"}, result.Libs)

	// signing: sha1 then sha256, both timestamped
	assert.Equal(t, 2, result.SignCalls)
	dll := filepath.Join(layout.Dir(entities.LayoutBin), "libtcmalloc_minimal.dll")
	assert.Equal(t, [][]string{
		{"sign", "/fd", "sha1", "/a", "/tr", "http://timestamp.example.com", "/td", "sha1", dll},
		{"sign", "/fd", "sha256", "/as", "/a", "/tr", "http://timestamp.example.com", "/td", "sha256", dll},
	}, f.runner.args())

	assert.Empty(t, result.Published)
	assert.Contains(t, result.Summary(), "Signatures: 2")
}

func TestBuildOrchestrator_WindowsDebug(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.orch.BuildRecipe(context.Background(), f.recipe, BuildRequest{
		Platform: entities.Platform{OS: "Windows", Arch: "x86", Compiler: "Visual Studio"},
		Options:  entities.BuildOptions{BuildType: entities.BuildTypeDebug},
	})
	require.NoError(t, err)

	native := result.Strategy.(services.NativeStrategy)
	assert.Equal(t, "Debug", native.Configuration)
	assert.Equal(t, "Win32", native.Platform)

	assert.ElementsMatch(t, []string{"libtcmalloc_minimal.dll", "libtcmalloc_minimal.pdb"}, listNames(t, result.Layout.Dir(entities.LayoutBin)))

	require.Equal(t, 2, result.SignCalls)
	for _, args := range f.runner.args() {
		assert.NotContains(t, args, "/tr")
	}
}

func TestBuildOrchestrator_DLLSignDisabled(t *testing.T) {
	f := newFixture(t, nil)
	off := false

	result, err := f.orch.BuildRecipe(context.Background(), f.recipe, BuildRequest{
		Platform: windowsX64,
		Options:  entities.BuildOptions{BuildType: entities.BuildTypeRelease},
		DLLSign:  &off,
	})
	require.NoError(t, err)
	assert.Zero(t, result.SignCalls)
	assert.Empty(t, f.runner.commands)
}

func TestBuildOrchestrator_GeneratorPath(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.orch.BuildRecipe(context.Background(), f.recipe, BuildRequest{
		Platform: linuxGCC,
		Options:  entities.BuildOptions{BuildType: entities.BuildTypeRelease},
	})
	require.NoError(t, err)

	gen, ok := result.Strategy.(services.GeneratorStrategy)
	require.True(t, ok)
	assert.Equal(t, "Release", gen.BuildType)

	// no Windows rule applies, so the default rules pick up the archive
	assert.Equal(t, []string{"libtcmalloc_minimal.a"}, listNames(t, result.Layout.Dir(entities.LayoutLib)))
	assert.Equal(t, []string{"tcmalloc_minimal"}, result.Libs)

	// the patch is Windows-only and signing does not exist off Windows
	assert.Empty(t, result.Patches)
	assert.Zero(t, result.SignCalls)
}

func TestBuildOrchestrator_StageFailures(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(t *testing.T, f *fixture, req *BuildRequest)
		wantKind  error
		wantStage entities.Stage
		wantBuild bool
	}{
		{
			name:      "malformed version",
			mutate:    func(_ *testing.T, _ *fixture, req *BuildRequest) { req.Version = "2.8" },
			wantKind:  entities.ErrMalformedVersion,
			wantStage: entities.StageVersion,
		},
		{
			name: "patch conflict",
			mutate: func(t *testing.T, f *fixture, _ *BuildRequest) {
				writeFiles(t, f.sourceDir, map[string]string{
					"src/vsprojects/libtcmalloc_minimal/release-patch.props": "<Project/>\n",
				})
			},
			wantKind:  entities.ErrPatchConflict,
			wantStage: entities.StagePatch,
		},
		{
			name:      "unsupported toolchain",
			mutate:    func(_ *testing.T, _ *fixture, req *BuildRequest) { req.Platform.Compiler = "Intel" },
			wantKind:  entities.ErrUnsupportedToolchain,
			wantStage: entities.StageBuild,
		},
		{
			name: "build failed",
			mutate: func(_ *testing.T, f *fixture, _ *BuildRequest) {
				f.builder.err = entities.NewPipelineError(entities.ErrBuildFailed, entities.StageBuild, "msbuild Release-Patch|x64", nil)
			},
			wantKind:  entities.ErrBuildFailed,
			wantStage: entities.StageBuild,
			wantBuild: true,
		},
		{
			name:      "signing failed",
			mutate:    func(_ *testing.T, f *fixture, _ *BuildRequest) { f.runner.failOn = "signtool sha256" },
			wantKind:  entities.ErrSigningFailed,
			wantStage: entities.StageSign,
			wantBuild: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			req := BuildRequest{Platform: windowsX64, Options: entities.BuildOptions{BuildType: entities.BuildTypeRelease}}
			tt.mutate(t, f, &req)

			result, err := f.orch.BuildRecipe(context.Background(), f.recipe, req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantKind), "got %v", err)
			assert.False(t, result.Success)
			assert.Equal(t, tt.wantStage, result.FailedStep)
			assert.Equal(t, tt.wantBuild, len(f.builder.strategies) > 0)
			assert.Contains(t, result.Summary(), "Build failed at "+string(tt.wantStage))
		})
	}
}

func TestBuildOrchestrator_MalformedVersionLeavesNoLayout(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.orch.BuildRecipe(context.Background(), f.recipe, BuildRequest{
		Platform: windowsX64,
		Version:  "2.8",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, entities.ErrMalformedVersion))
	assert.Empty(t, result.Layout.Root)
	assert.NoDirExists(t, f.outputDir)
}

func TestBuildOrchestrator_VersionHeaderWrittenAfterPatches(t *testing.T) {
	f := newFixture(t, nil)
	headerPatch := `diff --git a/src/vsprojects/libtcmalloc_minimal/version.h b/src/vsprojects/libtcmalloc_minimal/version.h
new file mode 100644
--- /dev/null
+++ b/src/vsprojects/libtcmalloc_minimal/version.h
@@ -0,0 +1 @@
+#define VERSION_PLACEHOLDER 1
`
	writeFiles(t, f.recipe.Dir, map[string]string{"patches/placeholder.patch": headerPatch})
	f.recipe.Patches = append(f.recipe.Patches, entities.PatchEntry{File: "patches/placeholder.patch"})

	result, err := f.orch.BuildRecipe(context.Background(), f.recipe, BuildRequest{
		Platform: windowsX64,
		Options:  entities.BuildOptions{BuildType: entities.BuildTypeRelease},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"patches/release-patch.patch", "patches/placeholder.patch"}, result.Patches)

	header := readFile(t, filepath.Join(f.workTree(result), "src", "vsprojects", "libtcmalloc_minimal", "version.h"))
	assert.Contains(t, header, "#define VERSION_FULL           2.8.20236.14001\n")
	assert.NotContains(t, header, "VERSION_PLACEHOLDER")
}

func TestBuildOrchestrator_MissingArtifact(t *testing.T) {
	f := newFixture(t, nil)
	f.recipe.Package.Rules = append(f.recipe.Package.Rules, entities.CopyRule{
		Patterns: []string{"*.exp"}, Dirs: []string{"src"}, Dst: entities.LayoutLib,
	})
	req := BuildRequest{Platform: windowsX64, Options: entities.BuildOptions{BuildType: entities.BuildTypeRelease}}

	result, err := f.orch.BuildRecipe(context.Background(), f.recipe, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, entities.ErrMissingArtifact))
	assert.Equal(t, entities.StagePackage, result.FailedStep)
	assert.Empty(t, f.runner.commands)

	lenient := newFixture(t, func(c *BuildOrchestratorConfig) { c.AllowMissingArtifacts = true })
	lenient.recipe.Package.Rules = f.recipe.Package.Rules
	result, err = lenient.orch.BuildRecipe(context.Background(), lenient.recipe, req)
	require.NoError(t, err)
	assert.Len(t, result.Packaged.Missing, 1)
}

func TestBuildOrchestrator_LayoutMustBeFresh(t *testing.T) {
	f := newFixture(t, nil)
	req := BuildRequest{Platform: windowsX64, Options: entities.BuildOptions{BuildType: entities.BuildTypeRelease}}

	_, err := f.orch.BuildRecipe(context.Background(), f.recipe, req)
	require.NoError(t, err)

	_, err = f.orch.BuildRecipe(context.Background(), f.recipe, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not empty")

	clean := NewBuildOrchestrator(f.orch.deps, BuildOrchestratorConfig{
		SourceDir: f.sourceDir,
		OutputDir: f.outputDir,
		Clean:     true,
		Now:       func() time.Time { return fixedNow },
	})
	result, err := clean.BuildRecipe(context.Background(), f.recipe, req)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestBuildOrchestrator_Publish(t *testing.T) {
	f := newFixture(t, func(c *BuildOrchestratorConfig) { c.Publish = true })

	result, err := f.orch.BuildRecipe(context.Background(), f.recipe, BuildRequest{
		Version:  "2.17.0",
		Platform: windowsX64,
		Options:  entities.BuildOptions{BuildType: entities.BuildTypeRelease},
	})
	require.NoError(t, err)

	archive := filepath.Join(f.outputDir, "tcmalloc-2.17.0-windows-x86_64-msvc-release.tar.gz")
	assert.Equal(t, []string{
		archive,
		archive + ".sha256",
		archive + ".sha512",
		archive + ".sbom.json",
		archive + ".asc",
	}, result.Published)
	for _, p := range result.Published {
		assert.FileExists(t, p)
	}

	sbom := readFile(t, archive+".sbom.json")
	assert.Contains(t, sbom, `"version": "2.17.0"`)
	assert.Contains(t, sbom, "bin/libtcmalloc_minimal.dll")

	sum := readFile(t, archive+".sha256")
	assert.True(t, strings.HasSuffix(sum, "  "+filepath.Base(archive)+"\n"))
}

func TestBuildOrchestrator_BuildAllVariants(t *testing.T) {
	f := newFixture(t, nil)

	results, err := f.orch.BuildAllVariants(context.Background(), f.recipe, BuildRequest{})
	require.NoError(t, err)
	require.Len(t, results, 4)

	var ids []string
	for _, r := range results {
		assert.True(t, r.Success)
		ids = append(ids, r.Variant.String())
	}
	assert.Equal(t, []string{
		"windows-x86_64-msvc-debug",
		"windows-x86_64-msvc-release",
		"windows-x86-msvc-debug",
		"windows-x86-msvc-release",
	}, ids)
	// every variant signs its dll twice
	assert.Len(t, f.runner.commands, 8)
}

func TestBuildOrchestrator_BuildAllVariants_Exclusions(t *testing.T) {
	f := newFixture(t, nil)

	results, err := f.orch.BuildAllVariants(context.Background(), f.recipe, BuildRequest{},
		services.Exclusion{Setting: "arch", Value: "x86"})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	_, err = f.orch.BuildAllVariants(context.Background(), f.recipe, BuildRequest{},
		services.Exclusion{Setting: "os", Value: "Windows"})
	assert.Error(t, err)
}

func TestBuildOrchestrator_BuildAllVariants_StopsAtFirstFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.failOn = "signtool sha1"

	results, err := f.orch.BuildAllVariants(context.Background(), f.recipe, BuildRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, entities.ErrSigningFailed))
	assert.Len(t, results, 1)
	assert.Contains(t, err.Error(), "variant windows-x86_64-msvc-debug")
}

func TestBuildOrchestrator_RecipeNotFound(t *testing.T) {
	orch := NewBuildOrchestrator(Dependencies{
		Recipes: &mockRecipeRepository{err: errors.New("recipe not found: nope")},
	}, BuildOrchestratorConfig{})

	result, err := orch.BuildPackage(context.Background(), "nope", BuildRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load recipe")
	assert.False(t, result.Success)
}
