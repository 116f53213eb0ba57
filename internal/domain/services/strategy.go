package services

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ochairo/alembic/internal/domain/entities"
)

// ToolchainFamily classifies a compiler identity
type ToolchainFamily int

const (
	// UnknownToolchain matches neither build path
	UnknownToolchain ToolchainFamily = iota
	// NativeToolchain is the platform's first-party compiler and project format
	NativeToolchain
	// GeneratorDriven is any compiler built through a portable generator
	GeneratorDriven
)

func (f ToolchainFamily) String() string {
	switch f {
	case NativeToolchain:
		return "native"
	case GeneratorDriven:
		return "generator"
	default:
		return "unknown"
	}
}

var compilerFamilies = map[string]ToolchainFamily{
	"visual studio": NativeToolchain,
	"msvc":          NativeToolchain,
	"gcc":           GeneratorDriven,
	"clang":         GeneratorDriven,
	"apple-clang":   GeneratorDriven,
	"mingw":         GeneratorDriven,
}

// ClassifyCompiler maps a compiler identity to its toolchain family
func ClassifyCompiler(compiler string) ToolchainFamily {
	return compilerFamilies[strings.ToLower(strings.TrimSpace(compiler))]
}

// Strategy is the build path chosen for a run: NativeStrategy or
// GeneratorStrategy. The set is closed.
type Strategy interface {
	Family() ToolchainFamily
	isStrategy()
}

// NativeStrategy builds native project files with MSBuild
type NativeStrategy struct {
	Solution      string
	Targets       []string
	Configuration string
	Platform      string
}

// Family returns NativeToolchain
func (NativeStrategy) Family() ToolchainFamily { return NativeToolchain }
func (NativeStrategy) isStrategy()             {}

// GeneratorStrategy configures and builds through CMake
type GeneratorStrategy struct {
	SourceDir   string
	BuildDir    string
	Generator   string
	BuildType   string
	Targets     []string
	Definitions []string // KEY=VALUE, sorted
}

// Family returns GeneratorDriven
func (GeneratorStrategy) Family() ToolchainFamily { return GeneratorDriven }
func (GeneratorStrategy) isStrategy()             {}

// projectPlatforms maps recipe arch names to Visual Studio solution platforms
var projectPlatforms = map[string]string{
	"x86_64": "x64",
	"x86":    "Win32",
	"armv8":  "ARM64",
}

// ProjectPlatform returns the solution platform name for an arch
func ProjectPlatform(arch string) string {
	if p, ok := projectPlatforms[arch]; ok {
		return p
	}
	return arch
}

// SelectStrategy picks exactly one build path for the platform's compiler.
// Only the native path remaps the build type, through the recipe's
// configuration table.
func SelectStrategy(platform entities.Platform, opts entities.BuildOptions, build entities.RecipeBuild) (Strategy, error) {
	family := ClassifyCompiler(platform.Compiler)

	switch family {
	case NativeToolchain:
		if build.Native == nil {
			return nil, unsupported(fmt.Sprintf("recipe has no native build for compiler %q", platform.Compiler))
		}
		configuration, ok := build.Native.Configurations[string(opts.BuildType)]
		if !ok {
			return nil, unsupported(fmt.Sprintf("no native configuration for build type %q", opts.BuildType))
		}
		return NativeStrategy{
			Solution:      filepath.FromSlash(build.Native.Solution),
			Targets:       build.Native.Targets,
			Configuration: configuration,
			Platform:      ProjectPlatform(platform.Arch),
		}, nil
	case GeneratorDriven:
		if build.Generator == nil {
			return nil, unsupported(fmt.Sprintf("recipe has no generator build for compiler %q", platform.Compiler))
		}
		g := build.Generator
		buildDir := g.BuildDir
		if buildDir == "" {
			buildDir = "build"
		}
		sourceDir := g.SourceDir
		if sourceDir == "" {
			sourceDir = "."
		}
		return GeneratorStrategy{
			SourceDir:   filepath.FromSlash(sourceDir),
			BuildDir:    filepath.FromSlash(buildDir),
			Generator:   g.Generator,
			BuildType:   string(opts.BuildType),
			Targets:     g.Targets,
			Definitions: sortedDefinitions(g.Definitions),
		}, nil
	default:
		return nil, unsupported(fmt.Sprintf("compiler %q matches no build path", platform.Compiler))
	}
}

func unsupported(msg string) error {
	return entities.NewPipelineError(entities.ErrUnsupportedToolchain, entities.StageBuild, msg, nil)
}

func sortedDefinitions(defs map[string]string) []string {
	out := make([]string, 0, len(defs))
	for k, v := range defs {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
