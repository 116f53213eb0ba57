package gateways

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ochairo/alembic/internal/domain/entities"
	"github.com/ochairo/alembic/internal/domain/interfaces"
	"github.com/ochairo/alembic/internal/domain/services"
)

// Default tool names, resolved through PATH
const (
	defaultMSBuild = "msbuild"
	defaultCMake   = "cmake"
)

// ToolchainBuilder runs a selected build strategy through the external
// build system
type ToolchainBuilder struct {
	runner  interfaces.CommandRunner
	logger  interfaces.Logger
	msbuild string
	cmake   string
}

// ToolchainBuilderConfig overrides tool locations
type ToolchainBuilderConfig struct {
	MSBuildPath string
	CMakePath   string
}

// NewToolchainBuilder creates a new toolchain builder
func NewToolchainBuilder(runner interfaces.CommandRunner, logger interfaces.Logger, config ToolchainBuilderConfig) *ToolchainBuilder {
	b := &ToolchainBuilder{
		runner:  runner,
		logger:  interfaces.OrNoOp(logger),
		msbuild: config.MSBuildPath,
		cmake:   config.CMakePath,
	}
	if b.msbuild == "" {
		b.msbuild = defaultMSBuild
	}
	if b.cmake == "" {
		b.cmake = defaultCMake
	}
	return b
}

// Build executes exactly one build path for the strategy
func (b *ToolchainBuilder) Build(ctx context.Context, strategy services.Strategy, sourceRoot string) error {
	switch s := strategy.(type) {
	case services.NativeStrategy:
		return b.buildNative(ctx, s, sourceRoot)
	case services.GeneratorStrategy:
		return b.buildGenerator(ctx, s, sourceRoot)
	default:
		return entities.NewPipelineError(entities.ErrUnsupportedToolchain, entities.StageBuild,
			fmt.Sprintf("no build path for strategy %T", strategy), nil)
	}
}

// NativeCommand returns the MSBuild invocation for a native strategy
func (b *ToolchainBuilder) NativeCommand(s services.NativeStrategy, sourceRoot string) interfaces.Command {
	solution := s.Solution
	args := []string{filepath.Base(solution)}
	if len(s.Targets) > 0 {
		args = append(args, "/t:"+strings.Join(s.Targets, ";"))
	}
	args = append(args,
		"/p:Configuration="+s.Configuration,
		"/p:Platform="+s.Platform,
		"/verbosity:normal",
		"/nologo",
	)
	return interfaces.Command{
		Name:        b.msbuild,
		Args:        args,
		Dir:         filepath.Join(sourceRoot, filepath.Dir(solution)),
		Description: "msbuild " + s.Configuration + "|" + s.Platform,
	}
}

func (b *ToolchainBuilder) buildNative(ctx context.Context, s services.NativeStrategy, sourceRoot string) error {
	b.logger.Info("Building with native toolchain",
		interfaces.F("solution", s.Solution),
		interfaces.F("configuration", s.Configuration),
		interfaces.F("platform", s.Platform))
	return b.run(ctx, b.NativeCommand(s, sourceRoot))
}

// GeneratorCommands returns the configure and build invocations for a
// generator strategy
func (b *ToolchainBuilder) GeneratorCommands(s services.GeneratorStrategy, sourceRoot string) []interfaces.Command {
	sourceDir := filepath.Join(sourceRoot, s.SourceDir)
	buildDir := filepath.Join(sourceRoot, s.BuildDir)

	configure := []string{"-S", sourceDir, "-B", buildDir}
	if s.Generator != "" {
		configure = append(configure, "-G", s.Generator)
	}
	configure = append(configure, "-DCMAKE_BUILD_TYPE="+s.BuildType)
	for _, def := range s.Definitions {
		configure = append(configure, "-D"+def)
	}

	build := []string{"--build", buildDir, "--config", s.BuildType}
	if len(s.Targets) > 0 {
		build = append(build, "--target")
		build = append(build, s.Targets...)
	}

	return []interfaces.Command{
		{Name: b.cmake, Args: configure, Dir: sourceRoot, Description: "cmake configure"},
		{Name: b.cmake, Args: build, Dir: sourceRoot, Description: "cmake build"},
	}
}

func (b *ToolchainBuilder) buildGenerator(ctx context.Context, s services.GeneratorStrategy, sourceRoot string) error {
	b.logger.Info("Building with generator",
		interfaces.F("generator", s.Generator),
		interfaces.F("build_type", s.BuildType))
	for _, cmd := range b.GeneratorCommands(s, sourceRoot) {
		if err := b.run(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (b *ToolchainBuilder) run(ctx context.Context, cmd interfaces.Command) error {
	result, err := b.runner.Run(ctx, cmd)
	if err == nil {
		return nil
	}

	pe := entities.NewPipelineError(entities.ErrBuildFailed, entities.StageBuild, cmd.Description, err)
	if result != nil {
		pe.ExitCode = result.ExitCode
		pe.Output = result.Output
	}
	return pe
}
