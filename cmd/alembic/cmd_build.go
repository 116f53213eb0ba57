package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ochairo/alembic/internal/domain-adapters/gateways"
	orchestrators "github.com/ochairo/alembic/internal/domain-orchestrators"
	"github.com/ochairo/alembic/internal/domain/entities"
	"github.com/ochairo/alembic/internal/domain/interfaces"
	"github.com/ochairo/alembic/internal/domain/services"
	"github.com/ochairo/alembic/internal/external-adapters/gpg"
	"github.com/ochairo/alembic/internal/external-adapters/yaml"
)

// Secrets are read from the environment, never from flags
const (
	envSigningKeyPassphrase = "ALEMBIC_SIGNING_KEY_PASSPHRASE"
	envCertificatePassword  = "ALEMBIC_CERTIFICATE_PASSWORD"
)

const defaultTimestampURL = "http://timestamp.digicert.com"

type buildFlags struct {
	version    string
	os         string
	arch       string
	compiler   string
	buildType  string
	dllSign    bool
	allVariant bool
	exclude    []string

	recipesDir   string
	sourceDir    string
	outputDir    string
	workDir      string
	allowMissing bool
	publish      bool
	clean        bool

	signingKey   string
	signtool     string
	certificate  string
	timestampURL string
	msbuild      string
	cmake        string
}

func (a *app) newBuildCommand() *cobra.Command {
	flags := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build <recipe>",
		Short: "Build and package one variant, or every variant, of a recipe",
		Long: `Run the packaging pipeline for a recipe: version header, patches,
toolchain build, artifact packaging and code signing.

The target platform defaults to the host. Use --all-variants to run the
pipeline once per combination of the recipe settings.

Examples:
  alembic build tcmalloc --version 2.16.0.0
  alembic build tcmalloc --arch x86 --build-type Debug
  alembic build tcmalloc --all-variants --exclude compiler=gcc
  alembic build tcmalloc --publish --signing-key release.asc`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dllSign *bool
			if cmd.Flags().Changed("dll-sign") {
				dllSign = &flags.dllSign
			}
			return a.runBuild(cmd.Context(), args[0], flags, dllSign)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.version, "version", "", "Package version (default: recipe version)")
	f.StringVar(&flags.os, "os", "", "Target OS (default: host)")
	f.StringVar(&flags.arch, "arch", "", "Target architecture (default: host)")
	f.StringVar(&flags.compiler, "compiler", "", "Target compiler (default: host)")
	f.StringVar(&flags.buildType, "build-type", string(entities.BuildTypeRelease), "Debug or Release")
	f.BoolVar(&flags.dllSign, "dll-sign", true, "Code-sign dynamic libraries (default: recipe option)")
	f.BoolVar(&flags.allVariant, "all-variants", false, "Build every variant of the recipe settings")
	f.StringSliceVar(&flags.exclude, "exclude", nil, "Skip variants matching setting=value (repeatable)")

	f.StringVar(&flags.recipesDir, "recipes-dir", "recipes", "Path to recipes directory")
	f.StringVar(&flags.sourceDir, "source-dir", "", "Pristine source tree (default: sources/<recipe>)")
	f.StringVar(&flags.outputDir, "output-dir", "dist", "Output directory for layouts and archives")
	f.StringVar(&flags.workDir, "work-dir", "", "Working tree directory (default: <output-dir>/.work)")
	f.BoolVar(&flags.allowMissing, "allow-missing", false, "Warn instead of failing when a copy rule matches nothing")
	f.BoolVar(&flags.publish, "publish", false, "Archive the layout and write checksums and an SBOM")
	f.BoolVar(&flags.clean, "clean", false, "Remove an existing layout and working tree first")

	f.StringVar(&flags.signingKey, "signing-key", "", "Armored OpenPGP private key for archive signatures (passphrase from "+envSigningKeyPassphrase+")")
	f.StringVar(&flags.signtool, "signtool", "", "Path to signtool (default: from PATH)")
	f.StringVar(&flags.certificate, "certificate", "", "PFX certificate for signtool (password from "+envCertificatePassword+")")
	f.StringVar(&flags.timestampURL, "timestamp-url", "", "RFC 3161 timestamp server (default: recipe or "+defaultTimestampURL+")")
	f.StringVar(&flags.msbuild, "msbuild", "", "Path to msbuild (default: from PATH)")
	f.StringVar(&flags.cmake, "cmake", "", "Path to cmake (default: from PATH)")

	return cmd
}

func (a *app) runBuild(ctx context.Context, recipeName string, flags *buildFlags, dllSign *bool) error {
	repo := yaml.NewRecipeRepository(flags.recipesDir, a.logger)
	recipe, err := repo.GetRecipe(ctx, recipeName)
	if err != nil {
		return err
	}

	buildType, err := entities.ParseBuildType(flags.buildType)
	if err != nil {
		return err
	}

	exclusions := make([]services.Exclusion, 0, len(flags.exclude))
	for _, s := range flags.exclude {
		e, err := services.ParseExclusion(s)
		if err != nil {
			return err
		}
		exclusions = append(exclusions, e)
	}

	archiveSigner, err := a.loadArchiveSigner(flags.signingKey)
	if err != nil {
		return err
	}
	if archiveSigner != nil && !flags.publish {
		a.logger.Warn("--signing-key has no effect without --publish")
	}

	sourceDir := flags.sourceDir
	if sourceDir == "" {
		sourceDir = filepath.Join("sources", recipe.Name)
	}

	orch := orchestrators.NewBuildOrchestrator(a.buildDependencies(repo, recipe, flags, archiveSigner), orchestrators.BuildOrchestratorConfig{
		SourceDir:             sourceDir,
		OutputDir:             flags.outputDir,
		WorkDir:               flags.workDir,
		AllowMissingArtifacts: flags.allowMissing,
		Publish:               flags.publish,
		Clean:                 flags.clean,
		Now:                   a.now,
	})

	req := orchestrators.BuildRequest{
		Version:  flags.version,
		Platform: a.targetPlatform(flags),
		Options:  entities.BuildOptions{BuildType: buildType},
		DLLSign:  dllSign,
	}

	if flags.allVariant {
		results, err := orch.BuildAllVariants(ctx, recipe, req, exclusions...)
		for _, r := range results {
			if r.Success {
				fmt.Fprintf(a.stdout, "%s\n\n", r.Summary())
			}
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Built %d variants of %s\n", len(results), recipe.Name)
		return nil
	}

	if len(exclusions) > 0 {
		a.logger.Warn("--exclude only applies with --all-variants")
	}
	result, err := orch.BuildRecipe(ctx, recipe, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, result.Summary())
	return nil
}

func (a *app) buildDependencies(repo *yaml.RecipeRepository, recipe *entities.Recipe, flags *buildFlags, archiveSigner orchestrators.ArchiveSigner) orchestrators.Dependencies {
	runner := gateways.NewExecRunner(a.logger)

	timestampURL := flags.timestampURL
	if timestampURL == "" {
		timestampURL = recipe.Signing.TimestampURL
	}
	if timestampURL == "" {
		timestampURL = defaultTimestampURL
	}

	return orchestrators.Dependencies{
		Recipes: repo,
		Stager:  gateways.NewSourceStager(a.logger),
		Patcher: gateways.NewPatchApplier(a.logger),
		Builder: gateways.NewToolchainBuilder(runner, a.logger, gateways.ToolchainBuilderConfig{
			MSBuildPath: flags.msbuild,
			CMakePath:   flags.cmake,
		}),
		Packager:  gateways.NewPackager(a.logger),
		Inspector: gateways.NewArtifactFinder(),
		Signer: gateways.NewSigntoolSigner(runner, a.logger, gateways.SigntoolConfig{
			SigntoolPath:    flags.signtool,
			CertificateFile: flags.certificate,
			Password:        os.Getenv(envCertificatePassword),
			TimestampURL:    timestampURL,
		}),
		Archiver:      gateways.NewArchiver(a.logger),
		ArchiveSigner: archiveSigner,
		Logger:        a.logger,
	}
}

// targetPlatform starts from the host and applies explicit overrides
func (a *app) targetPlatform(flags *buildFlags) entities.Platform {
	p := detectPlatform()
	if flags.os != "" {
		p.OS = flags.os
	}
	if flags.arch != "" {
		p.Arch = flags.arch
	}
	if flags.compiler != "" {
		p.Compiler = flags.compiler
	}
	a.logger.Debug("Target platform", interfaces.F("platform", p.String()))
	return p
}

// loadArchiveSigner returns a nil interface when no key is configured so
// the orchestrator skips archive signatures
func (a *app) loadArchiveSigner(keyPath string) (orchestrators.ArchiveSigner, error) {
	if keyPath == "" {
		return nil, nil
	}
	signer, err := gpg.LoadSigner(keyPath, []byte(os.Getenv(envSigningKeyPassphrase)))
	if err != nil {
		return nil, err
	}
	a.logger.Info("Loaded archive signing key", interfaces.F("key_id", signer.KeyID()))
	return signer, nil
}
