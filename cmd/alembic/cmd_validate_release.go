package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ochairo/alembic/internal/domain-adapters/gateways"
	orchestrators "github.com/ochairo/alembic/internal/domain-orchestrators"
	"github.com/ochairo/alembic/internal/domain/entities"
	"github.com/ochairo/alembic/internal/domain/services"
	"github.com/ochairo/alembic/internal/external-adapters/yaml"
)

func (a *app) newValidateReleaseCommand() *cobra.Command {
	var (
		recipesDir string
		outputDir  string
		exclude    []string
	)

	cmd := &cobra.Command{
		Use:   "validate-release <recipe> [version]",
		Short: "Check that every variant of a release was published",
		Long: `Check that an archive was published for every variant of the recipe
settings and that each archive matches its checksum sidecars.

Missing archives exit with the missing-artifact status.

Examples:
  alembic validate-release tcmalloc
  alembic validate-release tcmalloc 2.16.0.0 --output-dir ./dist
  alembic validate-release tcmalloc --exclude compiler=gcc`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := yaml.NewRecipeRepository(recipesDir, a.logger)
			recipe, err := repo.GetRecipe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			version := recipe.Version
			if len(args) > 1 {
				version = args[1]
			}

			exclusions := make([]services.Exclusion, 0, len(exclude))
			for _, s := range exclude {
				e, err := services.ParseExclusion(s)
				if err != nil {
					return err
				}
				exclusions = append(exclusions, e)
			}
			variants, err := services.ExpandVariants(recipe.Settings, exclusions...)
			if err != nil {
				return err
			}

			published, err := gateways.NewArtifactFinder().FindPublished(outputDir, recipe.Name, version)
			if err != nil {
				return err
			}
			have := make(map[string]bool, len(published))
			for _, p := range published {
				have[filepath.Base(p)] = true
			}

			var missing []string
			verifier := gateways.NewChecksumVerifier()
			for _, v := range variants {
				archive := orchestrators.PackageID(recipe.Name, version, v) + ".tar.gz"
				if !have[archive] {
					missing = append(missing, archive)
					fmt.Fprintf(a.stdout, "  MISSING %s\n", archive)
					continue
				}
				for _, ext := range []string{".sha256", ".sha512"} {
					if !have[archive+ext] {
						continue
					}
					path := filepath.Join(outputDir, archive)
					if err := verifier.VerifyChecksumFile(path, path+ext); err != nil {
						return fmt.Errorf("%s: %w", archive, err)
					}
				}
				fmt.Fprintf(a.stdout, "  OK      %s\n", archive)
			}

			if len(missing) > 0 {
				return entities.NewPipelineError(entities.ErrMissingArtifact, entities.StagePublish,
					fmt.Sprintf("%d of %d variants not published: %s", len(missing), len(variants), strings.Join(missing, ", ")), nil)
			}
			fmt.Fprintf(a.stdout, "All %d variants of %s %s published\n", len(variants), recipe.Name, version)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&recipesDir, "recipes-dir", "recipes", "Path to recipes directory")
	f.StringVar(&outputDir, "output-dir", "dist", "Directory holding published archives")
	f.StringSliceVar(&exclude, "exclude", nil, "Skip variants matching setting=value (repeatable)")
	return cmd
}
