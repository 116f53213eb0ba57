package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ochairo/alembic/internal/domain-adapters/gateways"
	"github.com/ochairo/alembic/internal/external-adapters/yaml"
)

func (a *app) newFetchCommand() *cobra.Command {
	var (
		recipesDir string
		dest       string
		retries    int
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "fetch <recipe>",
		Short: "Download and extract a recipe's pristine source",
		Long: `Download the recipe's source tarball, verify its SHA-256 and extract
it. The destination must be empty or absent. Downloads are retried with
backoff; the build pipeline itself never downloads.

Examples:
  alembic fetch tcmalloc
  alembic fetch tcmalloc --dest /tmp/tcmalloc-src`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := yaml.NewRecipeRepository(recipesDir, a.logger)
			recipe, err := repo.GetRecipe(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			destDir := dest
			if destDir == "" {
				destDir = filepath.Join("sources", recipe.Name)
			}

			config := gateways.DefaultDownloaderConfig()
			config.RetryMax = retries
			config.Timeout = timeout
			downloader := gateways.NewDownloader(a.logger, config)

			if err := downloader.FetchSource(cmd.Context(), recipe.Source, destDir); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Fetched %s %s into %s\n", recipe.Name, recipe.Version, destDir)
			return nil
		},
	}

	defaults := gateways.DefaultDownloaderConfig()
	f := cmd.Flags()
	f.StringVar(&recipesDir, "recipes-dir", "recipes", "Path to recipes directory")
	f.StringVar(&dest, "dest", "", "Destination directory (default: sources/<recipe>)")
	f.IntVar(&retries, "retries", defaults.RetryMax, "Maximum download retries")
	f.DurationVar(&timeout, "timeout", defaults.Timeout, "Per-request timeout")
	return cmd
}
