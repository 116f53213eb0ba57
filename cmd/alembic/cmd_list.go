package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ochairo/alembic/internal/domain/entities"
	"github.com/ochairo/alembic/internal/domain/services"
	"github.com/ochairo/alembic/internal/external-adapters/yaml"
)

func (a *app) newListCommand() *cobra.Command {
	var (
		recipesDir string
		osFilter   string
		variants   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available recipes",
		Long: `List the recipes in the recipes directory with their settings.

Examples:
  alembic list
  alembic list --os Windows
  alembic list --variants`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := yaml.NewRecipeRepository(recipesDir, a.logger)

			var (
				recipes []*entities.Recipe
				err     error
			)
			if osFilter != "" {
				recipes, err = repo.GetRecipesByOS(cmd.Context(), osFilter)
			} else {
				recipes, err = repo.ListRecipes(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("failed to list recipes: %w", err)
			}

			if osFilter != "" {
				fmt.Fprintf(a.stdout, "Recipes for %s (%d total):\n\n", osFilter, len(recipes))
			} else {
				fmt.Fprintf(a.stdout, "Available recipes (%d total):\n\n", len(recipes))
			}
			for _, r := range recipes {
				if err := a.printRecipe(r, variants); err != nil {
					return err
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&recipesDir, "recipes-dir", "recipes", "Path to recipes directory")
	f.StringVar(&osFilter, "os", "", "Only show recipes supporting this OS")
	f.BoolVar(&variants, "variants", false, "List every variant of each recipe")
	return cmd
}

func (a *app) printRecipe(r *entities.Recipe, withVariants bool) error {
	fmt.Fprintf(a.stdout, "  %-20s %s\n", r.Name, r.Description)
	fmt.Fprintf(a.stdout, "  %-20s Version: %s\n", "", r.Version)
	fmt.Fprintf(a.stdout, "  %-20s OS: %s\n", "", strings.Join(r.Settings.OS, ", "))
	fmt.Fprintf(a.stdout, "  %-20s Arch: %s\n", "", strings.Join(r.Settings.Arch, ", "))
	fmt.Fprintf(a.stdout, "  %-20s Compilers: %s\n", "", strings.Join(r.Settings.Compiler, ", "))
	fmt.Fprintf(a.stdout, "  %-20s Patches: %d\n", "", len(r.Patches))

	if withVariants {
		vs, err := services.ExpandVariants(r.Settings)
		if err != nil {
			return fmt.Errorf("recipe %s: %w", r.Name, err)
		}
		for _, v := range vs {
			fmt.Fprintf(a.stdout, "  %-20s - %s\n", "", v)
		}
	}
	fmt.Fprintln(a.stdout)
	return nil
}
