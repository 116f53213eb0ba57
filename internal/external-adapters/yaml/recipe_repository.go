package yaml

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ochairo/alembic/internal/domain/entities"
	"github.com/ochairo/alembic/internal/domain/interfaces"
)

// RecipeRepository implements repositories.RecipeRepository using YAML files
type RecipeRepository struct {
	recipesDir string
	parser     *RecipeParser
	logger     interfaces.Logger
}

// NewRecipeRepository creates a new YAML-based recipe repository
func NewRecipeRepository(recipesDir string, logger interfaces.Logger) *RecipeRepository {
	return &RecipeRepository{
		recipesDir: recipesDir,
		parser:     NewRecipeParser(),
		logger:     interfaces.OrNoOp(logger),
	}
}

// GetRecipe retrieves a recipe by name from <dir>/<name>.yml
func (r *RecipeRepository) GetRecipe(_ context.Context, name string) (*entities.Recipe, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid recipe name: %q", name)
	}
	filePath := filepath.Join(r.recipesDir, name+".yml")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("recipe not found: %s", name)
	}

	return r.parser.ParseFile(filePath)
}

// ListRecipes returns all available recipes. Files that fail to parse are
// logged and skipped.
func (r *RecipeRepository) ListRecipes(_ context.Context) ([]*entities.Recipe, error) {
	entries, err := os.ReadDir(r.recipesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipes directory: %w", err)
	}

	recipes := make([]*entities.Recipe, 0)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yml") {
			continue
		}

		recipe, err := r.parser.ParseFile(filepath.Join(r.recipesDir, entry.Name()))
		if err != nil {
			r.logger.Warn("Failed to parse recipe", interfaces.F("file", entry.Name()), interfaces.Err(err))
			continue
		}
		recipes = append(recipes, recipe)
	}

	return recipes, nil
}

// GetRecipesByOS returns recipes whose settings allow the given OS
func (r *RecipeRepository) GetRecipesByOS(ctx context.Context, osName string) ([]*entities.Recipe, error) {
	all, err := r.ListRecipes(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*entities.Recipe, 0)
	for _, recipe := range all {
		for _, o := range recipe.Settings.OS {
			if strings.EqualFold(o, osName) {
				filtered = append(filtered, recipe)
				break
			}
		}
	}
	return filtered, nil
}
