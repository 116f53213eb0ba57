// Package yaml provides YAML-based recipe parsing and repository implementations.
package yaml

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ochairo/alembic/internal/domain/entities"
)

// yamlRecipe represents the raw YAML structure
type yamlRecipe struct {
	Name          string            `yaml:"name"`
	Version       string            `yaml:"version"`
	License       string            `yaml:"license"`
	Description   string            `yaml:"description"`
	URL           string            `yaml:"url"`
	Source        yamlSource        `yaml:"source"`
	Settings      yamlSettings      `yaml:"settings"`
	Options       yamlOptions       `yaml:"options"`
	Patches       []yamlPatch       `yaml:"patches"`
	VersionHeader yamlVersionHeader `yaml:"version_header"`
	Build         yamlBuild         `yaml:"build"`
	Package       yamlPackage       `yaml:"package"`
	Signing       yamlSigning       `yaml:"signing"`
}

type yamlSource struct {
	URL             string `yaml:"url"`
	SHA256          string `yaml:"sha256"`
	StripComponents int    `yaml:"strip_components"`
}

type yamlSettings struct {
	OS        []string `yaml:"os"`
	Compiler  []string `yaml:"compiler"`
	BuildType []string `yaml:"build_type"`
	Arch      []string `yaml:"arch"`
}

type yamlOptions struct {
	// DLLSign defaults to true when omitted
	DLLSign *bool `yaml:"dll_sign"`
}

type yamlPatch struct {
	File     string   `yaml:"file"`
	OS       []string `yaml:"os"`
	Arch     []string `yaml:"arch"`
	Compiler []string `yaml:"compiler"`
}

type yamlVersionHeader struct {
	Path      string   `yaml:"path"`
	Resources []string `yaml:"resources"`
}

type yamlBuild struct {
	Native    *yamlNative    `yaml:"native"`
	Generator *yamlGenerator `yaml:"generator"`
}

type yamlNative struct {
	Solution       string            `yaml:"solution"`
	Targets        []string          `yaml:"targets"`
	Configurations map[string]string `yaml:"configurations"`
}

type yamlGenerator struct {
	SourceDir   string            `yaml:"source_dir"`
	BuildDir    string            `yaml:"build_dir"`
	Generator   string            `yaml:"generator"`
	Targets     []string          `yaml:"targets"`
	Definitions map[string]string `yaml:"definitions"`
}

type yamlPackage struct {
	Rules   []yamlCopyRule   `yaml:"rules"`
	Headers []yamlHeaderRule `yaml:"headers"`
}

type yamlCopyRule struct {
	Patterns  []string `yaml:"patterns"`
	Dirs      []string `yaml:"dirs"`
	Dst       string   `yaml:"dst"`
	BuildType string   `yaml:"build_type"`
	OS        []string `yaml:"os"`
	Optional  bool     `yaml:"optional"`
}

type yamlHeaderRule struct {
	Patterns []string `yaml:"patterns"`
	Dirs     []string `yaml:"dirs"`
}

type yamlSigning struct {
	TimestampURL string `yaml:"timestamp_url"`
}

// RecipeParser parses YAML recipe files
type RecipeParser struct{}

// NewRecipeParser creates a new YAML parser
func NewRecipeParser() *RecipeParser {
	return &RecipeParser{}
}

// ParseFile parses a YAML recipe file into a Recipe entity. The recipe's Dir
// is set to the file's directory.
func (p *RecipeParser) ParseFile(filePath string) (*entities.Recipe, error) {
	//nolint:gosec // G304: filePath is recipe definition path from repository
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	recipe, err := p.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(filePath), err)
	}
	recipe.Dir = filepath.Dir(filePath)
	return recipe, nil
}

// Parse parses YAML bytes into a Recipe entity
func (p *RecipeParser) Parse(data []byte) (*entities.Recipe, error) {
	var y yamlRecipe
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if y.Name == "" {
		return nil, fmt.Errorf("recipe must have a name")
	}
	if y.Version == "" {
		return nil, fmt.Errorf("recipe %s must have a version", y.Name)
	}
	if y.Source.StripComponents < 0 {
		return nil, fmt.Errorf("recipe %s: strip_components cannot be negative", y.Name)
	}

	recipe := &entities.Recipe{
		Name:        y.Name,
		Version:     y.Version,
		License:     y.License,
		Description: y.Description,
		URL:         y.URL,
		Source: entities.RecipeSource{
			URL:             y.Source.URL,
			SHA256:          y.Source.SHA256,
			StripComponents: y.Source.StripComponents,
		},
		Settings: entities.RecipeSettings{
			OS:        y.Settings.OS,
			Compiler:  y.Settings.Compiler,
			BuildType: y.Settings.BuildType,
			Arch:      y.Settings.Arch,
		},
		Options: entities.RecipeOptions{DLLSign: y.Options.DLLSign == nil || *y.Options.DLLSign},
		VersionHeader: entities.VersionHeaderConfig{
			Path:      y.VersionHeader.Path,
			Resources: y.VersionHeader.Resources,
		},
		Build:   convertBuild(y.Build),
		Signing: entities.RecipeSigning{TimestampURL: y.Signing.TimestampURL},
	}

	for i, yp := range y.Patches {
		if yp.File == "" {
			return nil, fmt.Errorf("recipe %s: patch %d has no file", y.Name, i)
		}
		recipe.Patches = append(recipe.Patches, entities.PatchEntry{
			File:     yp.File,
			OS:       yp.OS,
			Arch:     yp.Arch,
			Compiler: yp.Compiler,
		})
	}

	pkg, err := convertPackage(y.Package)
	if err != nil {
		return nil, fmt.Errorf("recipe %s: %w", y.Name, err)
	}
	recipe.Package = pkg

	return recipe, nil
}

func convertBuild(yb yamlBuild) entities.RecipeBuild {
	var build entities.RecipeBuild
	if yb.Native != nil {
		build.Native = &entities.NativeBuild{
			Solution:       yb.Native.Solution,
			Targets:        yb.Native.Targets,
			Configurations: yb.Native.Configurations,
		}
	}
	if yb.Generator != nil {
		build.Generator = &entities.GeneratorBuild{
			SourceDir:   yb.Generator.SourceDir,
			BuildDir:    yb.Generator.BuildDir,
			Generator:   yb.Generator.Generator,
			Targets:     yb.Generator.Targets,
			Definitions: yb.Generator.Definitions,
		}
	}
	return build
}

func convertPackage(yp yamlPackage) (entities.RecipePackage, error) {
	var pkg entities.RecipePackage
	for i, r := range yp.Rules {
		if r.Dst != entities.LayoutLib && r.Dst != entities.LayoutBin {
			return pkg, fmt.Errorf("package rule %d: dst must be lib or bin, got %q", i, r.Dst)
		}
		if len(r.Patterns) == 0 {
			return pkg, fmt.Errorf("package rule %d has no patterns", i)
		}
		dirs := r.Dirs
		if len(dirs) == 0 {
			dirs = []string{"."}
		}
		var buildType entities.BuildType
		if r.BuildType != "" {
			bt, err := entities.ParseBuildType(r.BuildType)
			if err != nil {
				return pkg, fmt.Errorf("package rule %d: %w", i, err)
			}
			buildType = bt
		}
		pkg.Rules = append(pkg.Rules, entities.CopyRule{
			Patterns:  r.Patterns,
			Dirs:      dirs,
			Dst:       r.Dst,
			BuildType: string(buildType),
			OS:        r.OS,
			Optional:  r.Optional,
		})
	}
	for i, h := range yp.Headers {
		if len(h.Patterns) == 0 || len(h.Dirs) == 0 {
			return pkg, fmt.Errorf("header rule %d needs patterns and dirs", i)
		}
		pkg.Headers = append(pkg.Headers, entities.HeaderRule{Patterns: h.Patterns, Dirs: h.Dirs})
	}
	return pkg, nil
}
