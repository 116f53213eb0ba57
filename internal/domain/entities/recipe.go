// Package entities defines the domain models of the packaging pipeline.
package entities

import "strings"

// Recipe represents a native library packaging recipe loaded from YAML
type Recipe struct {
	Name          string
	Version       string
	License       string
	Description   string
	URL           string
	Source        RecipeSource
	Settings      RecipeSettings
	Options       RecipeOptions
	Patches       []PatchEntry
	VersionHeader VersionHeaderConfig
	Build         RecipeBuild
	Package       RecipePackage
	Signing       RecipeSigning

	// Dir is the directory the recipe was loaded from. Patch files and
	// version header resources are resolved relative to it.
	Dir string
}

// RecipeSource describes where the pristine source tarball comes from
type RecipeSource struct {
	URL             string
	SHA256          string
	StripComponents int
}

// RecipeSettings lists the values each setting may take. Their cross
// product is the variant matrix.
type RecipeSettings struct {
	OS        []string
	Compiler  []string
	BuildType []string
	Arch      []string
}

// RecipeOptions holds recipe-level option defaults
type RecipeOptions struct {
	DLLSign bool
}

// PatchEntry is one element of a PatchSet. Empty filter lists match any value.
type PatchEntry struct {
	File     string
	OS       []string
	Arch     []string
	Compiler []string
}

// Matches reports whether the entry applies to the target platform
func (p PatchEntry) Matches(platform Platform) bool {
	return matchesAny(p.OS, platform.OS) &&
		matchesAny(p.Arch, platform.Arch) &&
		matchesAny(p.Compiler, platform.Compiler)
}

// VersionHeaderConfig controls where the generated version header lands
type VersionHeaderConfig struct {
	Path      string   // relative to the source root; empty disables generation
	Resources []string // recipe-relative files copied next to the header
}

// RecipeBuild holds both build paths; the strategy selector picks one
type RecipeBuild struct {
	Native    *NativeBuild
	Generator *GeneratorBuild
}

// NativeBuild configures the platform-native project build (MSBuild)
type NativeBuild struct {
	Solution       string
	Targets        []string
	Configurations map[string]string // build type -> project configuration
}

// GeneratorBuild configures the generator-driven build (CMake)
type GeneratorBuild struct {
	SourceDir   string
	BuildDir    string
	Generator   string
	Targets     []string
	Definitions map[string]string
}

// RecipePackage describes the package layout contents
type RecipePackage struct {
	Rules   []CopyRule
	Headers []HeaderRule
}

// CopyRule copies matching build outputs into a layout directory
type CopyRule struct {
	Patterns  []string
	Dirs      []string // candidate source dirs, relative to the source root
	Dst       string   // "lib" or "bin"
	BuildType string   // only applies to this build type when set
	OS        []string // only applies to these operating systems when set
	Optional  bool
}

// AppliesTo reports whether the rule is relevant for the variant
func (r CopyRule) AppliesTo(v Variant) bool {
	if r.BuildType != "" && !strings.EqualFold(r.BuildType, string(v.BuildType)) {
		return false
	}
	return matchesAny(r.OS, v.Platform.OS)
}

// HeaderRule copies public headers, flattened, into include/
type HeaderRule struct {
	Patterns []string
	Dirs     []string
}

// RecipeSigning configures the code-signing step
type RecipeSigning struct {
	TimestampURL string
}

func matchesAny(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return true
		}
	}
	return false
}
