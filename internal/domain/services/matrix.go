package services

import (
	"fmt"
	"strings"

	"github.com/ochairo/alembic/internal/domain/entities"
)

// Exclusion drops variants whose setting equals a value, e.g. compiler=gcc
type Exclusion struct {
	Setting string
	Value   string
}

// ParseExclusion parses "setting=value"
func ParseExclusion(s string) (Exclusion, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" || value == "" {
		return Exclusion{}, fmt.Errorf("invalid exclusion %q, want setting=value", s)
	}
	switch key {
	case "os", "compiler", "arch", "build_type":
	default:
		return Exclusion{}, fmt.Errorf("unknown setting %q in exclusion", key)
	}
	return Exclusion{Setting: key, Value: value}, nil
}

func (e Exclusion) matches(v entities.Variant) bool {
	var actual string
	switch e.Setting {
	case "os":
		actual = v.Platform.OS
	case "compiler":
		actual = v.Platform.Compiler
	case "arch":
		actual = v.Platform.Arch
	case "build_type":
		actual = string(v.BuildType)
	}
	return strings.EqualFold(actual, e.Value)
}

// ExpandVariants returns the cross product of the recipe settings in
// declaration order (os, compiler, arch, build_type), minus exclusions.
func ExpandVariants(settings entities.RecipeSettings, exclusions ...Exclusion) ([]entities.Variant, error) {
	if len(settings.OS) == 0 || len(settings.Compiler) == 0 || len(settings.Arch) == 0 || len(settings.BuildType) == 0 {
		return nil, fmt.Errorf("recipe settings must list at least one os, compiler, arch and build_type")
	}

	var variants []entities.Variant
	for _, os := range settings.OS {
		for _, compiler := range settings.Compiler {
			for _, arch := range settings.Arch {
				for _, bt := range settings.BuildType {
					buildType, err := entities.ParseBuildType(bt)
					if err != nil {
						return nil, err
					}
					v := entities.Variant{
						Platform:  entities.Platform{OS: os, Arch: arch, Compiler: compiler},
						BuildType: buildType,
					}
					if excluded(v, exclusions) {
						continue
					}
					variants = append(variants, v)
				}
			}
		}
	}
	return variants, nil
}

func excluded(v entities.Variant, exclusions []Exclusion) bool {
	for _, e := range exclusions {
		if e.matches(v) {
			return true
		}
	}
	return false
}

// SupportsPlatform reports whether the recipe settings allow the platform
func SupportsPlatform(settings entities.RecipeSettings, p entities.Platform) bool {
	return containsFold(settings.OS, p.OS) &&
		containsFold(settings.Arch, p.Arch) &&
		containsFold(settings.Compiler, p.Compiler)
}

func containsFold(values []string, v string) bool {
	for _, s := range values {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
