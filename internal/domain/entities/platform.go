package entities

import (
	"fmt"
	"strings"
)

// BuildType selects artifact naming and the optimization profile
type BuildType string

const (
	// BuildTypeDebug is an unoptimized build with debug runtime
	BuildTypeDebug BuildType = "Debug"
	// BuildTypeRelease is an optimized build
	BuildTypeRelease BuildType = "Release"
)

// ParseBuildType accepts Debug or Release, case-insensitively
func ParseBuildType(s string) (BuildType, error) {
	switch strings.ToLower(s) {
	case "debug":
		return BuildTypeDebug, nil
	case "release":
		return BuildTypeRelease, nil
	default:
		return "", fmt.Errorf("invalid build type %q (valid: Debug, Release)", s)
	}
}

// BuildOptions are the per-run package options
type BuildOptions struct {
	DLLSign   bool
	BuildType BuildType
}

// Platform describes the target the pipeline builds for
type Platform struct {
	OS              string
	Arch            string
	Compiler        string
	CompilerVersion string
}

// IsWindows reports whether the target OS is Windows
func (p Platform) IsWindows() bool {
	return strings.EqualFold(p.OS, "Windows")
}

// String returns a compact platform identifier such as windows-x86_64-msvc
func (p Platform) String() string {
	compiler := strings.ReplaceAll(strings.ToLower(p.Compiler), " ", "")
	if compiler == "visualstudio" {
		compiler = "msvc"
	}
	return fmt.Sprintf("%s-%s-%s", strings.ToLower(p.OS), p.Arch, compiler)
}

// Variant is one point of a recipe's settings matrix
type Variant struct {
	Platform  Platform
	BuildType BuildType
}

// String returns the variant identifier used in layout and archive names
func (v Variant) String() string {
	return fmt.Sprintf("%s-%s", v.Platform, strings.ToLower(string(v.BuildType)))
}
