package main

import (
	"runtime"

	"github.com/ochairo/alembic/internal/domain/entities"
)

// detectPlatform maps the host to recipe setting values
func detectPlatform() entities.Platform {
	return platformFor(runtime.GOOS, runtime.GOARCH)
}

func platformFor(goos, goarch string) entities.Platform {
	var p entities.Platform
	switch goos {
	case "windows":
		p.OS, p.Compiler = "Windows", "Visual Studio"
	case "darwin":
		p.OS, p.Compiler = "Macos", "apple-clang"
	case "linux":
		p.OS, p.Compiler = "Linux", "gcc"
	default:
		p.OS, p.Compiler = goos, "gcc"
	}

	archMap := map[string]string{
		"amd64": "x86_64",
		"386":   "x86",
		"arm64": "armv8",
		"arm":   "armv7",
	}
	p.Arch = archMap[goarch]
	if p.Arch == "" {
		p.Arch = goarch
	}
	return p
}
