// Package services implements the pure domain logic of the packaging pipeline.
package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/ochairo/alembic/internal/domain/entities"
)

// minVersionComponents is the major.minor.patch floor for a version string
const minVersionComponents = 3

// SplitVersion splits a dotted version into its components. Fewer than three
// components, or an empty component, is a MalformedVersion error.
func SplitVersion(version string) ([]string, error) {
	parts := strings.Split(version, ".")
	if len(parts) < minVersionComponents {
		return nil, entities.NewPipelineError(entities.ErrMalformedVersion, entities.StageVersion,
			fmt.Sprintf("%q has %d dot-separated components, need at least %d", version, len(parts), minVersionComponents), nil)
	}
	for i, p := range parts {
		if p == "" || strings.TrimSpace(p) != p {
			return nil, entities.NewPipelineError(entities.ErrMalformedVersion, entities.StageVersion,
				fmt.Sprintf("%q has an invalid component at position %d", version, i+1), nil)
		}
	}
	return parts, nil
}

// ProductVersion drops the last two dot-separated components:
// 2.8.20236.14001 becomes 2.8
func ProductVersion(version string) (string, error) {
	parts, err := SplitVersion(version)
	if err != nil {
		return "", err
	}
	return strings.Join(parts[:len(parts)-2], "."), nil
}

// GenerateVersionHeader renders the C header embedded into the binary's
// resource metadata.
func GenerateVersionHeader(version string, now time.Time) (string, error) {
	product, err := ProductVersion(version)
	if err != nil {
		return "", err
	}
	numeric := strings.ReplaceAll(version, ".", ",")

	var b strings.Builder
	b.WriteString("#ifndef VERSIONNO__H\n")
	b.WriteString("#define VERSIONNO__H\n")
	b.WriteString("\n")
	writeDefine(&b, "VERSION_FULL", version)
	b.WriteString("\n")
	writeDefine(&b, "VERSION_DATE", quote(now.Format("2006-01-02")))
	writeDefine(&b, "VERSION_TIME", quote(now.Format("15:04:05")))
	b.WriteString("\n")
	writeDefine(&b, "VERSION_FILE", numeric)
	writeDefine(&b, "VERSION_PRODUCT", numeric)
	writeDefine(&b, "VERSION_FILESTR", quote(version))
	writeDefine(&b, "VERSION_PRODUCTSTR", quote(product))
	b.WriteString("\n")
	b.WriteString("#endif\n")
	return b.String(), nil
}

// writeDefine pads macro names to a fixed column
func writeDefine(b *strings.Builder, name, value string) {
	fmt.Fprintf(b, "#define %-22s %s\n", name, value)
}

func quote(s string) string {
	return `"` + s + `"`
}
