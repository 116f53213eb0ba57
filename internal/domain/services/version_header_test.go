package services

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ochairo/alembic/internal/domain/entities"
)

func TestGenerateVersionHeader(t *testing.T) {
	now := time.Date(2020, time.August, 23, 14, 0, 1, 0, time.UTC)

	header, err := GenerateVersionHeader("2.8.20236.14001", now)
	require.NoError(t, err)

	want := `#ifndef VERSIONNO__H
#define VERSIONNO__H

#define VERSION_FULL           2.8.20236.14001

#define VERSION_DATE           "2020-08-23"
#define VERSION_TIME           "14:00:01"

#define VERSION_FILE           2,8,20236,14001
#define VERSION_PRODUCT        2,8,20236,14001
#define VERSION_FILESTR        "2.8.20236.14001"
#define VERSION_PRODUCTSTR     "2.8"

#endif
`
	assert.Equal(t, want, header)
}

func TestProductVersion(t *testing.T) {
	tests := []struct {
		version string
		want    string
	}{
		{"2.8.20236.14001", "2.8"},
		{"2.17.0-rc1+0", "2"},
		{"1.2.3", "1"},
		{"10.20.30.40.50", "10.20.30"},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			got, err := ProductVersion(tt.version)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			// product string is the input minus its last two components
			parts := strings.Split(tt.version, ".")
			assert.Equal(t, strings.Join(parts[:len(parts)-2], "."), got)
		})
	}
}

func TestGenerateVersionHeader_Malformed(t *testing.T) {
	for _, version := range []string{"", "2", "2.8", "2..8", "2.8.", ".2.8", "2. 8.1"} {
		t.Run(version, func(t *testing.T) {
			_, err := GenerateVersionHeader(version, time.Now())
			require.Error(t, err)
			assert.True(t, errors.Is(err, entities.ErrMalformedVersion), "got %v", err)

			var pe *entities.PipelineError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, entities.StageVersion, pe.Stage)
		})
	}
}

func TestGenerateVersionHeader_PrereleaseKeepsSuffix(t *testing.T) {
	header, err := GenerateVersionHeader("2.17.0-rc1+0", time.Now())
	require.NoError(t, err)

	assert.Contains(t, header, "#define VERSION_FILE           2,17,0-rc1+0\n")
	assert.Contains(t, header, "#define VERSION_PRODUCTSTR     \"2\"\n")
}

// FuzzProductVersion checks the two-component-drop rule on arbitrary input
func FuzzProductVersion(f *testing.F) {
	f.Add("2.8.20236.14001")
	f.Add("2.17.0-rc1+0")
	f.Add("1..2")
	f.Add("")

	f.Fuzz(func(t *testing.T, version string) {
		got, err := ProductVersion(version)
		if err != nil {
			if !errors.Is(err, entities.ErrMalformedVersion) {
				t.Fatalf("unexpected error kind: %v", err)
			}
			return
		}
		parts := strings.Split(version, ".")
		if want := strings.Join(parts[:len(parts)-2], "."); got != want {
			t.Fatalf("ProductVersion(%q) = %q, want %q", version, got, want)
		}
	})
}
