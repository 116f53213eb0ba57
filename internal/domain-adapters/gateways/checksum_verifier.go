package gateways

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ChecksumVerifier verifies SHA-256 and SHA-512 checksums in pure Go
type ChecksumVerifier struct{}

// NewChecksumVerifier creates a new checksum verifier
func NewChecksumVerifier() *ChecksumVerifier {
	return &ChecksumVerifier{}
}

// VerifyChecksum verifies a file's SHA256 checksum
func (v *ChecksumVerifier) VerifyChecksum(_ context.Context, filePath, expectedSum string) error {
	actualSum, err := v.CalculateChecksum(filePath)
	if err != nil {
		return err
	}
	if !strings.EqualFold(actualSum, strings.TrimSpace(expectedSum)) {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expectedSum, actualSum)
	}
	return nil
}

// CalculateChecksum calculates the SHA256 checksum of a file
func (v *ChecksumVerifier) CalculateChecksum(filePath string) (string, error) {
	return digestFile(filePath, sha256.New())
}

// VerifyChecksumFile checks filePath against a sidecar written in the
// "<hex>  <name>" format. The digest is chosen from the hex length.
func (v *ChecksumVerifier) VerifyChecksumFile(filePath, sumPath string) error {
	//nolint:gosec // G304: checksum path is user-provided for verification
	data, err := os.ReadFile(sumPath)
	if err != nil {
		return fmt.Errorf("failed to read checksum file: %w", err)
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return fmt.Errorf("checksum file %s is empty", filepath.Base(sumPath))
	}
	expected := fields[0]
	if len(fields) > 1 && strings.TrimPrefix(fields[1], "*") != filepath.Base(filePath) {
		return fmt.Errorf("checksum file %s is for %s", filepath.Base(sumPath), fields[1])
	}

	var h hash.Hash
	switch len(expected) {
	case sha256.Size * 2:
		h = sha256.New()
	case sha512.Size * 2:
		h = sha512.New()
	default:
		return fmt.Errorf("unrecognized checksum length %d in %s", len(expected), filepath.Base(sumPath))
	}

	actual, err := digestFile(filePath, h)
	if err != nil {
		return err
	}
	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}

func digestFile(filePath string, h hash.Hash) (string, error) {
	//nolint:gosec // G304: File path is user-provided for checksum calculation
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
