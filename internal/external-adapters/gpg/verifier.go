// Package gpg provides OpenPGP signing and verification of published
// package archives.
package gpg

import (
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
)

const armoredSignaturePrefix = "-----BEGIN PGP SIGNATURE---"

// Verifier checks detached signatures using ProtonMail's go-crypto
type Verifier struct {
	keyring openpgp.EntityList
}

// NewVerifier creates a new verifier with an empty keyring
func NewVerifier() *Verifier {
	return &Verifier{keyring: make(openpgp.EntityList, 0)}
}

// ImportKeyFromFile imports an armored or binary public key file
func (v *Verifier) ImportKeyFromFile(keyPath string) error {
	//nolint:gosec // G304: keyPath is user-provided for key import
	f, err := os.Open(keyPath)
	if err != nil {
		return fmt.Errorf("failed to open key file: %w", err)
	}
	//nolint:errcheck // Defer close
	defer f.Close()

	entities, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		if _, seekErr := f.Seek(0, io.SeekStart); seekErr != nil {
			return fmt.Errorf("failed to reset file: %w", seekErr)
		}
		entities, err = openpgp.ReadKeyRing(f)
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}
	}

	if len(entities) == 0 {
		return fmt.Errorf("no keys found in file")
	}

	v.keyring = append(v.keyring, entities...)
	return nil
}

// VerifySignatureFromFile verifies a detached signature stored next to the
// data file. Armored and binary signatures are both accepted.
func (v *Verifier) VerifySignatureFromFile(filePath, sigPath string) error {
	if len(v.keyring) == 0 {
		return fmt.Errorf("no GPG keys imported, call ImportKeyFromFile first")
	}

	//nolint:gosec // G304: sigPath is user-provided for verification
	sigFile, err := os.Open(sigPath)
	if err != nil {
		return fmt.Errorf("failed to open signature file: %w", err)
	}
	//nolint:errcheck // Defer close
	defer sigFile.Close()

	//nolint:gosec // G304: filePath is user-provided for verification
	dataFile, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open data file: %w", err)
	}
	//nolint:errcheck // Defer close
	defer dataFile.Close()

	peek := make([]byte, len(armoredSignaturePrefix))
	n, _ := io.ReadFull(sigFile, peek)
	isArmored := n == len(peek) && string(peek) == armoredSignaturePrefix
	if _, err := sigFile.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to reset signature file: %w", err)
	}

	if isArmored {
		_, err = openpgp.CheckArmoredDetachedSignature(v.keyring, dataFile, sigFile, nil)
	} else {
		_, err = openpgp.CheckDetachedSignature(v.keyring, dataFile, sigFile, nil)
	}
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

// KeyringSize returns the number of keys in the keyring
func (v *Verifier) KeyringSize() int {
	return len(v.keyring)
}
