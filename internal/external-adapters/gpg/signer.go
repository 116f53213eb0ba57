package gpg

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// SignatureExt is appended to the signed file's name
const SignatureExt = ".asc"

// Signer writes armored detached signatures
type Signer struct {
	entity *openpgp.Entity
}

// NewSigner wraps an entity that holds a decrypted private key
func NewSigner(entity *openpgp.Entity) (*Signer, error) {
	if entity == nil || entity.PrivateKey == nil {
		return nil, fmt.Errorf("signing key has no private key")
	}
	if entity.PrivateKey.Encrypted {
		return nil, fmt.Errorf("signing key is still encrypted")
	}
	return &Signer{entity: entity}, nil
}

// LoadSigner reads an armored private key and decrypts it with passphrase
// when needed. The first entity of the keyring signs.
func LoadSigner(keyPath string, passphrase []byte) (*Signer, error) {
	//nolint:gosec // G304: keyPath is user-provided signing key
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	if len(keyring) == 0 {
		return nil, fmt.Errorf("no keys found in %s", keyPath)
	}

	entity := keyring[0]
	if err := decryptEntity(entity, passphrase); err != nil {
		return nil, err
	}
	return NewSigner(entity)
}

func decryptEntity(entity *openpgp.Entity, passphrase []byte) error {
	if entity.PrivateKey == nil {
		return fmt.Errorf("signing key has no private key")
	}
	if entity.PrivateKey.Encrypted {
		if len(passphrase) == 0 {
			return errors.New("signing key is encrypted and no passphrase was given")
		}
		if err := entity.PrivateKey.Decrypt(passphrase); err != nil {
			return fmt.Errorf("failed to decrypt signing key: %w", err)
		}
	}
	for _, sub := range entity.Subkeys {
		if sub.PrivateKey != nil && sub.PrivateKey.Encrypted {
			if err := sub.PrivateKey.Decrypt(passphrase); err != nil {
				return fmt.Errorf("failed to decrypt signing subkey: %w", err)
			}
		}
	}
	return nil
}

// SignFile writes <filePath>.asc and returns its path
func (s *Signer) SignFile(filePath string) (string, error) {
	//nolint:gosec // G304: filePath is a published archive
	in, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer in.Close()

	var sig bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&sig, s.entity, in, nil); err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", filePath, err)
	}

	sigPath := filePath + SignatureExt
	if err := os.WriteFile(sigPath, sig.Bytes(), 0600); err != nil {
		return "", fmt.Errorf("failed to write signature: %w", err)
	}
	return sigPath, nil
}

// KeyID returns the signing key's id in hex
func (s *Signer) KeyID() string {
	return s.entity.PrimaryKey.KeyIdString()
}
