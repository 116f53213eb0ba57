package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ochairo/alembic/internal/domain-adapters/gateways"
	"github.com/ochairo/alembic/internal/external-adapters/gpg"
)

type verifyFlags struct {
	checksum  string
	signature string
	publicKey string
	all       bool
}

func (a *app) newVerifyCommand() *cobra.Command {
	flags := &verifyFlags{}

	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify checksums and signatures of a published archive",
		Long: `Verify a published archive against its checksum sidecar (.sha256 or
.sha512) and, with --public-key, its armored OpenPGP signature (.asc).

Examples:
  alembic verify dist/tcmalloc-2.16.0.0-windows-x86_64-msvc-release.tar.gz --all
  alembic verify pkg.tar.gz --checksum pkg.tar.gz.sha512
  alembic verify pkg.tar.gz --signature pkg.tar.gz.asc --public-key release.pub`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runVerify(args[0], flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.checksum, "checksum", "", "Checksum file (.sha256 or .sha512)")
	f.StringVar(&flags.signature, "signature", "", "Detached signature (.asc)")
	f.StringVar(&flags.publicKey, "public-key", "", "OpenPGP public key used to check signatures")
	f.BoolVar(&flags.all, "all", false, "Verify every sidecar found next to the file")
	return cmd
}

func (a *app) runVerify(filePath string, flags *verifyFlags) error {
	if _, err := os.Stat(filePath); err != nil {
		return fmt.Errorf("cannot verify %s: %w", filePath, err)
	}

	checksums := []string{}
	if flags.checksum != "" {
		checksums = append(checksums, flags.checksum)
	}
	signature := flags.signature
	if flags.all {
		if flags.checksum == "" {
			for _, ext := range []string{".sha256", ".sha512"} {
				if fileExists(filePath + ext) {
					checksums = append(checksums, filePath+ext)
				}
			}
		}
		if signature == "" && fileExists(filePath+gpg.SignatureExt) {
			signature = filePath + gpg.SignatureExt
		}
	}
	if len(checksums) == 0 && signature == "" {
		return fmt.Errorf("nothing to verify: pass --checksum, --signature or --all")
	}

	fmt.Fprintf(a.stdout, "Verifying %s\n", filepath.Base(filePath))

	var errs []error
	verifier := gateways.NewChecksumVerifier()
	for _, sum := range checksums {
		if err := verifier.VerifyChecksumFile(filePath, sum); err != nil {
			fmt.Fprintf(a.stdout, "  FAIL %s: %v\n", filepath.Base(sum), err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(a.stdout, "  OK   %s\n", filepath.Base(sum))
	}

	if signature != "" {
		if err := verifySignature(filePath, signature, flags.publicKey); err != nil {
			fmt.Fprintf(a.stdout, "  FAIL %s: %v\n", filepath.Base(signature), err)
			errs = append(errs, err)
		} else {
			fmt.Fprintf(a.stdout, "  OK   %s\n", filepath.Base(signature))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	return nil
}

func verifySignature(filePath, sigPath, publicKey string) error {
	if publicKey == "" {
		return fmt.Errorf("--public-key is required to check %s", filepath.Base(sigPath))
	}
	v := gpg.NewVerifier()
	if err := v.ImportKeyFromFile(publicKey); err != nil {
		return err
	}
	return v.VerifySignatureFromFile(filePath, sigPath)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
