package gateways

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ochairo/alembic/internal/domain/entities"
	"github.com/ochairo/alembic/internal/domain/interfaces"
)

const defaultSigntool = "signtool"

// DigestAlgorithms are applied to every file in this order. The second
// signature is appended to the first.
var DigestAlgorithms = []string{"sha1", "sha256"}

// SigntoolConfig locates the signing tool and certificate
type SigntoolConfig struct {
	SigntoolPath string
	// CertificateFile is a PFX file. When empty signtool picks the best
	// certificate from the store (/a).
	CertificateFile string
	Password        string
	TimestampURL    string
}

// SigntoolSigner code-signs dynamic libraries with signtool
type SigntoolSigner struct {
	runner interfaces.CommandRunner
	logger interfaces.Logger
	config SigntoolConfig
}

// NewSigntoolSigner creates a new signer
func NewSigntoolSigner(runner interfaces.CommandRunner, logger interfaces.Logger, config SigntoolConfig) *SigntoolSigner {
	if config.SigntoolPath == "" {
		config.SigntoolPath = defaultSigntool
	}
	return &SigntoolSigner{runner: runner, logger: interfaces.OrNoOp(logger), config: config}
}

// SignAll signs every file once per digest algorithm and returns the number
// of signing invocations. Nothing runs when signing is disabled or the
// platform has no signing option. Release signatures are always
// timestamped, so a Release run without a timestamp URL fails.
func (s *SigntoolSigner) SignAll(ctx context.Context, opts entities.BuildOptions, platform entities.Platform, files []string) (int, error) {
	if !opts.DLLSign || !platform.IsWindows() {
		s.logger.Debug("Signing skipped", interfaces.F("dll_sign", opts.DLLSign), interfaces.F("os", platform.OS))
		return 0, nil
	}

	timestamp := opts.BuildType == entities.BuildTypeRelease
	if timestamp && s.config.TimestampURL == "" && len(files) > 0 {
		return 0, entities.NewPipelineError(entities.ErrSigningFailed, entities.StageSign,
			"no timestamp server configured for Release signing", nil)
	}
	calls := 0
	for _, file := range files {
		for i, alg := range DigestAlgorithms {
			cmd := s.SignCommand(file, alg, i > 0, timestamp)
			s.logger.Info("Sign "+filepath.Base(file), interfaces.F("digest", alg))

			calls++
			result, err := s.runner.Run(ctx, cmd)
			if err != nil {
				pe := entities.NewPipelineError(entities.ErrSigningFailed, entities.StageSign,
					fmt.Sprintf("%s (%s)", filepath.Base(file), alg), err)
				if result != nil {
					pe.ExitCode = result.ExitCode
					pe.Output = result.Output
				}
				return calls, pe
			}
		}
	}
	return calls, nil
}

// SignCommand returns the signtool invocation for one file and digest
func (s *SigntoolSigner) SignCommand(file, alg string, appendSig, timestamp bool) interfaces.Command {
	args := []string{"sign", "/fd", alg}
	if appendSig {
		args = append(args, "/as")
	}
	if s.config.CertificateFile != "" {
		args = append(args, "/f", s.config.CertificateFile)
		if s.config.Password != "" {
			args = append(args, "/p", s.config.Password)
		}
	} else {
		args = append(args, "/a")
	}
	if timestamp && s.config.TimestampURL != "" {
		args = append(args, "/tr", s.config.TimestampURL, "/td", alg)
	}
	args = append(args, file)

	return interfaces.Command{
		Name:        s.config.SigntoolPath,
		Args:        args,
		Dir:         filepath.Dir(file),
		Description: "signtool " + alg,
	}
}
