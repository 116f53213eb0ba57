package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ochairo/alembic/internal/domain/interfaces"
	"github.com/ochairo/alembic/internal/domain/services"
)

func (a *app) newHeaderCommand() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "header <version>",
		Short: "Print the version header for a dotted version",
		Long: `Generate the C header with product and file version macros for a
dotted version such as 2.16.0.0. The header is printed to stdout unless
--out names a file.

Examples:
  alembic header 2.16.0.0
  alembic header 2.16.0.0 --out src/windows/version.h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			header, err := services.GenerateVersionHeader(args[0], a.now())
			if err != nil {
				return err
			}
			if out == "" {
				_, err := fmt.Fprint(a.stdout, header)
				return err
			}

			if err := os.MkdirAll(filepath.Dir(out), 0750); err != nil {
				return fmt.Errorf("failed to create header directory: %w", err)
			}
			//nolint:gosec // G306: headers are part of the source tree
			if err := os.WriteFile(out, []byte(header), 0644); err != nil {
				return fmt.Errorf("failed to write header: %w", err)
			}
			a.logger.Info("Wrote version header", interfaces.F("path", out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the header to this file")
	return cmd
}
