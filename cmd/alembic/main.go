// Package main provides the alembic CLI for patching, building and
// packaging native libraries.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/ochairo/alembic/internal/domain/interfaces"
	"github.com/ochairo/alembic/internal/external-adapters/zerolog"
)

// Set at build time via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(int(code))
}

// app holds state shared by every subcommand
type app struct {
	stdout io.Writer
	stderr io.Writer

	verbose   bool
	logFormat string
	logger    interfaces.Logger

	now func() time.Time
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) ExitCode {
	a := &app{stdout: stdout, stderr: stderr, now: time.Now}
	root := a.newRootCommand()
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCodeFor(err)
	}
	return ExitSuccess
}

func (a *app) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "alembic",
		Short: "Patch, build and package native libraries",
		Long: `alembic turns a pristine library source tree into a package layout
(include/, lib/, bin/) for one platform variant at a time. It stamps a
version header, applies the recipe's patches, builds with the native or
generator toolchain, copies the artifacts and code-signs dynamic libraries.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zerolog.New(zerolog.Options{
				Format:  a.logFormat,
				Verbose: a.verbose,
				Out:     a.stderr,
			})
			if err != nil {
				return err
			}
			a.logger = logger.With(interfaces.F("command", cmd.Name()))
			return nil
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", zerolog.FormatConsole, "Log format: console or json")

	root.AddCommand(a.newBuildCommand())
	root.AddCommand(a.newHeaderCommand())
	root.AddCommand(a.newFetchCommand())
	root.AddCommand(a.newListCommand())
	root.AddCommand(a.newVerifyCommand())
	root.AddCommand(a.newValidateReleaseCommand())

	return root
}
