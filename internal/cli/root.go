// Package cli implements the archivectl command tree.
package cli

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cosmiconair/flight-dose-etl/internal/archive"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ArchiveRoot string
	Verbose     bool
}

// NewRootCommand creates the root command for the archivectl CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "archivectl",
		Short: "Operate on the flight dose archive",
		Long: `archivectl inspects and maintains the archive of calibrated flight
radiation records: the SQLite index plus the raw/reference/processed
file trees beneath the archive root.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.ArchiveRoot == "" {
				return errors.New("archive root not set: pass --archive-root or set ARCHIVE_ROOT")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ArchiveRoot, "archive-root", os.Getenv("ARCHIVE_ROOT"),
		"archive root directory (defaults to $ARCHIVE_ROOT)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging")

	cmd.AddCommand(newSearchCommand(opts))
	cmd.AddCommand(newShowCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newReprocessCommand(opts))
	cmd.AddCommand(newScanCommand(opts))

	return cmd
}

// openArchive opens the archive for one command invocation. Logs go to
// stderr so command output stays parseable.
func openArchive(opts *RootOptions) (*archive.Archive, error) {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return archive.Open(opts.ArchiveRoot, logger)
}
