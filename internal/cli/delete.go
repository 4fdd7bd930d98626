package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cosmiconair/flight-dose-etl/internal/archive"
)

func newDeleteCommand(opts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <data-id>",
		Short: "Delete one archived flight",
		Long: `Delete a flight's stored files and its index row. The files go first, so
an interrupted delete can simply be retried.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete without --yes")
			}

			key, err := archive.ParseDataID(args[0])
			if err != nil {
				return err
			}

			arch, err := openArchive(opts)
			if err != nil {
				return err
			}
			defer arch.Close()

			if err := arch.Delete(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %q\n", key)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")

	return cmd
}
