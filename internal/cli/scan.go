package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newScanCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Cross-check the index against the stored files",
		Long: `Scan reports every divergence between the index and the file trees:
index rows whose files are missing, and stored file sets without an
index row. Nothing is repaired; deciding is the operator's job.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			arch, err := openArchive(opts)
			if err != nil {
				return err
			}
			defer arch.Close()

			divs, err := arch.Scan(cmd.Context())
			if err != nil {
				return err
			}
			if len(divs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "archive is consistent")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATA ID\tKIND\tDETAIL")
			for _, d := range divs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.DataID, d.Kind, d.Detail)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			return fmt.Errorf("found %d divergence(s)", len(divs))
		},
	}
}
