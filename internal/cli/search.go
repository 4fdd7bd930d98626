package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cosmiconair/flight-dose-etl/internal/archive"
)

func newSearchCommand(opts *RootOptions) *cobra.Command {
	var criteria archive.Criteria

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the archive index",
		Long: `Search archived flights by any conjunction of flight number, UTC takeoff
date, and device id. At least one criterion is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			arch, err := openArchive(opts)
			if err != nil {
				return err
			}
			defer arch.Close()

			entries, err := arch.Search(cmd.Context(), criteria)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matching flights")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATA ID\tORIGIN\tDESTINATION\tFIT R2\tARCHIVED")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%s\n",
					e.DataID, e.Origin, e.Destination, e.FitR2,
					e.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&criteria.FlightNumber, "flight", "", "flight number, e.g. AFR81")
	cmd.Flags().StringVar(&criteria.Date, "date", "", "UTC takeoff date, YYYY-MM-DD")
	cmd.Flags().StringVar(&criteria.DeviceID, "device", "", "device id, e.g. \"Safecast 1225\"")

	return cmd
}
