package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cosmiconair/flight-dose-etl/internal/archive"
	"github.com/cosmiconair/flight-dose-etl/internal/domain"
)

func newShowCommand(opts *RootOptions) *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "show <data-id>",
		Short: "Show one archived flight",
		Long: `Show the index entry and calibration result for one flight, addressed by
its data id, e.g. "AFR81 2025-06-27 Safecast 1225".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := archive.ParseDataID(args[0])
			if err != nil {
				return err
			}

			arch, err := openArchive(opts)
			if err != nil {
				return err
			}
			defer arch.Close()

			entry, err := arch.Get(cmd.Context(), key)
			if err != nil {
				return err
			}
			rec, err := arch.Load(cmd.Context(), key)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "data id:      %s\n", entry.DataID)
			fmt.Fprintf(out, "route:        %s -> %s\n", entry.Origin, entry.Destination)
			fmt.Fprintf(out, "takeoff:      %s\n", entry.TakeoffUTC.Format("2006-01-02 15:04:05 UTC"))
			fmt.Fprintf(out, "landing:      %s\n", entry.LandingUTC.Format("2006-01-02 15:04:05 UTC"))
			fmt.Fprintf(out, "citizen:      %s\n", entry.CitizenID)
			fmt.Fprintf(out, "offset:       %d s\n", rec.Alignment.OffsetSeconds)
			fmt.Fprintf(out, "beta:         %.4e uSv/h per CPM\n", rec.Alignment.ScalingBeta)
			fmt.Fprintf(out, "fit r2:       %.4f\n", rec.Alignment.FitR2)
			fmt.Fprintf(out, "rows:         %d\n", len(rec.Rows))
			fmt.Fprintf(out, "timestamps:   %s\n", rec.Timestamps)
			fmt.Fprintf(out, "archived at:  %s\n", entry.CreatedAt.Format("2006-01-02 15:04:05 UTC"))

			if full {
				fmt.Fprintln(out)
				out.Write(domain.EncodeProcessedLog(rec))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "also print the processed log")

	return cmd
}
