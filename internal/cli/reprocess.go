package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cosmiconair/flight-dose-etl/internal/archive"
	"github.com/cosmiconair/flight-dose-etl/internal/domain"
)

func newReprocessCommand(opts *RootOptions) *cobra.Command {
	var (
		minOverlap  time.Duration
		window      time.Duration
		step        time.Duration
		minFitR2    float64
		forceOrigin bool
	)

	cmd := &cobra.Command{
		Use:   "reprocess <data-id>",
		Short: "Recalibrate one flight from its stored raw inputs",
		Long: `Re-run normalization and alignment for an archived flight using the raw
submission bundle stored next to it, then atomically replace the
processed record and its index row. Useful after a reference re-upload
or a change of calibration parameters.`,
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

			raw, err := arch.LoadRaw(cmd.Context(), key)
			if err != nil {
				return err
			}
			if raw.Submission == nil {
				return fmt.Errorf("no raw bundle stored for %q, cannot reprocess", key)
			}

			var sub domain.Submission
			if err := json.Unmarshal(raw.Submission, &sub); err != nil {
				return fmt.Errorf("parse stored bundle: %w", err)
			}

			rows, err := domain.Normalize(sub.Readings, sub.Trajectory, sub.Simulation,
				domain.NormalizeConfig{MinOverlap: minOverlap})
			if err != nil {
				return err
			}
			alignment, err := domain.Align(rows, domain.AlignConfig{
				Window:      window,
				Step:        step,
				MinFitR2:    minFitR2,
				ForceOrigin: forceOrigin,
			})
			if err != nil {
				return err
			}

			rec := domain.BuildRecord(sub.Meta, sub.Timestamps, rows, alignment)
			entry, err := arch.Reprocess(cmd.Context(), &rec, raw)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "reprocessed %s: offset %d s, beta %.4e, fit r2 %.4f\n",
				entry.DataID, alignment.OffsetSeconds, alignment.ScalingBeta, alignment.FitR2)
			return nil
		},
	}

	cmd.Flags().DurationVar(&minOverlap, "min-overlap", 30*time.Minute, "minimum common time window")
	cmd.Flags().DurationVar(&window, "window", 10*time.Minute, "offset search half-window")
	cmd.Flags().DurationVar(&step, "step", time.Second, "offset search step")
	cmd.Flags().Float64Var(&minFitR2, "min-fit-r2", 0.6, "fit confidence threshold")
	cmd.Flags().BoolVar(&forceOrigin, "force-origin", true, "force the scaling fit through the origin")

	return cmd
}
