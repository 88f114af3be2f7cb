package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-timeline/internal/config"
	"github.com/heimdex/heimdex-timeline/internal/db"
	"github.com/heimdex/heimdex-timeline/internal/logging"
	"github.com/heimdex/heimdex-timeline/internal/segmentation"
	"github.com/heimdex/heimdex-timeline/internal/timecode"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List saved segmentations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeDB, err := openSegmentations()
		if err != nil {
			return err
		}
		defer closeDB()

		list, err := svc.List(context.Background(), sessionsLimit)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No saved segmentations.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tFILE\tDURATION\tCUTS\tHIDDEN\tUPDATED")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				s.SessionID, s.FileName, timecode.FormatDuration(s.DurationSeconds),
				s.CutCount, s.HiddenCount, humanize.Time(s.UpdatedAt))
		}
		return w.Flush()
	},
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 50, "maximum number of sessions to list")
	rootCmd.AddCommand(sessionsCmd)
}

// openSegmentations opens the local database for one-shot commands.
func openSegmentations() (*segmentation.Service, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(os.Stderr, "warn")
	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	svc := segmentation.NewService(segmentation.NewRepository(database.Conn()), logger)
	return svc, func() { database.Close() }, nil
}
