package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-timeline/internal/config"
	"github.com/heimdex/heimdex-timeline/internal/export"
	"github.com/heimdex/heimdex-timeline/internal/segmentation"
	"github.com/heimdex/heimdex-timeline/internal/timecode"
)

var exportReq export.Request

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Write the visible segments of a saved segmentation as an EDL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeDB, err := openSegmentations()
		if err != nil {
			return err
		}
		defer closeDB()

		seg, err := svc.Get(context.Background(), args[0])
		if errors.Is(err, segmentation.ErrNotFound) {
			return fmt.Errorf("no saved segmentation for session %q", args[0])
		}
		if err != nil {
			return err
		}

		defaultDir := exportReq.OutputDir
		if defaultDir == "" {
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			defaultDir = cfg.ExportDir()
			if err := os.MkdirAll(defaultDir, 0755); err != nil {
				return fmt.Errorf("failed to create export dir: %w", err)
			}
		}

		res, err := export.Export(export.Source{
			FileName: seg.FileName,
			VideoURL: seg.VideoURL,
			Segments: seg.Segments(),
		}, exportReq, defaultDir)
		if err != nil {
			return err
		}

		info, err := os.Stat(res.OutputPath)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %d clips (%s) to %s (%s)\n",
			res.ClipCount, timecode.FormatSeconds(float64(res.DurationMs)/1000),
			res.OutputPath, humanize.Bytes(uint64(info.Size())))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportReq.OutputDir, "out", "o", "", "output directory (default: data dir exports)")
	exportCmd.Flags().Float64Var(&exportReq.FrameRate, "fps", export.DefaultFrameRate, "timecode frame rate")
	exportCmd.Flags().StringVar(&exportReq.Name, "name", "", "file and clip base name (default: video file name)")
	exportCmd.Flags().StringVar(&exportReq.MediaPath, "media", "", "media path written into the EDL (default: video URL)")
	rootCmd.AddCommand(exportCmd)
}
