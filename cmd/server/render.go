package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func renderCmd() *cobra.Command {
	var (
		palette string
		out     string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one heatmap to a JPEG file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			svc, err := newTileService(cfg, log)
			if err != nil {
				return err
			}
			defer svc.Close()

			tile, err := svc.GetHeatmap(cmd.Context(), palette, false)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, tile.Data, 0644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}

			log.Info("heatmap written",
				zap.String("path", out),
				zap.String("palette", tile.Palette.String()),
				zap.String("size", humanize.Bytes(uint64(len(tile.Data)))),
				zap.Duration("elapsed", tile.Elapsed),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&palette, "palette", "", "Palette name (viridis, turbo, spectral)")
	cmd.Flags().StringVarP(&out, "out", "o", "heatmap.jpg", "Output file")
	return cmd
}
