package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tssv/internal/config"
	"tssv/internal/fileutil"
	"tssv/internal/imaging"
	"tssv/internal/matcher"
	"tssv/internal/mdoc"
	"tssv/internal/preview"
	"tssv/internal/services"
	"tssv/internal/tilt"
)

// seriesFrames serves frames of one parsed series to the preview pipeline.
type seriesFrames struct {
	series *tilt.Series
}

func (s seriesFrames) Frame(seriesID string, frameID int) (tilt.Frame, error) {
	if seriesID != s.series.ID {
		return tilt.Frame{}, services.Wrap(services.ErrNotFound, "cli", "preview", "tilt series not found: "+seriesID, nil)
	}
	frame, ok := s.series.Frame(frameID)
	if !ok {
		return tilt.Frame{}, services.Wrap(services.ErrNotFound, "cli", "preview", fmt.Sprintf("frame %d not found in %s", frameID, seriesID), nil)
	}
	return frame, nil
}

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	var flags scanFlags
	var bin, quality int
	var output string

	cmd := &cobra.Command{
		Use:   "preview <mdoc> <frame>",
		Short: "Render the preview of one frame to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			frameID, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid frame id %q", args[1])
			}
			if cmd.Flags().Changed("bin") && !config.ValidBin(bin) {
				return fmt.Errorf("--bin must be one of %v", config.SupportedBins)
			}
			if cmd.Flags().Changed("quality") && (quality < config.MinQuality || quality > config.MaxQuality) {
				return fmt.Errorf("--quality must be between %d and %d", config.MinQuality, config.MaxQuality)
			}
			mdocPath, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			scan := flags.apply(cmd, cfg.Scan.ScanConfig)
			if strings.TrimSpace(scan.ImageDir) == "" {
				scan.ImageDir = filepath.Dir(mdocPath)
			}

			logger := ctx.cliLogger()
			m := matcher.New(matcher.Rules{
				ImagePrefixCut:    scan.ImagePrefixCut,
				ImageSuffixCut:    scan.ImageSuffixCut,
				MetadataPrefixCut: scan.MdocPrefixCut,
				MetadataSuffixCut: scan.MdocSuffixCut,
			}, logger)
			if err := m.Build(cmd.Context(), scan.ImageDir); err != nil {
				return err
			}
			series, err := mdoc.Parse(mdocPath, m)
			if err != nil {
				return err
			}

			opts := preview.OptionsFromConfig(cfg.Preview, 0)
			opts.CacheDir = ""
			pipeline, err := preview.New(seriesFrames{series: series}, imaging.FileReader{}, opts, logger)
			if err != nil {
				return err
			}
			result, err := pipeline.Get(cmd.Context(), preview.Request{
				SeriesID: series.ID,
				FrameID:  frameID,
				Bin:      bin,
				Quality:  quality,
			})
			if err != nil {
				return err
			}

			target := output
			if target == "" {
				ext := pipeline.Capabilities().Format
				target = fmt.Sprintf("%s_frame_%04d.%s", series.ID, frameID, strings.Replace(ext, "jpeg", "jpg", 1))
			}
			if err := fileutil.WriteFileAtomic(target, result.Data, 0o644); err != nil {
				return fmt.Errorf("write preview: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes, %s)\n", target, len(result.Data), result.ContentType)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&bin, "bin", 0, "Binning factor (defaults to [preview] default_bin)")
	cmd.Flags().IntVar(&quality, "quality", 0, "Encoder quality 1-100 (defaults to [preview] default_quality)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (defaults to <series>_frame_<id>.<ext> in the working directory)")
	return cmd
}
