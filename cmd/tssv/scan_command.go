package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tssv/internal/api"
	"tssv/internal/config"
	"tssv/internal/mdoc"
	"tssv/internal/project"
	"tssv/internal/state"
	"tssv/internal/tilt"
)

type scanFlags struct {
	mdocDir        string
	imageDir       string
	mdocPrefixCut  int
	mdocSuffixCut  int
	imagePrefixCut int
	imageSuffixCut int
}

func (f *scanFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mdocDir, "mdoc-dir", "", "Directory searched recursively for .mdoc files (defaults to [scan] mdoc_dir)")
	cmd.Flags().StringVar(&f.imageDir, "image-dir", "", "Directory holding raw images (defaults to [scan] image_dir)")
	cmd.Flags().IntVar(&f.mdocPrefixCut, "mdoc-prefix-cut", 0, "Characters trimmed from the start of metadata image names")
	cmd.Flags().IntVar(&f.mdocSuffixCut, "mdoc-suffix-cut", 0, "Characters trimmed from the end of metadata image names")
	cmd.Flags().IntVar(&f.imagePrefixCut, "image-prefix-cut", 0, "Characters trimmed from the start of image file names")
	cmd.Flags().IntVar(&f.imageSuffixCut, "image-suffix-cut", 0, "Characters trimmed from the end of image file names")
}

// apply overlays explicitly set flags on the configured scan defaults.
func (f *scanFlags) apply(cmd *cobra.Command, base config.ScanConfig) config.ScanConfig {
	flags := cmd.Flags()
	if flags.Changed("mdoc-dir") {
		base.MdocDir = f.mdocDir
	}
	if flags.Changed("image-dir") {
		base.ImageDir = f.imageDir
	}
	if flags.Changed("mdoc-prefix-cut") {
		base.MdocPrefixCut = f.mdocPrefixCut
	}
	if flags.Changed("mdoc-suffix-cut") {
		base.MdocSuffixCut = f.mdocSuffixCut
	}
	if flags.Changed("image-prefix-cut") {
		base.ImagePrefixCut = f.imagePrefixCut
	}
	if flags.Changed("image-suffix-cut") {
		base.ImageSuffixCut = f.imageSuffixCut
	}
	return base
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var flags scanFlags
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a project and list its tilt series",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			scan := flags.apply(cmd, cfg.Scan.ScanConfig)
			logger := ctx.cliLogger()
			svc := project.New(state.New(), mdoc.NewWriter(logger), logger)
			result, err := svc.Scan(cmd.Context(), scan)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, api.FromScanResult(result))
			}

			out := cmd.OutOrStdout()
			if len(result.Series) == 0 {
				fmt.Fprintln(out, "No tilt series found")
			} else {
				fmt.Fprintln(out, renderTable(out, scanHeaders, scanRows(result.Series), scanAligns))
			}
			fmt.Fprintf(out, "%d series, %d failed, %s\n", len(result.Series), result.Failed, result.Elapsed.Round(time.Millisecond))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the scan result as JSON")
	return cmd
}

var (
	scanHeaders = []string{"Series", "Frames", "Selected", "Matched", "Angles", "Metadata"}
	scanAligns  = []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft}
)

func scanRows(series []*tilt.Series) [][]string {
	rows := make([][]string, 0, len(series))
	for _, s := range series {
		selected, matched := 0, 0
		for _, frame := range s.Frames {
			if frame.Selected {
				selected++
			}
			if frameMatched(frame) {
				matched++
			}
		}
		rows = append(rows, []string{
			s.ID,
			strconv.Itoa(len(s.Frames)),
			strconv.Itoa(selected),
			strconv.Itoa(matched),
			fmt.Sprintf("%.1f..%.1f", s.AngleRange.Min, s.AngleRange.Max),
			s.MetadataPath,
		})
	}
	return rows
}

// frameMatched reports whether the frame resolved to an existing image file
// rather than keeping its bare name.
func frameMatched(frame tilt.Frame) bool {
	if frame.RawPath == "" {
		return false
	}
	info, err := os.Stat(frame.RawPath)
	return err == nil && !info.IsDir()
}
