package api

import (
	"tssv/internal/config"
	"tssv/internal/project"
	"tssv/internal/tilt"
)

// FromScanConfig converts a scan configuration to its wire form.
func FromScanConfig(cfg config.ScanConfig) ScanConfig {
	return ScanConfig{
		MdocDir:        cfg.MdocDir,
		ImageDir:       cfg.ImageDir,
		PNGDir:         cfg.PNGDir,
		MdocPrefixCut:  cfg.MdocPrefixCut,
		MdocSuffixCut:  cfg.MdocSuffixCut,
		ImagePrefixCut: cfg.ImagePrefixCut,
		ImageSuffixCut: cfg.ImageSuffixCut,
	}
}

// ToScanConfig converts a wire scan configuration to the model.
func (c ScanConfig) ToScanConfig() config.ScanConfig {
	return config.ScanConfig{
		MdocDir:        c.MdocDir,
		ImageDir:       c.ImageDir,
		PNGDir:         c.PNGDir,
		MdocPrefixCut:  c.MdocPrefixCut,
		MdocSuffixCut:  c.MdocSuffixCut,
		ImagePrefixCut: c.ImagePrefixCut,
		ImageSuffixCut: c.ImageSuffixCut,
	}
}

// FromFrame converts a parsed frame.
func FromFrame(frame tilt.Frame) Frame {
	return Frame{
		ZIndex:   frame.ID,
		Angle:    frame.Angle,
		MrcPath:  frame.RawPath,
		Selected: frame.Selected,
	}
}

// FromFrames converts parsed frames, keeping file order.
func FromFrames(frames []tilt.Frame) []Frame {
	out := make([]Frame, len(frames))
	for i, frame := range frames {
		out[i] = FromFrame(frame)
	}
	return out
}

// FromSeries converts a series. unsaved marks pending edits.
func FromSeries(series *tilt.Series, unsaved bool) TiltSeries {
	if series == nil {
		return TiltSeries{}
	}
	return TiltSeries{
		ID:         series.ID,
		MdocPath:   series.MetadataPath,
		ImageFile:  series.ImageFile,
		Frames:     FromFrames(series.Frames),
		AngleRange: [2]float64{series.AngleRange.Min, series.AngleRange.Max},
		Unsaved:    unsaved,
	}
}

// FromFrameView converts a frame with its layered selection.
func FromFrameView(view project.FrameView) FrameDetail {
	return FrameDetail{
		ZIndex:            view.ID,
		Angle:             view.Angle,
		MrcPath:           view.RawPath,
		OriginalSelected:  view.OriginalSelected,
		EffectiveSelected: view.EffectiveSelected,
		HasOverride:       view.HasOverride,
	}
}

// FromScanResult converts a scan result.
func FromScanResult(result project.ScanResult) ScanResponse {
	series := make([]TiltSeries, len(result.Series))
	for i, s := range result.Series {
		series[i] = FromSeries(s, false)
	}
	return ScanResponse{
		TiltSeries:  series,
		Total:       len(series),
		Failed:      result.Failed,
		Fingerprint: result.Fingerprint,
		ElapsedMs:   result.Elapsed.Milliseconds(),
	}
}

// FromStatus converts a project status.
func FromStatus(status project.Status) StatusResponse {
	out := StatusResponse{
		TotalSeries:  status.TotalSeries,
		HasConfig:    status.HasConfig,
		UnsavedCount: status.UnsavedCount,
	}
	if status.HasConfig {
		cfg := FromScanConfig(status.Config)
		out.Config = &cfg
	}
	return out
}

// FromSaveResult converts a metadata write.
func FromSaveResult(result project.SaveResult) SaveResponse {
	out := SaveResponse{
		Success:       true,
		Message:       result.Message,
		BackupPath:    result.BackupPath,
		BackupCreated: result.BackupCreated,
		Kept:          result.Kept,
		Removed:       result.Removed,
	}
	if result.Series != nil {
		series := FromSeries(result.Series, false)
		out.UpdatedTiltSeries = &series
	}
	return out
}

// FromSaveAllResult converts a bulk save summary.
func FromSaveAllResult(result project.SaveAllResult) SaveAllResponse {
	errs := result.Errors
	if errs == nil {
		errs = []string{}
	}
	return SaveAllResponse{
		Success:     result.Failed == 0,
		SavedCount:  result.Saved,
		FailedCount: result.Failed,
		Errors:      errs,
	}
}
