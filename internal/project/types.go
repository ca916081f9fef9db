package project

import (
	"time"

	"tssv/internal/config"
	"tssv/internal/tilt"
)

// BatchOp names a bulk selection edit.
type BatchOp string

const (
	OpSelect   BatchOp = "select"
	OpDeselect BatchOp = "deselect"
	OpInvert   BatchOp = "invert"
	OpReset    BatchOp = "reset"
)

// ParseBatchOp validates an operation name.
func ParseBatchOp(value string) (BatchOp, bool) {
	switch op := BatchOp(value); op {
	case OpSelect, OpDeselect, OpInvert, OpReset:
		return op, true
	default:
		return "", false
	}
}

// ScanResult reports a completed scan.
type ScanResult struct {
	Series      []*tilt.Series
	Failed      int
	Fingerprint string
	Elapsed     time.Duration
}

// FrameView is a frame with its selection layered over the parsed value.
type FrameView struct {
	tilt.Frame
	OriginalSelected  bool
	EffectiveSelected bool
	HasOverride       bool
}

// SaveResult reports one metadata write. Saved is false when there was
// nothing to write.
type SaveResult struct {
	MetadataPath  string
	Saved         bool
	Message       string
	BackupPath    string
	BackupCreated bool
	Kept          []int
	Removed       []int
	Series        *tilt.Series
}

// SaveAllResult summarizes SaveAll.
type SaveAllResult struct {
	Saved  int
	Failed int
	Errors []string
}

// Status summarizes the project.
type Status struct {
	TotalSeries  int
	HasConfig    bool
	UnsavedCount int
	Config       config.ScanConfig
}
