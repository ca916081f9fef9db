package api

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ScanConfig is the scan request body and saved snapshot payload.
type ScanConfig struct {
	MdocDir        string `json:"mdoc_dir"`
	ImageDir       string `json:"image_dir"`
	PNGDir         string `json:"png_dir"`
	MdocPrefixCut  int    `json:"mdoc_prefix_cut"`
	MdocSuffixCut  int    `json:"mdoc_suffix_cut"`
	ImagePrefixCut int    `json:"image_prefix_cut"`
	ImageSuffixCut int    `json:"image_suffix_cut"`
}

// Frame is one tilt image.
type Frame struct {
	ZIndex   int     `json:"zIndex"`
	Angle    float64 `json:"angle"`
	MrcPath  string  `json:"mrcPath"`
	Selected bool    `json:"selected"`
}

// TiltSeries is one parsed metadata file.
type TiltSeries struct {
	ID         string     `json:"id"`
	MdocPath   string     `json:"mdocPath"`
	ImageFile  string     `json:"imageFile,omitempty"`
	Frames     []Frame    `json:"frames"`
	AngleRange [2]float64 `json:"angleRange"`
	Unsaved    bool       `json:"unsaved"`
}

// ScanResponse reports a completed scan.
type ScanResponse struct {
	TiltSeries  []TiltSeries `json:"tiltSeries"`
	Total       int          `json:"total"`
	Failed      int          `json:"failed"`
	Fingerprint string       `json:"fingerprint"`
	ElapsedMs   int64        `json:"elapsedMs"`
}

// StatusResponse summarizes the project.
type StatusResponse struct {
	TotalSeries  int         `json:"totalSeries"`
	HasConfig    bool        `json:"hasConfig"`
	UnsavedCount int         `json:"unsavedCount"`
	Config       *ScanConfig `json:"config,omitempty"`
}

// SaveAllResponse summarizes a bulk save.
type SaveAllResponse struct {
	Success     bool     `json:"success"`
	SavedCount  int      `json:"savedCount"`
	FailedCount int      `json:"failedCount"`
	Errors      []string `json:"errors"`
}

// OverrideResponse acknowledges an overlay replacement.
type OverrideResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

// BatchRequest applies one operation to several frames.
type BatchRequest struct {
	Operation string `json:"operation"`
	FrameIDs  []int  `json:"frameIds"`
}

// BatchResponse reports how many frames a batch touched.
type BatchResponse struct {
	Success       bool `json:"success"`
	ModifiedCount int  `json:"modifiedCount"`
}

// SaveResponse reports a metadata write.
type SaveResponse struct {
	Success           bool        `json:"success"`
	Message           string      `json:"message"`
	BackupPath        string      `json:"backupPath,omitempty"`
	BackupCreated     bool        `json:"backupCreated"`
	Kept              []int       `json:"kept,omitempty"`
	Removed           []int       `json:"removed,omitempty"`
	UpdatedTiltSeries *TiltSeries `json:"updatedTiltSeries,omitempty"`
}

// ResetResponse acknowledges a reset.
type ResetResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// FrameDetail is a frame with its selection layered over the parsed value.
type FrameDetail struct {
	ZIndex            int     `json:"zIndex"`
	Angle             float64 `json:"angle"`
	MrcPath           string  `json:"mrcPath"`
	OriginalSelected  bool    `json:"originalSelected"`
	EffectiveSelected bool    `json:"effectiveSelected"`
	HasOverride       bool    `json:"hasOverride"`
}

// SelectResponse acknowledges an explicit selection.
type SelectResponse struct {
	Success           bool `json:"success"`
	FrameID           int  `json:"frameId"`
	Selected          bool `json:"selected"`
	EffectiveSelected bool `json:"effectiveSelected"`
}

// ToggleResponse reports a toggled selection.
type ToggleResponse struct {
	Success       bool `json:"success"`
	FrameID       int  `json:"frameId"`
	PreviousState bool `json:"previousState"`
	NewState      bool `json:"newState"`
}

// BatchSaveRequest writes selections to a metadata file.
type BatchSaveRequest struct {
	MdocPath   string       `json:"mdocPath"`
	Selections map[int]bool `json:"selections"`
}

// BackupDeleteRequest names the metadata file to delete.
type BackupDeleteRequest struct {
	MdocPath string `json:"mdocPath"`
}

// BackupDeleteResponse reports where the deleted content went.
type BackupDeleteResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	BackupPath    string `json:"backupPath,omitempty"`
	PreservedPath string `json:"preservedPath,omitempty"`
}

// HomeResponse carries the user's home directory.
type HomeResponse struct {
	Home string `json:"home"`
}

// SaveConfigResponse reports a stored snapshot.
type SaveConfigResponse struct {
	Success  bool   `json:"success"`
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

// ListConfigsResponse lists snapshot names, newest first.
type ListConfigsResponse struct {
	Configs []string `json:"configs"`
}

// DeleteConfigResponse acknowledges a snapshot removal.
type DeleteConfigResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status string `json:"status"`
}
