package model

import "time"

// Status is the terminal outcome of a job.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ReasonAlreadyOptimized is reported when retries could not shrink the file.
const ReasonAlreadyOptimized = "already optimized"

// Diagnostics carries technical details of how a result was produced.
type Diagnostics struct {
	Codec      string         `json:"codec,omitempty"`
	Width      int            `json:"width,omitempty"`
	Height     int            `json:"height,omitempty"`
	PageCount  int            `json:"page_count,omitempty"`
	RetryCount int            `json:"retry_count"`
	Strategy   string         `json:"strategy,omitempty"`
	Outcome    string         `json:"outcome,omitempty"`
	Routes     map[string]int `json:"routes,omitempty"`
}

// JobResult is built once per job from the final attempt.
type JobResult struct {
	JobID       string        `json:"job_id"`
	Input       string        `json:"input"`
	Output      string        `json:"output,omitempty"`
	Kind        string        `json:"kind,omitempty"`
	InputSize   int64         `json:"input_size"`
	OutputSize  int64         `json:"output_size"`
	Status      Status        `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	Message     string        `json:"message"`
	Diagnostics Diagnostics   `json:"diagnostics"`
	Duration    time.Duration `json:"duration"`
	Err         error         `json:"-"`
}

// SavedBytes is zero for anything but a success.
func (r JobResult) SavedBytes() int64 {
	if r.Status != StatusSuccess {
		return 0
	}
	return r.InputSize - r.OutputSize
}

// PreflightReport is the advisory, pipeline-free estimate for one file.
type PreflightReport struct {
	Path                string      `json:"path"`
	Kind                string      `json:"kind"`
	MIMEType            string      `json:"mime_type"`
	Size                int64       `json:"size"`
	PageCount           int         `json:"page_count,omitempty"`
	PixelWidth          int         `json:"pixel_width,omitempty"`
	PixelHeight         int         `json:"pixel_height,omitempty"`
	MetadataBytes       int64       `json:"metadata_bytes"`
	HasEXIF             bool        `json:"has_exif,omitempty"`
	HasGPS              bool        `json:"has_gps,omitempty"`
	HasMakerNote        bool        `json:"has_maker_note,omitempty"`
	HasICCProfile       bool        `json:"has_icc_profile,omitempty"`
	WideGamut           bool        `json:"wide_gamut,omitempty"`
	EOFMarkers          int         `json:"eof_markers,omitempty"`
	Linearized          bool        `json:"linearized,omitempty"`
	IncrementalUpdates  int         `json:"incremental_updates,omitempty"`
	HasEmbeddedFonts    bool        `json:"has_embedded_fonts,omitempty"`
	HasInvisibleGarbage bool        `json:"has_invisible_garbage"`
	ImageCount          int         `json:"image_count,omitempty"`
	BytesPerPage        float64     `json:"bytes_per_page,omitempty"`
	BytesPerPixel       float64     `json:"bytes_per_pixel,omitempty"`
	Potential           float64     `json:"potential"`
	SuggestedMode       RebuildMode `json:"suggested_mode,omitempty"`
	SuggestedProfile    string      `json:"suggested_profile"`
}

// CompressionStatistics summarises many results.
type CompressionStatistics struct {
	Jobs        int     `json:"jobs"`
	Succeeded   int     `json:"succeeded"`
	Skipped     int     `json:"skipped"`
	Failed      int     `json:"failed"`
	Cancelled   int     `json:"cancelled"`
	InputBytes  int64   `json:"input_bytes"`
	OutputBytes int64   `json:"output_bytes"`
	SavedBytes  int64   `json:"saved_bytes"`
	Ratio       float64 `json:"ratio"`
}

// Add folds one result into the statistics.
func (s *CompressionStatistics) Add(r JobResult) {
	s.Jobs++
	switch r.Status {
	case StatusSuccess:
		s.Succeeded++
		s.InputBytes += r.InputSize
		s.OutputBytes += r.OutputSize
		s.SavedBytes += r.SavedBytes()
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	case StatusCancelled:
		s.Cancelled++
	}
	if s.InputBytes > 0 {
		s.Ratio = float64(s.SavedBytes) / float64(s.InputBytes)
	}
}
