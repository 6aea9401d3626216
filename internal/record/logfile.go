package record

// LogFileInfo describes a log file attached to a record as an artifact. The
// values are copied from the host's log file metadata without validation.
type LogFileInfo struct {
	Path         string `json:"path"`
	URL          string `json:"url"`
	IsText       bool   `json:"is_text"`
	LogType      string `json:"log_type"`
	IsCompressed bool   `json:"is_compressed"`
	Size         int64  `json:"size"`
}
