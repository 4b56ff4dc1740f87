package attachments

import "time"

// Storage tier thresholds. A file at or below InlineMax is embedded in the
// owning record; above it and at or below AbsoluteMax it goes to the blob
// store; above AbsoluteMax it is rejected before any transfer.
const (
	InlineMax   = 700 * 1024
	AbsoluteMax = 50 * 1024 * 1024
)

// Tier is the storage mode chosen for a file at upload time. A file is
// never re-tiered later.
type Tier string

const (
	TierInline Tier = "inline"
	TierBlob   Tier = "blob"
)

// Attachment is one stored report file. Inline attachments carry their
// payload base64-encoded in Data; blob attachments carry a retrievable
// URL plus the object key.
type Attachment struct {
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploaded_at"`
	Tier        Tier      `json:"tier"`
	Data        string    `json:"data,omitempty"`
	URL         string    `json:"url,omitempty"`
	Path        string    `json:"path,omitempty"`
}

// File is one upload candidate, fully read from the request.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Content     []byte
}

// FileError names one file that could not be attached and the remediation
// that applies.
type FileError struct {
	FileName string `json:"file_name"`
	Reason   string `json:"reason"`
}

// BatchResult is the settle-all outcome of one upload batch. The batch is
// best-effort: both subsets are always returned, never a single aggregate
// error.
type BatchResult struct {
	Succeeded []Attachment `json:"succeeded"`
	Failed    []FileError  `json:"failed"`
}

// ProgressFunc observes per-file upload progress as a 0-100 percentage.
// Inline files jump in two large steps since encoding has no byte-level
// signal.
type ProgressFunc func(fileName string, percent int)
