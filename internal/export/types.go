// Package export renders a user's mood history as a downloadable
// report in PDF or CSV format.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF Format = "pdf"
	FormatCSV Format = "csv"
)

// Request contains parameters for an export operation
type Request struct {
	UserID         string
	Format         Format
	IncludePartner bool
	Limit          int
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// Entry is one mood record rendered into the report
type Entry struct {
	Owner     string
	Mood      string
	Intensity int
	Note      string
	Score     float64
	CreatedAt time.Time
}

var (
	// ErrContentUnavailable indicates the mood history could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrUnsupportedFormat indicates the requested format is not supported.
	ErrUnsupportedFormat = errors.New("export format unsupported")
)
