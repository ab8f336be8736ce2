package domain

import "time"

// SourceFormat is the encoding of a trade-history blob.
type SourceFormat string

const (
	FormatXLSX SourceFormat = "xlsx"
	FormatCSV  SourceFormat = "csv"
)

// String returns the string representation of SourceFormat.
func (f SourceFormat) String() string {
	return string(f)
}

// IsValid checks if the format is a supported value.
func (f SourceFormat) IsValid() bool {
	return f == FormatXLSX || f == FormatCSV
}

// SourceBlob is a stored trade-history export for one instrument.
// Corresponds to source_blobs table in PostgreSQL.
type SourceBlob struct {
	Instrument  string
	Format      SourceFormat
	Content     []byte
	Fingerprint string // idhash.Fingerprint(Content)
	UploadedAt  time.Time
}
