package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/idhash"
	"signal-backtest-lab/internal/sheet"
)

// FileFetcher reads <instrument>.xlsx or <instrument>.csv from a directory.
type FileFetcher struct {
	dir string
}

// NewFileFetcher creates a fetcher rooted at dir.
func NewFileFetcher(dir string) *FileFetcher {
	return &FileFetcher{dir: dir}
}

// Fetch reads the first matching export, xlsx before csv.
func (f *FileFetcher) Fetch(ctx context.Context, instrument string) (*domain.SourceBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, ext := range []domain.SourceFormat{domain.FormatXLSX, domain.FormatCSV} {
		path := filepath.Join(f.dir, instrument+"."+ext.String())
		blob, err := ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		blob.Instrument = instrument
		return blob, nil
	}

	return nil, fmt.Errorf("%w: no export for %s in %s", ErrFetchFailed, instrument, f.dir)
}

// ReadFile loads a single export from disk. The instrument is left empty.
func ReadFile(path string) (*domain.SourceBlob, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrFetchFailed, path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", ErrFetchFailed, path, err)
	}

	return &domain.SourceBlob{
		Format:      sheet.DetectFormat(content),
		Content:     content,
		Fingerprint: idhash.Fingerprint(content),
		UploadedAt:  info.ModTime().UTC(),
	}, nil
}
