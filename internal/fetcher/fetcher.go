// Package fetcher moves provider reports from where the provider drops them
// to local files: FTP listing and download, zip extraction and xlsx reading.
package fetcher

import (
	"context"
	"io"
	"time"
)

// RemoteFile is one entry in a provider's report drop.
type RemoteFile struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// Source lists and downloads report files.
type Source interface {
	// List returns the report files in the drop directory, oldest first.
	List(ctx context.Context) ([]RemoteFile, error)

	// Download opens a remote file. The caller must close the reader.
	Download(ctx context.Context, f RemoteFile) (io.ReadCloser, error)
}
