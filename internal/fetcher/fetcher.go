package fetcher

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
)

// Fetcher downloads remote files such as TIGER/Line archives.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into path and returns the bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Cached downloads url into path unless a non-empty file is already there.
// It reports whether a download happened. A failed download leaves no
// partial file behind.
func Cached(ctx context.Context, f Fetcher, url, path string) (bool, error) {
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return false, nil
	}
	if _, err := f.DownloadToFile(ctx, url, path); err != nil {
		_ = os.Remove(path)
		return false, eris.Wrapf(err, "fetcher: cache %s", url)
	}
	return true, nil
}
