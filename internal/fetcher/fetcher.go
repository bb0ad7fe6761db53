package fetcher

import (
	"context"
	"io"
	"net/url"

	"github.com/rotisserie/eris"
)

// Fetcher defines the interface for downloading the upstream member feed.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadIfChanged fetches the URL only if the ETag has changed.
	// Returns (body, newETag, changed, error). If not changed, body is nil and changed is false.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}

// SchemeRouter dispatches to a Fetcher by URL scheme.
type SchemeRouter struct {
	HTTP Fetcher
	FTP  Fetcher
}

func (r *SchemeRouter) pick(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	switch u.Scheme {
	case "http", "https":
		if r.HTTP != nil {
			return r.HTTP, nil
		}
	case "ftp":
		if r.FTP != nil {
			return r.FTP, nil
		}
	}
	return nil, eris.Errorf("fetcher: no fetcher for scheme %q", u.Scheme)
}

// Download routes to the fetcher registered for the URL's scheme.
func (r *SchemeRouter) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, err := r.pick(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, rawURL)
}

// DownloadIfChanged routes to the fetcher registered for the URL's scheme.
func (r *SchemeRouter) DownloadIfChanged(ctx context.Context, rawURL string, etag string) (io.ReadCloser, string, bool, error) {
	f, err := r.pick(rawURL)
	if err != nil {
		return nil, "", false, err
	}
	return f.DownloadIfChanged(ctx, rawURL, etag)
}
