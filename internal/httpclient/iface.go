package httpclient

import (
	"context"
	"io"
	"net/url"
	"time"
)

// Fetcher is the interface consumed by the downloader, store and fix packages.
// *Client satisfies this interface.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*Response, error)
	GetJSON(ctx context.Context, rawURL string, query url.Values, v any) error
	Head(ctx context.Context, rawURL string, timeout time.Duration) (*Response, error)
	Stream(ctx context.Context, rawURL string, w io.Writer, minSize int64, progress ProgressFunc) (int64, error)
}

var _ Fetcher = (*Client)(nil)
