// Package clock provides the market's notion of "now" and the weekly
// trading calendar it is compared against.
package clock

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Zone is the fixed UTC+8 offset used for every schedule comparison and
// displayed timestamp.
var Zone = time.FixedZone("UTC+8", 8*60*60)

// Clock returns local wall time corrected by an offset learned once from a
// remote server's Date header.
type Clock struct {
	source func() time.Time
	offset atomic.Int64 // nanoseconds
}

// New returns a Clock backed by time.Now with a zero offset.
func New() *Clock {
	return NewWithSource(time.Now)
}

// NewWithSource returns a Clock reading wall time from source.
func NewWithSource(source func() time.Time) *Clock {
	return &Clock{source: source}
}

// Now returns the corrected current time in Zone.
func (c *Clock) Now() time.Time {
	return c.source().Add(c.Offset()).In(Zone)
}

// Offset returns the correction currently applied to the local clock.
func (c *Clock) Offset() time.Duration {
	return time.Duration(c.offset.Load())
}

// Sync issues a HEAD request to url and sets the offset to the difference
// between the response's Date header and local time. On any failure the
// offset is left untouched and the error returned; callers treat it as
// non-fatal.
func (c *Clock) Sync(ctx context.Context, client *http.Client, url string) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build time sync request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("time sync request: %w", err)
	}
	resp.Body.Close()

	header := resp.Header.Get("Date")
	if header == "" {
		return 0, fmt.Errorf("time sync: response has no Date header")
	}
	remote, err := http.ParseTime(header)
	if err != nil {
		return 0, fmt.Errorf("time sync: parse Date %q: %w", header, err)
	}

	offset := remote.Sub(c.source())
	c.offset.Store(int64(offset))
	return offset, nil
}
