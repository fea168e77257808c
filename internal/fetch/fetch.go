// Package fetch downloads dataset dumps to local files with resume-on-part
// and idempotent skip-if-present semantics.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ProgressFunc receives download advancement. total is -1 when unknown.
type ProgressFunc func(done, total int64)

// Fetcher obtains a remote dataset. Implementations must be idempotent:
// fetching an already-complete destination is a no-op.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string, progress ProgressFunc) error
}

// progressInterval bounds the progress callback rate.
const progressInterval = 500 * time.Millisecond

// HTTP fetches over plain range-less GET, resuming a partial download with
// a Range request when the server supports it.
type HTTP struct {
	Client     *http.Client
	MaxRetries uint64
}

// NewHTTP returns a fetcher with sane defaults for multi-gigabyte dumps:
// no overall request timeout (downloads run for hours) and a small bounded
// retry budget with exponential backoff.
func NewHTTP() *HTTP {
	return &HTTP{
		Client:     &http.Client{},
		MaxRetries: 5,
	}
}

// Fetch ensures dest contains the complete body at url. An existing dest is
// trusted and skipped. Otherwise the body is staged at dest+".part" and
// renamed into place once complete.
func (h *HTTP) Fetch(ctx context.Context, url, dest string, progress ProgressFunc) error {
	if _, err := os.Stat(dest); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("fetch: stat %s: %w", dest, err)
	}

	part := dest + ".part"
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return h.download(ctx, url, part, progress)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), h.MaxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}

	if err := os.Rename(part, dest); err != nil {
		return fmt.Errorf("fetch: finalize %s: %w", dest, err)
	}
	return nil
}

// download performs one attempt, appending to an existing .part when the
// server honours the Range request and restarting from zero when it does
// not.
func (h *HTTP) download(ctx context.Context, url, part string, progress ProgressFunc) error {
	var offset int64
	if fi, err := os.Stat(part); err == nil {
		offset = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
	case http.StatusOK:
		// Server ignored the range: restart from zero.
		flags |= os.O_TRUNC
		offset = 0
	case http.StatusRequestedRangeNotSatisfiable:
		// Stale .part, typically from a different upstream file. Restart.
		if err := os.Remove(part); err != nil && !os.IsNotExist(err) {
			return backoff.Permanent(err)
		}
		return fmt.Errorf("range not satisfiable, restarting")
	default:
		err := fmt.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}

	f, err := os.OpenFile(part, flags, 0o644)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("open %s: %w", part, err))
	}
	defer f.Close()

	done := offset
	lastReport := time.Time{}
	buf := make([]byte, 256<<10)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return backoff.Permanent(fmt.Errorf("write %s: %w", part, werr))
			}
			done += int64(n)
			if progress != nil && time.Since(lastReport) >= progressInterval {
				progress(done, total)
				lastReport = time.Now()
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read body: %w", rerr)
		}
	}
	if progress != nil {
		progress(done, total)
	}
	if total >= 0 && done != total {
		return fmt.Errorf("short body: got %d of %d bytes", done, total)
	}
	return f.Sync()
}
