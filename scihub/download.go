package scihub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxAttempts bounds batch retries when BatchOptions leaves
// MaxAttempts unset.
const DefaultMaxAttempts = 10

const maxErrorBody = 32 << 10

// DownloadOptions controls one product download.
type DownloadOptions struct {
	// CheckExisting verifies a file already on disk against the catalog
	// metadata and repairs it (resume, or refetch) instead of trusting it.
	CheckExisting bool
	// VerifyChecksum compares the final file's MD5 against the catalog's and
	// deletes the file on mismatch.
	VerifyChecksum bool
}

// Download fetches one product archive into dir as <title>.zip, resuming any
// partial file found there. Network failures leave the partial file in place
// so the next call picks up where this one stopped.
func (c *Client) Download(ctx context.Context, id, dir string, opts DownloadOptions) (string, *Product, error) {
	p, err := c.ProductInfo(ctx, id)
	if err != nil {
		return "", nil, err
	}
	path := filepath.Join(dir, p.Title+".zip")

	offset, done, err := inspectExisting(path, p, opts.CheckExisting)
	if err != nil {
		return path, nil, err
	}
	if done {
		log.Debugf("%s already complete", path)
		return path, p, nil
	}

	if err := c.transfer(ctx, p, path, offset); err != nil {
		return path, nil, err
	}

	if opts.VerifyChecksum {
		if err := verifyFile(path, p.MD5); err != nil {
			return path, nil, err
		}
	}
	log.Infof("Downloaded %s (%d bytes)", path, p.Size)
	return path, p, nil
}

// inspectExisting decides how to treat a file already at path: trust it,
// resume it at an offset, or clear it out and start over.
func inspectExisting(path string, p *Product, check bool) (offset int64, done bool, err error) {
	fi, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if !check {
		log.Debugf("%s exists, skipping", path)
		return 0, true, nil
	}
	switch {
	case fi.Size() == p.Size:
		ok, err := MD5Compare(path, p.MD5)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return 0, true, nil
		}
		log.Infof("%s has the expected size but a wrong digest, fetching again", path)
		if err := os.Remove(path); err != nil {
			return 0, false, err
		}
		return 0, false, nil
	case fi.Size() < p.Size:
		log.Infof("Resuming %s at byte %d of %d", path, fi.Size(), p.Size)
		return fi.Size(), false, nil
	default:
		log.Infof("%s is larger than expected, fetching again", path)
		if err := os.Remove(path); err != nil {
			return 0, false, err
		}
		return 0, false, nil
	}
}

// transfer streams the product body to path, appending from offset when the
// server honors the range request.
func (c *Client) transfer(ctx context.Context, p *Product, path string, offset int64) error {
	req, err := retryablehttp.NewRequest("GET", p.URL, nil)
	if err != nil {
		return err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	res, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		// Full body, range ignored or not requested.
		offset = 0
	case http.StatusPartialContent:
	default:
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return checkResponse(res, body)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, res.Body)
	cerr := f.Close()
	if err != nil {
		// Keep what arrived; a later attempt resumes from here.
		return &TransportError{URL: p.URL, Err: err}
	}
	if cerr != nil {
		return cerr
	}
	if offset+n < p.Size {
		return &TransportError{URL: p.URL, Err: fmt.Errorf("connection closed after %d of %d bytes", offset+n, p.Size)}
	}
	log.Debugf("Wrote %d bytes to %s", n, path)
	return nil
}

// verifyFile deletes path and fails when its digest does not match.
func verifyFile(path, md5sum string) error {
	got, err := MD5File(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, md5sum) {
		if err := os.Remove(path); err != nil {
			log.Warnf("Removing corrupt %s: %v", path, err)
		}
		return &ChecksumError{Path: path, Expected: md5sum, Actual: got}
	}
	return nil
}

// BatchOptions controls DownloadAll.
type BatchOptions struct {
	// MaxAttempts bounds how often one product is tried before its slot is
	// marked failed. Zero selects DefaultMaxAttempts.
	MaxAttempts int
	// CheckExisting and VerifyChecksum apply to every attempt, as in
	// DownloadOptions.
	CheckExisting  bool
	VerifyChecksum bool
	// Concurrency bounds parallel transfers. Zero downloads sequentially.
	Concurrency int
}

// DownloadAll fetches every listed product into dir. Repeated ids collapse to
// a single download. The returned map always holds one entry per distinct
// product, keyed by target path; a nil value marks a product whose attempts
// were exhausted. One product's permanent failure never aborts the rest. The
// error reports cancellation only.
func (c *Client) DownloadAll(ctx context.Context, ids []string, dir string, opts BatchOptions) (map[string]*Product, error) {
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = DefaultMaxAttempts
	}
	workers := opts.Concurrency
	if workers < 1 {
		workers = 1
	}

	// No two workers may share a target path.
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	ids = unique

	type outcome struct {
		path    string
		product *Product
	}
	outcomes := make([]outcome, len(ids))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			path, p := c.downloadAttempts(ctx, id, dir, attempts, opts)
			outcomes[i] = outcome{path: path, product: p}
			return nil
		})
	}
	g.Wait()

	result := make(map[string]*Product, len(ids))
	for _, o := range outcomes {
		result[o.path] = o.product
	}
	return result, ctx.Err()
}

// downloadAttempts runs the bounded retry loop for one product. Until
// metadata resolves there is no title to name the file after, so the slot
// falls back to an ID-derived path.
func (c *Client) downloadAttempts(ctx context.Context, id, dir string, attempts int, opts BatchOptions) (string, *Product) {
	path := filepath.Join(dir, id+".zip")
	for i := 1; i <= attempts; i++ {
		got, p, err := c.Download(ctx, id, dir, DownloadOptions{
			CheckExisting:  opts.CheckExisting || i > 1,
			VerifyChecksum: opts.VerifyChecksum,
		})
		if got != "" {
			path = got
		}
		if err == nil {
			return path, p
		}
		log.Warnf("Download of %s failed (attempt %d/%d): %v", id, i, attempts, err)
		if ctx.Err() != nil {
			break
		}
	}
	log.Errorf("Giving up on %s after %d attempts", id, attempts)
	return path, nil
}
