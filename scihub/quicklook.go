package scihub

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
)

// Quicklook fetches the product's preview image into w.
func (c *Client) Quicklook(ctx context.Context, id string, w io.Writer) error {
	req, err := retryablehttp.NewRequest("GET", c.quicklookURL(id), nil)
	if err != nil {
		return err
	}
	res, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return checkResponse(res, body)
	}
	if _, err := io.Copy(w, res.Body); err != nil {
		return &TransportError{URL: c.quicklookURL(id), Err: err}
	}
	return nil
}

// DownloadQuicklook stores the preview image next to the product archive as
// <title>.png. An image already on disk is kept as is.
func (c *Client) DownloadQuicklook(ctx context.Context, id, dir string) (string, error) {
	p, err := c.ProductInfo(ctx, id)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, p.Title+".png")
	if _, err := os.Stat(path); err == nil {
		log.Debugf("Quicklook %s exists, skipping", path)
		return path, nil
	}

	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if err := c.Quicklook(ctx, id, f); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("quicklook %s: %w", id, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	log.Infof("Stored quicklook %s", path)
	return path, nil
}
