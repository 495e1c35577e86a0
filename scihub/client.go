package scihub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultAPIURL points at the main Copernicus Open Access Hub instance.
const DefaultAPIURL = "https://scihub.copernicus.eu/apihub/"

// Rows per search page, the maximum the catalog serves.
const defaultPageSize = 15000

var (
	httpClient *retryablehttp.Client
	httpOnce   sync.Once
)

func catalogHTTP() *retryablehttp.Client {
	httpOnce.Do(func() {
		httpClient = retryablehttp.NewClient()
		httpClient.Logger = nil
		if log.GetLevel() >= log.DebugLevel {
			httpClient.Logger = log.StandardLogger()
		}
		httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	})
	return httpClient
}

// Client talks to one catalog instance with one set of credentials. A Client
// is safe for concurrent use; each search call returns its own result set.
type Client struct {
	// Limiter optionally paces catalog requests. Nil disables pacing.
	Limiter *rate.Limiter

	user     string
	password string
	apiURL   string
	pageSize int
	cache    *infoCache
}

// New returns a client for the catalog at apiURL. An empty apiURL selects the
// main hub. The base URL is normalized to end with a single trailing slash.
func New(user, password, apiURL string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		user:     user,
		password: password,
		apiURL:   trailSlash(apiURL),
		pageSize: defaultPageSize,
		cache:    newInfoCache(infoCacheTTL),
	}
}

func trailSlash(u string) string {
	return strings.TrimRight(u, "/") + "/"
}

// APIURL reports the normalized base URL.
func (c *Client) APIURL() string { return c.apiURL }

func (c *Client) searchURL() string {
	return fmt.Sprintf("%ssearch?format=json&rows=%d", c.apiURL, c.pageSize)
}

func (c *Client) productURL(id string) string {
	return fmt.Sprintf("%sodata/v1/Products('%s')/?$format=json", c.apiURL, id)
}

func (c *Client) downloadURL(id string) string {
	return fmt.Sprintf("%sodata/v1/Products('%s')/$value", c.apiURL, id)
}

func (c *Client) quicklookURL(id string) string {
	return fmt.Sprintf("%sodata/v1/Products('%s')/Products('Quicklook')/$value", c.apiURL, id)
}

// do sends req with the client's credentials. Connection-level failures come
// back as *TransportError; HTTP-level failures are left to the caller, which
// knows whether a body is expected.
func (c *Client) do(ctx context.Context, req *retryablehttp.Request) (*http.Response, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req.SetBasicAuth(c.user, c.password)
	res, err := catalogHTTP().Do(req.WithContext(ctx))
	if err != nil {
		return nil, &TransportError{URL: req.URL.String(), Err: err}
	}
	return res, nil
}

// checkResponse maps a catalog response onto the error taxonomy. A body that
// does not even look like JSON is the catalog speaking plain text (status
// pages, maintenance HTML) and is surfaced verbatim; a body that looks like
// JSON but fails to decode is a malformed API response.
func checkResponse(res *http.Response, body []byte) error {
	trimmed := bytes.TrimSpace(body)
	looksJSON := len(trimmed) > 0 && trimmed[0] == '{'

	if looksJSON {
		var env errorEnvelope
		if err := json.Unmarshal(trimmed, &env); err == nil && env.Error != nil {
			msg := env.Error.Message.Value
			if msg == "" {
				msg = string(body)
			}
			return &APIError{StatusCode: res.StatusCode, Message: msg}
		}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &APIError{StatusCode: res.StatusCode, Message: string(body)}
	}
	if !looksJSON {
		return &APIError{StatusCode: res.StatusCode, Message: string(body)}
	}
	if !json.Valid(trimmed) {
		return ErrInvalidResponse
	}
	return nil
}
