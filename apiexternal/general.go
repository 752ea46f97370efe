package apiexternal

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"time"

	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/Kellerman81/go_media_organizer/slidingwindow"
	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/avast/retry-go"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return "status " + strconv.Itoa(e.Code) + " for " + e.URL
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusTooManyRequests:
		return logger.ErrRateLimited
	case http.StatusNotFound:
		return logger.ErrNotFound
	}
	return nil
}

// RLHTTPClient Rate Limited HTTP Client
type RLHTTPClient struct {
	client        *http.Client
	Ratelimiter   *rate.Limiter
	LimiterWindow *slidingwindow.Limiter
	UserAgent     string
	Header        http.Header
	Attempts      uint
	RetryDelay    time.Duration
}

// NewClient returns a http client limited to calls requests per seconds.
func NewClient(timeout time.Duration, userAgent string, seconds int, calls int) *RLHTTPClient {
	if seconds < 1 {
		seconds = 1
	}
	if calls < 1 {
		calls = 1
	}
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return &RLHTTPClient{
		client: &http.Client{
			Timeout: timeout,
			Jar:     jar,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				MaxIdleConns:    20,
				MaxConnsPerHost: 10,
				IdleConnTimeout: 20 * time.Second,
			}},
		Ratelimiter:   rate.NewLimiter(rate.Every(time.Duration(seconds)*time.Second/time.Duration(calls)), calls),
		LimiterWindow: slidingwindow.NewLimiter(time.Duration(seconds)*time.Second, calls),
		UserAgent:     userAgent,
		Header:        make(http.Header),
		Attempts:      3,
		RetryDelay:    time.Second,
	}
}

func isRetryable(err error) bool {
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code == http.StatusTooManyRequests || status.Code == http.StatusRequestTimeout || status.Code >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func retryAfter(resp *http.Response) time.Duration {
	if sec, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && sec > 0 {
		return time.Duration(sec) * time.Second
	}
	return 30 * time.Second
}

// fetch waits for the limiters and returns the body of a successful response.
func (c *RLHTTPClient) fetch(ctx context.Context, method string, url string, body []byte, header http.Header) ([]byte, error) {
	var out []byte
	err := retry.Do(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.LimiterWindow.Wait(ctx); err != nil {
			return err
		}
		if err := c.Ratelimiter.Wait(ctx); err != nil {
			return err
		}
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return err
		}
		if c.UserAgent != "" {
			req.Header.Set("User-Agent", c.UserAgent)
		}
		for key := range c.Header {
			req.Header.Set(key, c.Header.Get(key))
		}
		for key := range header {
			req.Header.Set(key, header.Get(key))
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			c.LimiterWindow.BlockUntil(time.Now().Add(retryAfter(resp)))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 || resp.StatusCode == http.StatusNoContent {
			return &StatusError{Code: resp.StatusCode, URL: url}
		}
		reader, err = charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
		if err != nil {
			reader = resp.Body
		}
		out, err = io.ReadAll(reader)
		return err
	},
		retry.Attempts(c.Attempts),
		retry.Delay(c.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && isRetryable(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Log.Debug("Retry ", n+1, " for ", url, ": ", err)
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", url)
	}
	return out, nil
}

// GetBytes returns the body decoded to UTF-8.
func (c *RLHTTPClient) GetBytes(ctx context.Context, url string) ([]byte, error) {
	return c.fetch(ctx, http.MethodGet, url, nil, nil)
}

// DoJSON decodes the json body of a GET request into jsonobj.
func (c *RLHTTPClient) DoJSON(ctx context.Context, url string, jsonobj interface{}) error {
	data, err := c.fetch(ctx, http.MethodGet, url, nil, http.Header{"Accept": []string{"application/json"}})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, jsonobj); err != nil {
		return errors.Wrapf(err, "decode %s", url)
	}
	return nil
}

// PostJSON posts body as json and decodes the answer into jsonobj.
func (c *RLHTTPClient) PostJSON(ctx context.Context, url string, body interface{}, jsonobj interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	data, err := c.fetch(ctx, http.MethodPost, url, payload, http.Header{"Content-Type": []string{"application/json"}})
	if err != nil {
		return err
	}
	if jsonobj == nil {
		return nil
	}
	return json.Unmarshal(data, jsonobj)
}

// GetDocument loads a page for css selection.
func (c *RLHTTPClient) GetDocument(ctx context.Context, url string) (*goquery.Document, error) {
	data, err := c.GetBytes(ctx, url)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(data))
}

// GetNode loads a page for xpath queries.
func (c *RLHTTPClient) GetNode(ctx context.Context, url string) (*html.Node, error) {
	data, err := c.GetBytes(ctx, url)
	if err != nil {
		return nil, err
	}
	return htmlquery.Parse(bytes.NewReader(data))
}

// SetCookie stores a raw "a=b; c=d" cookie header for all requests.
func (c *RLHTTPClient) SetCookie(cookie string) {
	if cookie != "" {
		c.Header.Set("Cookie", cookie)
	}
}
