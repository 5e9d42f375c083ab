// Package client exposes a series of helper functions for
// executing http requests against a remote server and streaming
// response bodies to disk.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/adamwoolhether/downloader/client/download"
	"github.com/adamwoolhether/downloader/client/throttle"
)

// Client wraps the std-lib *http.Client
// It sets a default *http.Client and *http.Transport, which
// can be customized via optional funcs.
type Client struct {
	c      *http.Client
	logger *slog.Logger
}

func Build(optFns ...Option) (*Client, error) {
	client := &Client{
		c:      &http.Client{},
		logger: slog.Default(),
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	if opts.client != nil {
		client.c = opts.client
	}

	if opts.logger != nil {
		client.logger = opts.logger
	}

	if opts.timeout != nil {
		client.c.Timeout = *opts.timeout
	}

	if opts.noFollowRedirects {
		client.c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	var transport http.RoundTripper
	switch {
	case opts.rt != nil:
		transport = opts.rt
	case opts.client != nil && opts.client.Transport != nil:
		transport = opts.client.Transport
	default:
		transport = http.DefaultTransport
	}
	if len(opts.headers) > 0 || opts.userAgent != "" {
		transport = defaultHeaders{headers: opts.headers, userAgent: opts.userAgent, base: transport}
	}
	if opts.throttle != nil {
		rt, err := throttle.NewRoundTripper(opts.throttle.RPS, opts.throttle.Burst, func() *slog.Logger { return client.logger }, transport)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		transport = rt
	}
	client.c.Transport = transport

	return client, nil
}

// Do will fire the request, and write response to the given dest object if any.
func (c *Client) Do(req *http.Request, expCode int, opts ...DoOption) error {
	var settings doOpts
	for _, opt := range opts {
		err := opt(&settings)
		if err != nil {
			return err
		}
	}

	doFunc := func(resp *http.Response) error {
		if settings.responseBody != nil {
			d := json.NewDecoder(resp.Body)

			if settings.useJSONNum {
				d.UseNumber()
			}

			if err := d.Decode(settings.responseBody); err != nil {
				return fmt.Errorf("decoding body: %w", err)
			}
		}

		return nil
	}

	return c.exec(req, doFunc, expCode)
}

// Download executes a request that's intended to stream the response body to destPath.
// Data streams to a temp file in the same directory, then the temp file is renamed to
// destPath on success or cleared on failure.
//
// With download.WithResume, an existing "<destPath>.part" is continued with a Range
// request. A 206 response appends to it; expCode restarts the file from scratch.
func (c *Client) Download(req *http.Request, expCode int, destPath string, opts ...DownloadOption) (download.Stats, error) {
	plan, err := download.NewPlan(destPath, opts...)
	if err != nil {
		return download.Stats{}, err
	}

	if plan.Skip {
		return plan.Write(req.Context(), http.NoBody, 0, false, c.logger)
	}

	stats, err := c.fetch(req, expCode, plan)
	if se, ok := errors.AsType[*UnexpectedStatusError](err); ok && plan.Offset > 0 && se.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		// The partial file no longer matches what the server has.
		c.logger.Warn("partial file rejected, restarting download", "path", destPath, "offset", plan.Offset)
		if err := plan.Restart(); err != nil {
			return download.Stats{}, err
		}
		stats, err = c.fetch(req, expCode, plan)
	}

	return stats, err
}

// fetch sends req, asking for the remainder of a partial file when plan
// has one, and writes the response through plan.
func (c *Client) fetch(req *http.Request, expCode int, plan *download.Plan) (download.Stats, error) {
	expCodes := []int{expCode}
	if rng := plan.RangeHeader(); rng != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Range", rng)
		expCodes = append(expCodes, http.StatusPartialContent)

		c.logger.Info("resuming download", "path", plan.DestPath, "offset", plan.Offset)
	}

	var stats download.Stats
	dlFunc := func(resp *http.Response) error {
		resumed := plan.Offset > 0 && resp.StatusCode == http.StatusPartialContent

		s, err := plan.Write(req.Context(), resp.Body, resp.ContentLength, resumed, c.logger)
		if err != nil {
			return fmt.Errorf("download: %w", err)
		}
		stats = s

		return nil
	}

	if err := c.exec(req, dlFunc, expCodes...); err != nil {
		return download.Stats{}, err
	}

	return stats, nil
}

// DownloadAsync starts Download in a background goroutine and returns a handle
// to it. Use download.WithBatch to bound concurrency and Result.Add to enqueue
// more files on the same queue.
func (c *Client) DownloadAsync(req *http.Request, expCode int, destPath string, opts ...DownloadOption) (*DownloadResult, error) {
	if destPath == "" {
		return nil, errors.New("destPath must not be empty")
	}

	q, err := download.QueueFor(opts...)
	if err != nil {
		return nil, fmt.Errorf("configuring queue: %w", err)
	}

	fn := func(ctx context.Context) error {
		_, err := c.Download(req.WithContext(ctx), expCode, destPath, opts...)
		return err
	}

	return q.Start(req.Context(), fn, c.DownloadAsync), nil
}

// Request instantiates an *http.Request with the provided information.
// It's just a convenience method that wraps the public Request func.
func (c *Client) Request(ctx context.Context, reqURL *url.URL, method string, opts ...RequestOption) (*http.Request, error) {
	return Request(ctx, reqURL, method, opts...)
}

// URL creates a url.URL for use in Request.
// It's just a convenience method that wraps the public URL func.
func (c *Client) URL(scheme, host, path string, opts ...URLOption) *url.URL {
	return URL(scheme, host, path, opts...)
}

// exec runs the request and injected function on success after validating the status code
// is one of expCodes.
func (c *Client) exec(req *http.Request, fn execFn, expCodes ...int) error {
	resp, err := c.c.Do(req)
	if err != nil {
		return fmt.Errorf("exec http do: %w", err)
	}

	discardBody := true
	defer func() {
		if discardBody {
			if _, err = io.Copy(io.Discard, resp.Body); err != nil {
				c.logger.Error("failed to discard unused body", "error", err)
			}
		}
		if err = resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	if !slices.Contains(expCodes, resp.StatusCode) {
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrBodySize))
		if err != nil {
			b = []byte("unable to read body")
		}

		return newStatusError(resp, b)
	}

	if err := fn(resp); err != nil {
		discardBody = false
		return fmt.Errorf("exec fn: %w", err)
	}

	return nil
}

// Request instantiates an *http.Request with the provided information.
// Content-Type defaults to `application/json` if unspecified via WithContentType.
func Request(ctx context.Context, reqURL *url.URL, method string, opts ...RequestOption) (*http.Request, error) {
	var settings requestOpts
	for _, opt := range opts {
		err := opt(&settings)
		if err != nil {
			return nil, err
		}
	}

	var body io.Reader = http.NoBody
	if settings.body != nil {
		var payload bytes.Buffer
		if err := json.NewEncoder(&payload).Encode(settings.body); err != nil {
			return nil, fmt.Errorf("encoding request payload: %w", err)
		}
		body = &payload
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("instantiating request: %w", err)
	}

	for _, cookie := range settings.cookies {
		req.AddCookie(cookie)
	}

	contentType := "application/json"
	if settings.contentType != nil {
		contentType = *settings.contentType
	}

	req.Header.Set("Content-Type", contentType)
	for k, v := range settings.headers {
		for _, element := range v {
			req.Header.Add(k, element)
		}
	}

	return req, nil
}

// URL creates a url.URL for use in Request.
func URL(scheme, host, path string, opts ...URLOption) *url.URL {
	var settings urlOpts
	for _, opt := range opts {
		opt(&settings)
	}

	if settings.port != nil {
		host = fmt.Sprintf("%s:%d", host, *settings.port)
	}

	endpoint := url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   path,
	}

	if settings.queryStrings != nil {
		queryParams := url.Values{}
		for k, v := range settings.queryStrings {
			queryParams.Add(k, v)
		}

		endpoint.RawQuery = queryParams.Encode()
	}

	return &endpoint
}
