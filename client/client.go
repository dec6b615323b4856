// Package client is a typed HTTP client for the triaxial API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/triaxial/triaxial/internal/stats"
	"github.com/triaxial/triaxial/shared"
)

const (
	DefaultServerURL = "http://localhost:8080"
	versionHeader    = "X-Triaxial-Version"
)

// APIError is returned for every non-200 response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Code       string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("failed to %s %s: status_code=%d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("failed to %s %s: status_code=%d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// TimeRange holds the optional filters accepted by the stats endpoints. Window is ignored by the
// server when Start is set.
type TimeRange struct {
	Start  *time.Time
	End    *time.Time
	Window string
}

func (tr TimeRange) query() url.Values {
	q := url.Values{}
	if tr.Start != nil {
		q.Set("start", tr.Start.UTC().Format(time.RFC3339Nano))
	}
	if tr.End != nil {
		q.Set("end", tr.End.UTC().Format(time.RFC3339Nano))
	}
	if tr.Window != "" {
		q.Set("window", tr.Window)
	}
	return q
}

type Client struct {
	serverURL  string
	httpClient *http.Client
	version    string
	logger     logrus.FieldLogger
}

type Option func(*Client)

func WithServerURL(serverURL string) Option {
	return func(c *Client) {
		c.serverURL = strings.TrimSuffix(serverURL, "/")
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithVersion(version string) Option {
	return func(c *Client) {
		c.version = version
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(options ...Option) *Client {
	c := &Client{
		serverURL:  DefaultServerURL,
		httpClient: http.DefaultClient,
		version:    "dev",
		logger:     logrus.StandardLogger(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) CreateUser(ctx context.Context, username string) (uint, error) {
	var resp shared.MessageResponse
	if err := c.post(ctx, "/users/", shared.UserCreate{Username: username}, &resp); err != nil {
		return 0, err
	}
	return resp.UserId, nil
}

func (c *Client) RegisterDevice(ctx context.Context, username, deviceId string) error {
	return c.post(ctx, "/devices/", shared.DeviceCreate{Username: username, DeviceId: deviceId}, nil)
}

func (c *Client) SubmitReading(ctx context.Context, reading shared.ReadingInput) error {
	return c.post(ctx, "/data/", reading, nil)
}

// SubmitReadings stores all readings or none of them and returns how many were stored.
func (c *Client) SubmitReadings(ctx context.Context, readings []shared.ReadingInput) (int, error) {
	var resp shared.MessageResponse
	if err := c.post(ctx, "/data/batch", readings, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *Client) DeviceStats(ctx context.Context, deviceId string, tr TimeRange) (stats.AxesSummary, error) {
	var resp stats.AxesSummary
	err := c.get(ctx, "/stats/"+url.PathEscape(deviceId), tr.query(), &resp)
	return resp, err
}

func (c *Client) UserStats(ctx context.Context, username string, tr TimeRange, omitEmpty bool) (shared.UserStats, error) {
	q := tr.query()
	if omitEmpty {
		q.Set("omit_empty", "true")
	}
	var resp shared.UserStats
	err := c.get(ctx, "/user_stats/"+url.PathEscape(username), q, &resp)
	return resp, err
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, reqBody, out)
}

func (c *Client) do(ctx context.Context, method, path string, reqBody []byte, out any) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", method, err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(versionHeader, c.version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s %s%s: %w", method, c.serverURL, path, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body from %s %s%s: %w", method, c.serverURL, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode}
		var errResp shared.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil {
			apiErr.Code = errResp.Code
			apiErr.Detail = errResp.Detail
		}
		return apiErr
	}
	c.logger.Debugf("%s(%#v): %d bytes - %s", method, c.serverURL+path, len(respBody), time.Since(start).String())

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response from %s %s: %w", method, path, err)
	}
	return nil
}
