package api

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

	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	logger "github.com/PolarWolf314/zkdrive/internal/logging"
	"github.com/PolarWolf314/zkdrive/internal/metadata"
	"github.com/PolarWolf314/zkdrive/internal/stream"

	"github.com/hashicorp/go-retryablehttp"
)

// HTTPOptions configures an HTTPClient.
type HTTPOptions struct {
	BaseURL string
	Token   TokenFunc
	Timeout time.Duration
	Retries int
	Logger  logger.Logger
}

// HTTPClient talks JSON to a remote server. Network errors and 5xx responses
// are retried with backoff.
type HTTPClient struct {
	base   *url.URL
	token  TokenFunc
	client *retryablehttp.Client
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(opts HTTPOptions) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url %q must be http or https", opts.BaseURL)
	}

	c := retryablehttp.NewClient()
	c.RetryMax = opts.Retries
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.Logger = leveledLogger{opts.Logger}
	if opts.Timeout > 0 {
		c.HTTPClient.Timeout = opts.Timeout
	}
	return &HTTPClient{base: base, token: opts.Token, client: c}, nil
}

// leveledLogger routes retry chatter into the debug log.
type leveledLogger struct {
	log logger.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log.Debugf("%s %v", msg, kv) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.log.Debugf("%s %v", msg, kv) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log.Debugf("%s %v", msg, kv) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.log.Debugf("%s %v", msg, kv) }

func (c *HTTPClient) url(parts ...string) string {
	u := *c.base
	for _, p := range parts {
		u.Path += "/" + url.PathEscape(p)
	}
	return u.String()
}

func (c *HTTPClient) do(ctx context.Context, method, target string, body any, auth bool) (*http.Response, error) {
	var payload any
	contentType := ""
	switch b := body.(type) {
	case nil:
	case []byte:
		payload, contentType = b, "application/octet-stream"
	case io.Reader:
		return c.stream(ctx, method, target, b, auth)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		payload, contentType = data, "application/json"
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if err := c.authorize(req.Header, auth); err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	return checkResponse(method, target, resp, err)
}

// stream sends body with chunked transfer encoding. The body is read once,
// so the request is never retried.
func (c *HTTPClient) stream(ctx context.Context, method, target string, body io.Reader, auth bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, io.NopCloser(body))
	if err != nil {
		return nil, err
	}
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/octet-stream")
	if err := c.authorize(req.Header, auth); err != nil {
		return nil, err
	}

	resp, err := c.client.HTTPClient.Do(req)
	return checkResponse(method, target, resp, err)
}

func (c *HTTPClient) authorize(h http.Header, auth bool) error {
	if !auth {
		return nil
	}
	if c.token == nil {
		return kerrors.ErrNotAuthenticated
	}
	token, err := c.token()
	if err != nil {
		return err
	}
	h.Set("Authorization", "Bearer "+token)
	return nil
}

func checkResponse(method, target string, resp *http.Response, err error) (*http.Response, error) {
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, statusError(resp)
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(msg))
	var sentinel error
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		sentinel = kerrors.ErrAuthRejected
	case http.StatusForbidden:
		sentinel = kerrors.ErrNotAuthenticated
	case http.StatusNotFound:
		sentinel = kerrors.ErrNotFound
	case http.StatusConflict:
		sentinel = kerrors.ErrVersionConflict
	default:
		return fmt.Errorf("server returned %s: %s", resp.Status, detail)
	}
	if detail == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, detail)
}

func decode(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *HTTPClient) GetSalt(ctx context.Context, email string) (Prelogin, error) {
	target := c.url("api", "auth", "prelogin") + "?email=" + url.QueryEscape(email)
	resp, err := c.do(ctx, http.MethodGet, target, nil, false)
	if err != nil {
		return Prelogin{}, err
	}
	var p Prelogin
	return p, decode(resp, &p)
}

func (c *HTTPClient) Register(ctx context.Context, reg Registration) (LoginResult, error) {
	resp, err := c.do(ctx, http.MethodPost, c.url("api", "auth", "register"), reg, false)
	if err != nil {
		if errors.Is(err, kerrors.ErrVersionConflict) {
			return LoginResult{}, fmt.Errorf("%w: %s", kerrors.ErrUserExists, reg.Email)
		}
		return LoginResult{}, err
	}
	var r LoginResult
	return r, decode(resp, &r)
}

func (c *HTTPClient) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	resp, err := c.do(ctx, http.MethodPost, c.url("api", "auth", "login"), req, false)
	if err != nil {
		return LoginResult{}, err
	}
	var r LoginResult
	return r, decode(resp, &r)
}

func (c *HTTPClient) GetMetadata(ctx context.Context) (metadata.Envelope, error) {
	resp, err := c.do(ctx, http.MethodGet, c.url("api", "metadata"), nil, true)
	if err != nil {
		return metadata.Envelope{}, err
	}
	var env metadata.Envelope
	return env, decode(resp, &env)
}

// SaveMetadata sends the envelope with the version the caller read; the
// server answers 409 when it is stale.
func (c *HTTPClient) SaveMetadata(ctx context.Context, env metadata.Envelope, expectedVersion int) (int, error) {
	env.Version = expectedVersion
	resp, err := c.do(ctx, http.MethodPut, c.url("api", "metadata"), env, true)
	if err != nil {
		return 0, err
	}
	var out struct {
		Version int `json:"version"`
	}
	if err := decode(resp, &out); err != nil {
		return 0, err
	}
	return out.Version, nil
}

func (c *HTTPClient) PutChunk(ctx context.Context, fileID string, index int, data []byte) error {
	resp, err := c.do(ctx, http.MethodPut, c.url("api", "files", fileID, "chunks", fmt.Sprint(index)), data, true)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *HTTPClient) GetChunk(ctx context.Context, fileID string, index int) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodGet, c.url("api", "files", fileID, "chunks", fmt.Sprint(index)), nil, true)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// PutBlob streams r to the server as it is read; a failure is not retried.
func (c *HTTPClient) PutBlob(ctx context.Context, fileID string, r io.Reader) error {
	resp, err := c.do(ctx, http.MethodPut, c.url("api", "files", fileID, "blob"), r, true)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *HTTPClient) GetBlob(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodGet, c.url("api", "files", fileID, "blob"), nil, true)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *HTTPClient) PutManifest(ctx context.Context, m *stream.Manifest) error {
	resp, err := c.do(ctx, http.MethodPut, c.url("api", "files", m.FileID, "manifest"), m, true)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *HTTPClient) GetManifest(ctx context.Context, fileID string) (*stream.Manifest, error) {
	resp, err := c.do(ctx, http.MethodGet, c.url("api", "files", fileID, "manifest"), nil, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return stream.ParseManifest(bytes.TrimSpace(data))
}

func (c *HTTPClient) DeleteFile(ctx context.Context, fileID string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.url("api", "files", fileID), nil, true)
	if errors.Is(err, kerrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
