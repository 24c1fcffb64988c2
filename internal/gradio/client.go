// Package gradio calls a hosted Gradio app, such as a Hugging Face Space,
// through its HTTP "call" API.
package gradio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/faceswap/internal/logging"
)

const defaultHubURL = "https://huggingface.co"

// Client is a connection to one Gradio app.
type Client struct {
	host        string
	prefix      string
	hubURL      string
	token       string
	downloadDir string
	httpClient  *http.Client
	logger      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHubURL overrides the Hugging Face hub used to resolve Space ids.
func WithHubURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.hubURL = strings.TrimRight(u, "/")
		}
	}
}

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithDownloadDir sets where output files are downloaded to.
func WithDownloadDir(dir string) Option {
	return func(c *Client) {
		if dir != "" {
			c.downloadDir = dir
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Dial resolves space to a Gradio host and reads its config. space is
// either a Space id ("owner/name") or a base URL.
func Dial(ctx context.Context, space string, opts ...Option) (*Client, error) {
	c := &Client{
		hubURL:      defaultHubURL,
		downloadDir: filepath.Join(os.TempDir(), "faceswap-downloads"),
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("gradio")

	host, err := c.resolveHost(ctx, space)
	if err != nil {
		return nil, logging.NewTargetError("gradio.resolve_host", space, err)
	}
	c.host = host

	prefix, err := c.fetchAPIPrefix(ctx)
	if err != nil {
		return nil, logging.NewTargetError("gradio.config", host, err)
	}
	c.prefix = prefix

	c.logger.Debug("connected", zap.String("space", space), zap.String("host", host), zap.String("api_prefix", prefix))
	return c, nil
}

// Host returns the resolved base URL of the app.
func (c *Client) Host() string { return c.host }

func (c *Client) resolveHost(ctx context.Context, space string) (string, error) {
	space = strings.TrimSpace(space)
	if space == "" {
		return "", fmt.Errorf("empty space id")
	}
	if strings.HasPrefix(space, "http://") || strings.HasPrefix(space, "https://") {
		return strings.TrimRight(space, "/"), nil
	}

	endpoint := fmt.Sprintf("%s/api/spaces/%s/host", c.hubURL, space)
	var payload struct {
		Subdomain string `json:"subdomain"`
		Host      string `json:"host"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return "", err
	}
	if payload.Host == "" {
		return "", fmt.Errorf("hub returned no host for space %q", space)
	}
	return strings.TrimRight(payload.Host, "/"), nil
}

func (c *Client) fetchAPIPrefix(ctx context.Context) (string, error) {
	var cfg struct {
		Version   string `json:"version"`
		APIPrefix string `json:"api_prefix"`
	}
	if err := c.getJSON(ctx, c.host+"/config", &cfg); err != nil {
		return "", err
	}
	prefix := strings.TrimRight(cfg.APIPrefix, "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix, nil
}

func (c *Client) apiURL(parts ...string) string {
	return c.host + c.prefix + "/" + strings.Join(parts, "/")
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends req and fails on any non-2xx status.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{URL: redact(req.URL), Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.URL, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.URL, e.Code, e.Body)
}

func redact(u *url.URL) string {
	cp := *u
	cp.RawQuery = ""
	cp.User = nil
	return cp.String()
}
