package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"xenvman/pkg/config"
	"xenvman/pkg/env"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries a per-request id so client and server logs can be matched
const RequestIDHeader = "X-Request-ID"

// Client talks to a xenvman API server
type Client struct {
	serverAddress string
	httpClient    *http.Client
	logger        *logrus.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every request.
// Timeouts and retries belong to it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the request timeout of the default HTTP client
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: timeout}
	}
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client. The XENV_API_SERVER environment variable,
// when set, overrides address.
func NewClient(address string, opts ...Option) *Client {
	c := &Client{
		serverAddress: config.ResolveAddress(address),
		httpClient:    &http.Client{Timeout: 60 * time.Second},
		logger:        logrus.StandardLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ServerAddress returns the effective API address
func (c *Client) ServerAddress() string {
	return c.serverAddress
}

// NewEnv creates a new environment
func (c *Client) NewEnv(ctx context.Context, input *env.InputEnv) (*Env, error) {
	var out env.OutputEnv
	if err := c.call(ctx, http.MethodPost, "/api/v1/env", input, &out); err != nil {
		return nil, fmt.Errorf("failed to create environment %q: %w", input.Name, err)
	}

	for name, want := range input.TemplateCounts() {
		if got := len(out.Templates[name]); got != want {
			c.logger.WithFields(logrus.Fields{
				"env_id":   out.ID,
				"template": name,
				"want":     want,
				"got":      got,
			}).Warn("Template instantiation count mismatch")
		}
	}

	c.logger.WithFields(logrus.Fields{
		"env_id":           out.ID,
		"name":             out.Name,
		"external_address": out.ExternalAddress,
	}).Info("Environment created")

	return newEnv(c, &out), nil
}

// ListEnvs returns the environments known to the server
func (c *Client) ListEnvs(ctx context.Context) ([]*env.OutputEnv, error) {
	var envs []*env.OutputEnv
	if err := c.call(ctx, http.MethodGet, "/api/v1/env", nil, &envs); err != nil {
		return nil, fmt.Errorf("failed to list environments: %w", err)
	}
	return envs, nil
}

// GetEnvInfo returns the server's current view of one environment
func (c *Client) GetEnvInfo(ctx context.Context, id string) (*env.OutputEnv, error) {
	var out env.OutputEnv
	if err := c.call(ctx, http.MethodGet, envPath(id), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get environment %s: %w", id, err)
	}
	return &out, nil
}

// AttachEnv wraps an existing environment in a handle
func (c *Client) AttachEnv(ctx context.Context, id string) (*Env, error) {
	out, err := c.GetEnvInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	return newEnv(c, out), nil
}

// ListTemplates returns template metadata keyed by template name
func (c *Client) ListTemplates(ctx context.Context) (map[string]*env.TplInfo, error) {
	var tpls map[string]*env.TplInfo
	if err := c.call(ctx, http.MethodGet, "/api/v1/tpl", nil, &tpls); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	if tpls == nil {
		tpls = map[string]*env.TplInfo{}
	}
	return tpls, nil
}

func envPath(id string) string {
	return "/api/v1/env/" + url.PathEscape(id)
}

// call performs one round trip. Anything but 200 is a ProtocolError.
// When out is not nil the "data" member of the response is decoded into it.
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	reqURL := c.serverAddress + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	requestID := uuid.New().String()
	req.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"method":     method,
			"url":        reqURL,
			"request_id": requestID,
		}).Warn("xenvman request failed")
		return fmt.Errorf("%s %s: %w", method, reqURL, err)
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"method":     method,
		"url":        reqURL,
		"status":     resp.StatusCode,
		"duration":   time.Since(start),
		"request_id": requestID,
	}).Debug("xenvman request")

	if resp.StatusCode != http.StatusOK {
		return newProtocolError(resp)
	}

	if out == nil {
		return nil
	}

	return decodeData(resp.Body, out)
}

// envelope is the {"data": ...} wrapper of every payload
type envelope struct {
	Data json.RawMessage `json:"data"`
}

func decodeData(r io.Reader, out interface{}) error {
	var resp envelope
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(resp.Data) == 0 || bytes.Equal(resp.Data, []byte("null")) {
		return fmt.Errorf("failed to decode response: missing data")
	}

	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
