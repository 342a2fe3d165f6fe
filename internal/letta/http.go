package letta

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"letta-mcp-server/internal/circuitbreaker"
	"letta-mcp-server/internal/config"
	mcperrors "letta-mcp-server/internal/errors"
	"letta-mcp-server/internal/logging"
	"letta-mcp-server/internal/retry"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const apiPrefix = "/v1"

// maxErrorBody bounds how much of a failed response is kept for diagnostics
const maxErrorBody = 4 << 10

// HTTPClient is the Letta REST implementation of Client. One instance is
// built at startup and shared by every router; it carries no per-call state.
type HTTPClient struct {
	baseURL  string
	password string
	http     *http.Client
	retrier  *retry.Retrier
	breaker  *circuitbreaker.CircuitBreaker
	limiter  *rate.Limiter
	logger   logging.Logger

	agents     *agentsAPI
	messages   *messagesAPI
	memory     *memoryAPI
	blocks     *blocksAPI
	passages   *passagesAPI
	tools      *toolsAPI
	mcpServers *mcpServersAPI
	sources    *sourcesAPI
	folders    *foldersAPI
	files      *filesAPI
	jobs       *jobsAPI
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a pooled client for the configured Letta instance
func NewHTTPClient(cfg config.LettaConfig, logger logging.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("letta base URL cannot be empty")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid letta base URL: %w", err)
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	logger = logger.WithComponent("letta_client")

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout(),
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConnsPerHost * 2,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleTimeout(),
		ForceAttemptHTTP2:   true,
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = max(cfg.RetryAttempts, 1)
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("retrying letta request", "attempt", attempt, "delay", delay.String(), "error", err.Error())
	}

	c := &HTTPClient{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		password: cfg.Password,
		http:     &http.Client{Transport: transport, Timeout: cfg.RequestTimeout()},
		retrier:  retry.New(retryCfg),
		logger:   logger,
	}

	if cfg.CircuitBreaker {
		cbCfg := circuitbreaker.DefaultConfig()
		cbCfg.OnStateChange = func(from, to circuitbreaker.State) {
			logger.Warn("letta circuit breaker state changed", "from", from.String(), "to", to.String())
		}
		c.breaker = circuitbreaker.New(cbCfg)
	}
	if cfg.RequestsPerSecond > 0 {
		burst := max(int(cfg.RequestsPerSecond), 1)
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	c.agents = &agentsAPI{c}
	c.messages = &messagesAPI{c}
	c.memory = &memoryAPI{c}
	c.blocks = &blocksAPI{c}
	c.passages = &passagesAPI{c}
	c.tools = &toolsAPI{c}
	c.mcpServers = &mcpServersAPI{c}
	c.sources = &sourcesAPI{c}
	c.folders = &foldersAPI{c}
	c.files = &filesAPI{c}
	c.jobs = &jobsAPI{c}

	return c, nil
}

func (c *HTTPClient) Agents() AgentsAPI         { return c.agents }
func (c *HTTPClient) Messages() MessagesAPI     { return c.messages }
func (c *HTTPClient) Memory() MemoryAPI         { return c.memory }
func (c *HTTPClient) Blocks() BlocksAPI         { return c.blocks }
func (c *HTTPClient) Passages() PassagesAPI     { return c.passages }
func (c *HTTPClient) Tools() ToolsAPI           { return c.tools }
func (c *HTTPClient) MCPServers() MCPServersAPI { return c.mcpServers }
func (c *HTTPClient) Sources() SourcesAPI       { return c.sources }
func (c *HTTPClient) Folders() FoldersAPI       { return c.folders }
func (c *HTTPClient) Files() FilesAPI           { return c.files }
func (c *HTTPClient) Jobs() JobsAPI             { return c.jobs }

// BreakerState reports the backend circuit state for health checks
func (c *HTTPClient) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.GetState().String()
}

// request describes one backend call. resource and id name the addressed
// entity so a 404 can be reported as a precise NotFound.
type request struct {
	method      string
	path        string
	query       url.Values
	body        interface{}
	rawBody     []byte
	contentType string
	resource    string
	id          string
}

// do executes req with rate limiting, retries and the circuit breaker, then
// decodes the JSON response into out (when non-nil)
func (c *HTTPClient) do(ctx context.Context, req request, out interface{}) error {
	payload := req.rawBody
	contentType := req.contentType
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return mcperrors.NewInvalidPayloadError("body", fmt.Sprintf("cannot encode request: %v", err), nil)
		}
		payload = encoded
		contentType = "application/json"
	}

	var respBody []byte
	call := func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return mcperrors.NewBackendError("rate limiter wait aborted", err, nil)
			}
		}
		attempt := func(ctx context.Context) error {
			body, err := c.roundTrip(ctx, req, payload, contentType)
			if err != nil {
				return err
			}
			respBody = body
			return nil
		}
		if c.breaker == nil {
			return attempt(ctx)
		}
		err := c.breaker.Execute(ctx, attempt)
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyConcurrentRequests) {
			return mcperrors.NewBackendError("letta backend unavailable", err, nil)
		}
		return err
	}
	// only reads are resent; a write whose response was lost may already
	// have been applied
	if retriable(req.method) {
		if result := c.retrier.Do(ctx, call); result.Err != nil {
			return result.Err
		}
	} else if err := call(ctx); err != nil {
		return err
	}

	if raw, ok := out.(*rawResponse); ok {
		*raw = respBody
		return nil
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return mcperrors.NewBackendError("failed to decode letta response", err,
			&mcperrors.BackendDetail{Method: req.method, Path: req.path})
	}
	return nil
}

func retriable(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func (c *HTTPClient) roundTrip(ctx context.Context, req request, payload []byte, contentType string) ([]byte, error) {
	endpoint := c.baseURL + apiPrefix + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return nil, mcperrors.NewBackendError("failed to create request", err, nil)
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	c.authorize(httpReq)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, mcperrors.NewBackendError("letta request failed", err,
			&mcperrors.BackendDetail{Method: req.method, Path: req.path})
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mcperrors.NewBackendError("failed to read letta response", err,
			&mcperrors.BackendDetail{Status: resp.StatusCode, Method: req.method, Path: req.path})
	}

	c.logger.DebugContext(ctx, "letta request completed",
		"method", req.method, "path", req.path, "status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}
	return nil, classifyStatus(req, resp.StatusCode, respBody)
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.password == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.password)
	req.Header.Set("X-BARE-PASSWORD", "password "+c.password)
}

// classifyStatus maps a non-2xx backend status onto the error taxonomy
func classifyStatus(req request, status int, body []byte) error {
	detail := backendMessage(body)
	switch status {
	case http.StatusNotFound:
		resource, id := req.resource, req.id
		if resource == "" {
			resource = "resource"
		}
		if id == "" {
			id = req.path
		}
		return mcperrors.NewNotFoundError(resource, id)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return mcperrors.NewInvalidPayloadError("body", "rejected by letta: "+detail, nil)
	case http.StatusUnauthorized, http.StatusForbidden:
		return mcperrors.NewUnauthorizedError(detail)
	default:
		return mcperrors.NewBackendError(fmt.Sprintf("letta returned status %d", status), nil,
			&mcperrors.BackendDetail{Status: status, Method: req.method, Path: req.path, Response: detail})
	}
}

// backendMessage extracts Letta's {"detail": ...} error text
func backendMessage(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	var envelope struct {
		Detail interface{} `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Detail != nil {
		if s, ok := envelope.Detail.(string); ok {
			return s
		}
		if encoded, err := json.Marshal(envelope.Detail); err == nil {
			return string(encoded)
		}
	}
	return strings.TrimSpace(string(body))
}

// rawResponse receives a response body verbatim instead of decoded JSON
type rawResponse []byte

// pageQuery renders limit/offset pagination; zero values are omitted
func pageQuery(limit, offset int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	return q
}

func escape(segment string) string {
	return url.PathEscape(segment)
}
