package mcpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumenai/conduit/internal/authcache"
	"github.com/lumenai/conduit/internal/backoff"
	"github.com/lumenai/conduit/internal/errkind"
)

const (
	connectTimeout  = 30 * time.Second
	readTimeout     = 360 * time.Second
	handshakeRounds = 3
)

const protocolVersion = "2024-11-05"

// ClientInfo identifies this agent to MCP servers during the handshake.
type ClientInfo struct {
	Name    string
	Version string
}

// Client is a single MCP server's JSON-RPC client. It owns the server's
// session lifecycle: at most one initialize handshake is ever in flight.
type Client struct {
	cfg        ServerConfig
	clientInfo ClientInfo
	auth       *authcache.Cache
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.Mutex
	state sessionState
	sess  *session
}

// New returns a Client for the given server configuration.
func New(cfg ServerConfig, clientInfo ClientInfo, auth *authcache.Cache, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		clientInfo: clientInfo,
		auth:       auth,
		logger:     logger.With("component", "mcpclient", "server", cfg.Name),
		httpClient: &http.Client{Timeout: readTimeout},
		state:      stateIdle,
	}
}

func (c *Client) isWebcrawlVariant() bool {
	needle := strings.ToLower(c.cfg.Name + c.cfg.BaseURL)
	return strings.Contains(needle, "webcrawl")
}

// ensureSession returns a ready session, performing the initialize
// handshake if needed. Only one handshake runs at a time per server.
func (c *Client) ensureSession(ctx context.Context) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateReady && c.sess != nil {
		return c.sess, nil
	}

	c.state = stateAwaitingInit
	sess, err := c.handshake(ctx, "")
	if err != nil {
		c.state = stateFailed
		return nil, err
	}
	c.state = stateInitialized

	if err := c.validateSession(ctx, sess); err != nil {
		c.logger.Warn("session validation failed, attempting alternate setup", "error", err)
		sess, err = c.alternateSessionSetup(ctx)
		if err != nil {
			c.state = stateFailed
			return nil, err
		}
	}

	c.state = stateReady
	c.sess = sess
	return sess, nil
}

// discardSession forces the next call to re-handshake, used after a
// protocol error discards a session mid-use.
func (c *Client) discardSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = stateReinit
	c.sess = nil
}

// handshake performs initialize + notifications/initialized. sessionHint,
// when non-empty, overrides the session ID this round should establish
// (used by alternate-session setup to try specific formats).
func (c *Client) handshake(ctx context.Context, sessionHint string) (*session, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools":     map[string]any{"listChanged": true},
			"resources": map[string]any{"listChanged": true},
		},
		"clientInfo": map[string]any{
			"name":    c.clientInfo.Name,
			"version": c.clientInfo.Version,
		},
	}

	headers := http.Header{}
	if sessionHint != "" {
		c.attachSessionHeaders(headers, sessionHint)
	}

	respHeader, result, err := c.rawCall(ctx, "initialize", params, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: initialize: %s", errkind.ErrTransport, err)
	}

	id, source := extractSessionID(respHeader, result)
	switch {
	case sessionHint != "" && source == sourceFailsafe:
		id = sessionHint
		source = sourceFailsafe
	case sessionHint == "" && source == sourceFailsafe && c.isWebcrawlVariant():
		// Webcrawl-variant servers that don't echo a session ID expect one
		// shaped like the header/URL formats they themselves use.
		id = webcrawlSessionID(uuid.New().String)
	}

	sess := &session{
		serverName:        c.cfg.Name,
		id:                id,
		source:            source,
		establishedAt:     time.Now(),
		isWebcrawlVariant: c.isWebcrawlVariant(),
	}

	// notifications/initialized: failure is logged but not fatal.
	notifyHeaders := http.Header{}
	c.attachSessionHeaders(notifyHeaders, sess.id)
	if err := c.notify(ctx, "notifications/initialized", map[string]any{}, notifyHeaders); err != nil {
		c.logger.Warn("notifications/initialized failed", "error", err)
	}

	return sess, nil
}

// validateSession issues a lightweight tools/list to confirm the session
// is accepted by the server.
func (c *Client) validateSession(ctx context.Context, sess *session) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	headers := http.Header{}
	c.attachSessionHeaders(headers, sess.id)
	_, _, err := c.rawCall(ctx, "tools/list", nil, headers)
	return err
}

// alternateSessionSetup retries the handshake up to handshakeRounds times
// with different session ID formats, falling back to an unauthenticated
// tool listing endpoint, and finally reporting the server unavailable.
func (c *Client) alternateSessionSetup(ctx context.Context) (*session, error) {
	firstFormat := failsafeSessionID
	if c.isWebcrawlVariant() {
		firstFormat = func() string { return webcrawlSessionID(uuid.New().String) }
	}
	formats := []func() string{
		firstFormat,
		func() string { return uuid.New().String() },
		func() string { return fmt.Sprintf("%s-%s", c.cfg.Name, uuid.New().String()) },
	}

	var lastErr error
	for i := 0; i < handshakeRounds && i < len(formats); i++ {
		hint := formats[i]()
		sess, err := c.handshake(ctx, hint)
		if err != nil {
			lastErr = err
			continue
		}
		if err := c.validateSession(ctx, sess); err != nil {
			lastErr = err
			continue
		}
		return sess, nil
	}

	if ok, _ := c.probeUnauthenticatedTools(ctx); ok {
		return &session{serverName: c.cfg.Name, source: sourceNone, establishedAt: time.Now()}, nil
	}

	return nil, fmt.Errorf("%w: server %q unavailable after alternate session setup: %v", errkind.ErrTransport, c.cfg.Name, lastErr)
}

// probeUnauthenticatedTools checks whether the server advertises an
// unauthenticated tool listing endpoint as a last resort.
func (c *Client) probeUnauthenticatedTools(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(c.cfg.BaseURL, "/")+"/mcp/tools", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

func (c *Client) attachSessionHeaders(h http.Header, sessionID string) {
	if sessionID == "" {
		return
	}
	if c.isWebcrawlVariant() {
		h.Set("Mcp-Session-Id", sessionID)
		h.Set("X-Mcp-Session-Id", sessionID)
		h.Set("Session-Id", sessionID)
		return
	}
	h.Set("Mcp-Session-Id", sessionID)
}

// DiscoverTools lists the tools exposed by this server.
func (c *Client) DiscoverTools(ctx context.Context) ([]ToolDescriptor, error) {
	sess, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	c.attachSessionHeaders(headers, sess.id)

	// tools/list is idempotent, so a single transient failure is worth one
	// retry before giving up and tearing down the session.
	result, err := backoff.RetryFunc(ctx, 2, func(attempt int) (json.RawMessage, error) {
		_, result, err := c.rawCall(ctx, "tools/list", nil, headers)
		return result, err
	})
	if err != nil {
		c.discardSession()
		return nil, fmt.Errorf("%w: tools/list: %s", errkind.ErrProtocol, err)
	}

	var parsed listToolsResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding tools/list result: %s", errkind.ErrProtocol, err)
	}
	for i := range parsed.Tools {
		parsed.Tools[i].SourceServer = c.cfg.Name
	}
	return parsed.Tools, nil
}

// InvokeTool calls the named tool with the given JSON arguments.
func (c *Client) InvokeTool(ctx context.Context, name string, argsJSON json.RawMessage) (ToolResult, error) {
	sess, err := c.ensureSession(ctx)
	if err != nil {
		return ToolResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	headers := http.Header{}
	c.attachSessionHeaders(headers, sess.id)

	params := callToolParams{Name: name, Arguments: argsJSON}
	status, result, err := c.rawCallStatus(ctx, "tools/call", params, headers)
	if err != nil {
		return ToolResult{Content: err.Error(), IsError: true}, nil
	}

	if status == http.StatusNotModified {
		if len(result) == 0 {
			return ToolResult{Content: "<cached>", IsError: false}, nil
		}
	}

	var parsed callToolResult
	if len(result) > 0 {
		if err := json.Unmarshal(result, &parsed); err != nil {
			return ToolResult{Content: fmt.Sprintf("malformed tool result: %s", err), IsError: true}, nil
		}
	}

	if status >= 400 {
		content := joinToolContent(parsed.Content)
		if content == "" {
			content = fmt.Sprintf("http %d", status)
		}
		return ToolResult{Content: content, IsError: true}, nil
	}

	return ToolResult{Content: joinToolContent(parsed.Content), IsError: parsed.IsError}, nil
}

func joinToolContent(blocks []ToolResultContent) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, b.Text)
		default:
			if b.Data != "" {
				parts = append(parts, b.Data)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// rawCall issues a JSON-RPC request and returns the response header and
// raw result, treating any non-2xx HTTP status or JSON-RPC error as a Go
// error.
func (c *Client) rawCall(ctx context.Context, method string, params any, headers http.Header) (http.Header, json.RawMessage, error) {
	status, respHeader, result, rpcErr, err := c.do(ctx, method, params, headers)
	if err != nil {
		return nil, nil, err
	}
	if rpcErr != nil {
		return respHeader, nil, fmt.Errorf("jsonrpc error %d: %s", rpcErr.Code, rpcErr.Message)
	}
	if status >= 400 {
		return respHeader, nil, fmt.Errorf("http %d", status)
	}
	return respHeader, result, nil
}

// rawCallStatus is like rawCall but surfaces the HTTP status code so
// callers can distinguish 304 from 2xx, per the tool-invocation contract.
func (c *Client) rawCallStatus(ctx context.Context, method string, params any, headers http.Header) (int, json.RawMessage, error) {
	status, _, result, rpcErr, err := c.do(ctx, method, params, headers)
	if err != nil {
		return 0, nil, err
	}
	if rpcErr != nil {
		return status, nil, fmt.Errorf("jsonrpc error %d: %s", rpcErr.Code, rpcErr.Message)
	}
	return status, result, nil
}

func (c *Client) do(ctx context.Context, method string, params any, headers http.Header) (status int, respHeader http.Header, result json.RawMessage, rpcErr *JSONRPCError, err error) {
	req := JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      uuid.New().String(),
		Method:  method,
		Params:  json.RawMessage("{}"),
	}
	if params != nil {
		b, marshalErr := json.Marshal(params)
		if marshalErr != nil {
			return 0, nil, nil, nil, fmt.Errorf("marshal params: %w", marshalErr)
		}
		req.Params = b
	}

	body, err := json.Marshal(req)
	if err != nil {
		return 0, nil, nil, nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(c.cfg.BaseURL, "/")+"/mcp", bytes.NewReader(body))
	if err != nil {
		return 0, nil, nil, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		for _, vv := range v {
			httpReq.Header.Add(k, vv)
		}
	}
	if err := c.attachAuth(ctx, httpReq); err != nil {
		return 0, nil, nil, nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, nil, nil, fmt.Errorf("%w: %s", errkind.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return resp.StatusCode, resp.Header, nil, nil, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, resp.Header, nil, nil, err
	}
	if len(raw) == 0 {
		return resp.StatusCode, resp.Header, nil, nil, nil
	}

	var rpcResp JSONRPCResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return resp.StatusCode, resp.Header, nil, nil, fmt.Errorf("%w: decoding response: %s", errkind.ErrProtocol, err)
	}

	return resp.StatusCode, resp.Header, rpcResp.Result, rpcResp.Error, nil
}

func (c *Client) notify(ctx context.Context, method string, params any, headers http.Header) error {
	req := struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
	}{JSONRPC: "2.0", Method: method, Params: json.RawMessage("{}")}

	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		req.Params = b
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(c.cfg.BaseURL, "/")+"/mcp", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		for _, vv := range v {
			httpReq.Header.Add(k, vv)
		}
	}
	if err := c.attachAuth(ctx, httpReq); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func (c *Client) attachAuth(ctx context.Context, req *http.Request) error {
	if c.auth == nil {
		return nil
	}
	header, value, err := c.auth.HeaderValue(ctx, c.cfg.Auth, c.cfg.Name)
	if err != nil {
		return err
	}
	if header != "" {
		req.Header.Set(header, value)
	}
	return nil
}
