// Package mcpclient implements a per-server Model Context Protocol (MCP)
// 2024-11-05 client: the initialize handshake, session management, tool
// discovery, and tool invocation, all over JSON-RPC 2.0 carried on HTTP POST.
package mcpclient

import (
	"encoding/json"
	"time"

	"github.com/lumenai/conduit/internal/authcache"
)

// ServerConfig describes one configured MCP server.
type ServerConfig struct {
	Name    string
	BaseURL string
	Auth    authcache.Config
}

// JSONRPCRequest is a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// JSONRPCResponse is a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError is a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ToolDescriptor describes one tool discovered from an MCP server.
type ToolDescriptor struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	SourceServer string          `json:"-"`
}

// ToolResultContent is a tagged-union piece of a tool call's result
// content: text, inline image data, or an embedded resource.
type ToolResultContent struct {
	Type     string `json:"type"` // text | image | resource
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"` // base64
	MimeType string `json:"mimeType,omitempty"`
}

// ToolResult is the outcome of invoking a tool.
type ToolResult struct {
	Content string
	IsError bool
}

// sessionSource records how a session ID was obtained, for diagnostics.
type sessionSource string

const (
	sourceHeader   sessionSource = "header"
	sourceBody     sessionSource = "body"
	sourceFailsafe sessionSource = "failsafe"
	sourceNone     sessionSource = "none"
)

// session is the per-server MCP session state, reused across requests
// until discarded by a protocol error.
type session struct {
	serverName        string
	id                string
	source            sessionSource
	establishedAt     time.Time
	isWebcrawlVariant bool
}

type sessionState int

const (
	stateIdle sessionState = iota
	stateAwaitingInit
	stateInitialized
	stateReady
	stateReinit
	stateFailed
)

type initializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerInfo      struct {
		Name      string `json:"name"`
		Version   string `json:"version"`
		SessionID string `json:"sessionId,omitempty"`
	} `json:"serverInfo"`
	SessionID string `json:"sessionId,omitempty"`
}

type listToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type callToolResult struct {
	Content []ToolResultContent `json:"content"`
	IsError bool                `json:"isError,omitempty"`
}
