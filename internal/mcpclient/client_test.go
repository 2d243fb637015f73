package mcpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type rpcCall struct {
	Method string          `json:"method"`
	ID     any             `json:"id"`
	Params json.RawMessage `json:"params"`
}

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := New(ServerConfig{Name: "test-server", BaseURL: srv.URL}, ClientInfo{Name: "conduit", Version: "test"}, nil, nil)
	return c, srv
}

func writeJSONRPCResult(w http.ResponseWriter, id any, result any) {
	body, _ := json.Marshal(result)
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: body}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func TestClient_HandshakeUsesHeaderSessionID(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		_ = json.NewDecoder(r.Body).Decode(&call)
		switch call.Method {
		case "initialize":
			w.Header().Set("Mcp-Session-Id", "sess-from-header")
			writeJSONRPCResult(w, call.ID, map[string]any{
				"protocolVersion": protocolVersion,
				"serverInfo":      map[string]any{"name": "test", "version": "1"},
			})
		case "notifications/initialized":
			w.WriteHeader(http.StatusOK)
		case "tools/list":
			writeJSONRPCResult(w, call.ID, listToolsResult{})
		}
	})
	defer srv.Close()

	sess, err := c.ensureSession(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.id != "sess-from-header" || sess.source != sourceHeader {
		t.Fatalf("got id=%q source=%q", sess.id, sess.source)
	}
}

func TestClient_HandshakeFallsBackToFailsafe(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		_ = json.NewDecoder(r.Body).Decode(&call)
		switch call.Method {
		case "initialize":
			writeJSONRPCResult(w, call.ID, map[string]any{"protocolVersion": protocolVersion})
		case "notifications/initialized":
			w.WriteHeader(http.StatusOK)
		case "tools/list":
			writeJSONRPCResult(w, call.ID, listToolsResult{})
		}
	})
	defer srv.Close()

	sess, err := c.ensureSession(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.source != sourceFailsafe {
		t.Fatalf("expected failsafe session source, got %q", sess.source)
	}
}

func TestClient_DiscoverTools(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		_ = json.NewDecoder(r.Body).Decode(&call)
		switch call.Method {
		case "initialize":
			w.Header().Set("Mcp-Session-Id", "sess-1")
			writeJSONRPCResult(w, call.ID, map[string]any{"protocolVersion": protocolVersion})
		case "notifications/initialized":
			w.WriteHeader(http.StatusOK)
		case "tools/list":
			writeJSONRPCResult(w, call.ID, listToolsResult{
				Tools: []ToolDescriptor{{Name: "search", Description: "web search"}},
			})
		}
	})
	defer srv.Close()

	tools, err := c.DiscoverTools(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "search" {
		t.Fatalf("got %+v", tools)
	}
	if tools[0].SourceServer != "test-server" {
		t.Fatalf("expected SourceServer to be stamped, got %q", tools[0].SourceServer)
	}
}

func TestClient_DiscoverTools_RetriesOnceAfterTransientFailure(t *testing.T) {
	var listAttempts int
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		_ = json.NewDecoder(r.Body).Decode(&call)
		switch call.Method {
		case "initialize":
			w.Header().Set("Mcp-Session-Id", "sess-1")
			writeJSONRPCResult(w, call.ID, map[string]any{"protocolVersion": protocolVersion})
		case "notifications/initialized":
			w.WriteHeader(http.StatusOK)
		case "tools/list":
			listAttempts++
			if listAttempts == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			writeJSONRPCResult(w, call.ID, listToolsResult{
				Tools: []ToolDescriptor{{Name: "search"}},
			})
		}
	})
	defer srv.Close()

	tools, err := c.DiscoverTools(context.Background())
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if listAttempts != 2 {
		t.Fatalf("expected exactly one retry (2 attempts), got %d", listAttempts)
	}
	if len(tools) != 1 || tools[0].Name != "search" {
		t.Fatalf("got %+v", tools)
	}
}

func TestClient_DiscoverTools_GivesUpAfterSingleRetryExhausted(t *testing.T) {
	var listAttempts int
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		_ = json.NewDecoder(r.Body).Decode(&call)
		switch call.Method {
		case "initialize":
			w.Header().Set("Mcp-Session-Id", "sess-1")
			writeJSONRPCResult(w, call.ID, map[string]any{"protocolVersion": protocolVersion})
		case "notifications/initialized":
			w.WriteHeader(http.StatusOK)
		case "tools/list":
			listAttempts++
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	defer srv.Close()

	if _, err := c.DiscoverTools(context.Background()); err == nil {
		t.Fatal("expected an error once the retry budget is exhausted")
	}
	if listAttempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", listAttempts)
	}
}

func TestClient_InvokeTool_Success(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		_ = json.NewDecoder(r.Body).Decode(&call)
		switch call.Method {
		case "initialize":
			w.Header().Set("Mcp-Session-Id", "sess-1")
			writeJSONRPCResult(w, call.ID, map[string]any{"protocolVersion": protocolVersion})
		case "notifications/initialized":
			w.WriteHeader(http.StatusOK)
		case "tools/list":
			writeJSONRPCResult(w, call.ID, listToolsResult{})
		case "tools/call":
			writeJSONRPCResult(w, call.ID, callToolResult{
				Content: []ToolResultContent{{Type: "text", Text: "42"}},
			})
		}
	})
	defer srv.Close()

	result, err := c.InvokeTool(context.Background(), "answer", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError || result.Content != "42" {
		t.Fatalf("got %+v", result)
	}
}

func TestClient_InvokeTool_CachedNotModified(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		_ = json.NewDecoder(r.Body).Decode(&call)
		switch call.Method {
		case "initialize":
			w.Header().Set("Mcp-Session-Id", "sess-1")
			writeJSONRPCResult(w, call.ID, map[string]any{"protocolVersion": protocolVersion})
		case "notifications/initialized":
			w.WriteHeader(http.StatusOK)
		case "tools/list":
			writeJSONRPCResult(w, call.ID, listToolsResult{})
		case "tools/call":
			w.WriteHeader(http.StatusNotModified)
		}
	})
	defer srv.Close()

	result, err := c.InvokeTool(context.Background(), "answer", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError || result.Content != "<cached>" {
		t.Fatalf("got %+v", result)
	}
}

func TestClient_InvokeTool_ServerError(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		_ = json.NewDecoder(r.Body).Decode(&call)
		switch call.Method {
		case "initialize":
			w.Header().Set("Mcp-Session-Id", "sess-1")
			writeJSONRPCResult(w, call.ID, map[string]any{"protocolVersion": protocolVersion})
		case "notifications/initialized":
			w.WriteHeader(http.StatusOK)
		case "tools/list":
			writeJSONRPCResult(w, call.ID, listToolsResult{})
		case "tools/call":
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	defer srv.Close()

	result, err := c.InvokeTool(context.Background(), "answer", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected IsError=true for a 500 response, got %+v", result)
	}
}

func TestClient_InvokeTool_JSONRPCError(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		_ = json.NewDecoder(r.Body).Decode(&call)
		switch call.Method {
		case "initialize":
			w.Header().Set("Mcp-Session-Id", "sess-1")
			writeJSONRPCResult(w, call.ID, map[string]any{"protocolVersion": protocolVersion})
		case "notifications/initialized":
			w.WriteHeader(http.StatusOK)
		case "tools/list":
			writeJSONRPCResult(w, call.ID, listToolsResult{})
		case "tools/call":
			resp := JSONRPCResponse{JSONRPC: "2.0", ID: call.ID, Error: &JSONRPCError{Code: -32000, Message: "boom"}}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
		}
	})
	defer srv.Close()

	result, err := c.InvokeTool(context.Background(), "answer", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected IsError=true for a JSON-RPC error, got %+v", result)
	}
}

func TestClient_WebcrawlVariantFailsafeUsesWebcrawlFormat(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		_ = json.NewDecoder(r.Body).Decode(&call)
		switch call.Method {
		case "initialize":
			// No Mcp-Session-Id header and no sessionId in the body: forces
			// the failsafe path.
			writeJSONRPCResult(w, call.ID, map[string]any{"protocolVersion": protocolVersion})
		case "notifications/initialized":
			w.WriteHeader(http.StatusOK)
		case "tools/list":
			writeJSONRPCResult(w, call.ID, listToolsResult{})
		}
	})
	defer srv.Close()
	c.cfg.Name = "webcrawl-server"

	sess, err := c.ensureSession(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.source != sourceFailsafe {
		t.Fatalf("expected failsafe session source, got %q", sess.source)
	}
	if !strings.HasPrefix(sess.id, "webcrawl-") {
		t.Fatalf("expected webcrawl-shaped session id, got %q", sess.id)
	}
}

func TestClient_WebcrawlVariantAttachesThreeHeaders(t *testing.T) {
	var gotHeaders http.Header
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		_ = json.NewDecoder(r.Body).Decode(&call)
		switch call.Method {
		case "initialize":
			w.Header().Set("Mcp-Session-Id", "sess-1")
			writeJSONRPCResult(w, call.ID, map[string]any{"protocolVersion": protocolVersion})
		case "notifications/initialized":
			gotHeaders = r.Header.Clone()
			w.WriteHeader(http.StatusOK)
		case "tools/list":
			writeJSONRPCResult(w, call.ID, listToolsResult{})
		}
	})
	defer srv.Close()
	c.cfg.Name = "webcrawl-server"

	if _, err := c.ensureSession(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, h := range []string{"Mcp-Session-Id", "X-Mcp-Session-Id", "Session-Id"} {
		if gotHeaders.Get(h) == "" {
			t.Errorf("expected webcrawl variant to set header %s", h)
		}
	}
}
