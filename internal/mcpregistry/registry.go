// Package mcpregistry holds the set of configured MCP servers, the tools
// discovered from them, and resolves tool-name lookups for the
// orchestrator. Readers always observe one consistent snapshot; refreshes
// publish a new snapshot atomically.
package mcpregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"

	"github.com/lumenai/conduit/internal/authcache"
	"github.com/lumenai/conduit/internal/errkind"
	"github.com/lumenai/conduit/internal/mcpclient"
	"github.com/lumenai/conduit/internal/net/ssrf"
)

// Snapshot is an immutable view of the registry's discovered tools.
type Snapshot struct {
	Tools  []mcpclient.ToolDescriptor
	ByName map[string]string // tool name -> owning server name
}

// ToolSelection filters which tools a caller may see/use in a given turn.
type ToolSelection struct {
	EnableTools bool
	Enabled     map[string]bool // nil or empty means "all", only consulted when EnableTools
}

// Filter returns the subset of snap's tools visible under sel.
func (sel ToolSelection) Filter(snap *Snapshot) []mcpclient.ToolDescriptor {
	if !sel.EnableTools {
		return nil
	}
	if len(sel.Enabled) == 0 {
		return snap.Tools
	}
	out := make([]mcpclient.ToolDescriptor, 0, len(snap.Tools))
	for _, t := range snap.Tools {
		if sel.Enabled[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

// Registry owns a set of MCP clients, one per configured server, and
// publishes an atomic snapshot of their merged tool sets.
type Registry struct {
	logger  *slog.Logger
	clients map[string]*mcpclient.Client
	order   []string

	snapshot atomic.Pointer[Snapshot]
	cron     *cron.Cron
}

// New builds a Registry for the given servers, constructing one
// mcpclient.Client per server.
func New(servers []mcpclient.ServerConfig, clientInfo mcpclient.ClientInfo, auth *authcache.Cache, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mcpregistry")

	r := &Registry{
		logger:  logger,
		clients: make(map[string]*mcpclient.Client, len(servers)),
	}
	for _, s := range servers {
		if host := hostOf(s.BaseURL); host != "" && ssrf.IsBlockedHostname(host) {
			logger.Warn("configured MCP server targets a blocked hostname", "server", s.Name, "host", host)
		}
		r.clients[s.Name] = mcpclient.New(s, clientInfo, auth, logger)
		r.order = append(r.order, s.Name)
	}
	r.snapshot.Store(&Snapshot{ByName: map[string]string{}})
	return r
}

// Refresh concurrently rediscovers tools from every configured server and
// publishes a new merged snapshot. Errors from individual servers are
// aggregated and returned, but a failure on one server does not prevent
// the others' tools from being published.
func (r *Registry) Refresh(ctx context.Context) error {
	type discovered struct {
		server string
		tools  []mcpclient.ToolDescriptor
		err    error
	}

	results := make(chan discovered, len(r.order))
	for _, name := range r.order {
		name := name
		client := r.clients[name]
		go func() {
			tools, err := client.DiscoverTools(ctx)
			results <- discovered{server: name, tools: tools, err: err}
		}()
	}

	var merged []mcpclient.ToolDescriptor
	byName := make(map[string]string)
	var errs *multierror.Error

	for range r.order {
		d := <-results
		if d.err != nil {
			errs = multierror.Append(errs, fmt.Errorf("server %q: %w", d.server, d.err))
			r.logger.Warn("tool discovery failed", "server", d.server, "error", d.err)
			continue
		}
		for _, t := range d.tools {
			if existing, ok := byName[t.Name]; ok {
				r.logger.Warn("duplicate tool name across servers, keeping first discovered",
					"tool", t.Name, "kept_server", existing, "ignored_server", d.server)
				continue
			}
			byName[t.Name] = d.server
			merged = append(merged, t)
		}
	}

	r.snapshot.Store(&Snapshot{Tools: merged, ByName: byName})
	return errs.ErrorOrNil()
}

// Current returns the most recently published snapshot.
func (r *Registry) Current() *Snapshot {
	return r.snapshot.Load()
}

// StartScheduledRefresh runs Refresh on the given cron schedule until the
// context is cancelled.
func (r *Registry) StartScheduledRefresh(ctx context.Context, schedule string) error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(schedule, func() {
		if err := r.Refresh(ctx); err != nil {
			r.logger.Warn("scheduled registry refresh reported errors", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	r.cron.Start()
	go func() {
		<-ctx.Done()
		r.cron.Stop()
	}()
	return nil
}

// ExecuteToolCall resolves name to its owning server in the current
// snapshot and delegates invocation to that server's client.
func (r *Registry) ExecuteToolCall(ctx context.Context, name string, argsJSON json.RawMessage) (mcpclient.ToolResult, error) {
	snap := r.Current()
	serverName, ok := snap.ByName[name]
	if !ok {
		return mcpclient.ToolResult{}, fmt.Errorf("%w: tool %q not found in registry", errkind.ErrNotFound, name)
	}

	var schema json.RawMessage
	for _, t := range snap.Tools {
		if t.Name == name {
			schema = t.InputSchema
			break
		}
	}
	if err := mcpclient.ValidateArguments(schema, argsJSON); err != nil {
		return mcpclient.ToolResult{}, err
	}

	client, ok := r.clients[serverName]
	if !ok {
		return mcpclient.ToolResult{}, fmt.Errorf("%w: server %q not configured", errkind.ErrNotFound, serverName)
	}
	return client.InvokeTool(ctx, name, argsJSON)
}

// hostOf extracts the hostname component of a server base URL, returning ""
// if it cannot be parsed.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
