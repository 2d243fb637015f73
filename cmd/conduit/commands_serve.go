package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumenai/conduit/internal/authcache"
	"github.com/lumenai/conduit/internal/chatstore"
	"github.com/lumenai/conduit/internal/config"
	"github.com/lumenai/conduit/internal/httpapi"
	"github.com/lumenai/conduit/internal/llmclient"
	"github.com/lumenai/conduit/internal/mcpclient"
	"github.com/lumenai/conduit/internal/mcpregistry"
	"github.com/lumenai/conduit/internal/observability"
	"github.com/lumenai/conduit/internal/orchestrator"
)

// newComponentLogger builds the plain slog.Logger passed to the
// component constructors (authcache, mcpregistry, orchestrator,
// httpapi), matching the handler selected by the configured format.
func newComponentLogger(level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func buildServeCmd() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Conduit HTTP server",
		Long:  "Start the HTTP facade, refresh the MCP tool registry, and serve streaming chat turns until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", resolveConfigPath(), "path to the configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "force debug-level logging regardless of config")

	return cmd
}

// resolveConfigPath returns the CONDUIT_CONFIG environment variable when
// set, falling back to the conventional relative path.
func resolveConfigPath() string {
	if p := os.Getenv("CONDUIT_CONFIG"); p != "" {
		return p
	}
	return "conduit.yaml"
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	levelName := cfg.Logging.Level
	if debug {
		levelName = "debug"
	}
	level := observability.LogLevelFromString(levelName)

	cliLogger := observability.MustNewLogger(observability.LogConfig{
		Level:  levelName,
		Format: cfg.Logging.Format,
	})
	defer cliLogger.Sync()

	compLogger := newComponentLogger(level, cfg.Logging.Format)

	ctx, cancel := runWithSignalContext(ctx)
	defer cancel()

	metrics := observability.NewMetrics()

	auth := authcache.New(compLogger)

	servers := make([]mcpclient.ServerConfig, 0, len(cfg.MCP.Servers))
	for _, s := range cfg.MCP.Servers {
		servers = append(servers, mcpclient.ServerConfig{
			Name:    s.Name,
			BaseURL: s.BaseURL,
			Auth:    toAuthConfig(s.Auth),
		})
	}

	registry := mcpregistry.New(servers, mcpclient.ClientInfo{Name: "conduit", Version: version}, auth, compLogger)
	if err := registry.Refresh(ctx); err != nil {
		cliLogger.Warn(ctx, "initial MCP registry refresh failed, continuing with an empty tool set", "error", err)
	}
	if cfg.MCP.RefreshSchedule != "" {
		if err := registry.StartScheduledRefresh(ctx, cfg.MCP.RefreshSchedule); err != nil {
			return fmt.Errorf("starting scheduled MCP refresh: %w", err)
		}
	}

	store, err := buildChatStore(cfg.ChatStore)
	if err != nil {
		return fmt.Errorf("building chat store: %w", err)
	}

	llm := llmclient.New(cfg.LLM.APIKey, cfg.LLM.BaseURL)
	orch := orchestrator.New(store, llm, registry, compLogger)

	server := httpapi.New(httpapi.Config{
		Addr:          fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Store:         store,
		Orchestrator:  orch,
		Registry:      registry,
		Model:         cfg.LLM.Model,
		Metrics:       metrics,
		Logger:        compLogger,
		RequestLogger: cliLogger,
	})

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting http server: %w", err)
	}

	cliLogger.Info(ctx, "conduit serving", "addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort), "mcp_servers", len(servers))

	<-ctx.Done()
	cliLogger.Info(ctx, "shutdown signal received, draining in-flight requests")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stopping http server: %w", err)
	}

	return nil
}

func buildChatStore(cfg config.ChatStoreConfig) (chatstore.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return chatstore.NewMemoryStore(), nil
	case "sqlite":
		return chatstore.NewSQLStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown chat store driver %q", cfg.Driver)
	}
}

func toAuthConfig(a config.MCPAuthConfig) authcache.Config {
	kind := a.Kind
	switch kind {
	case "api_key":
		kind = "apiKey"
	case "oauth2_client_credentials":
		kind = "oauth2ClientCredentials"
	}
	return authcache.Config{
		Kind:          authcache.Kind(kind),
		Token:         a.Token,
		Username:      a.Username,
		Password:      a.Password,
		Header:        a.Header,
		Value:         a.Value,
		AuthServerURL: a.AuthServerURL,
		Realm:         a.Realm,
		ClientID:      a.ClientID,
		ClientSecret:  a.ClientSecret,
	}
}
