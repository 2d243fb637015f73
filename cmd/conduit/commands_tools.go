package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumenai/conduit/internal/authcache"
	"github.com/lumenai/conduit/internal/config"
	"github.com/lumenai/conduit/internal/mcpclient"
	"github.com/lumenai/conduit/internal/mcpregistry"
)

func buildRefreshToolsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "refresh-tools",
		Short: "Connect to configured MCP servers and print the discovered tool set",
		Long:  "Runs a one-shot handshake and tool discovery pass against every configured MCP server, then prints the resulting snapshot as JSON and exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefreshTools(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", resolveConfigPath(), "path to the configuration file")

	return cmd
}

func runRefreshTools(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	auth := authcache.New(logger)

	servers := make([]mcpclient.ServerConfig, 0, len(cfg.MCP.Servers))
	for _, s := range cfg.MCP.Servers {
		servers = append(servers, mcpclient.ServerConfig{
			Name:    s.Name,
			BaseURL: s.BaseURL,
			Auth:    toAuthConfig(s.Auth),
		})
	}

	registry := mcpregistry.New(servers, mcpclient.ClientInfo{Name: "conduit-refresh-tools", Version: version}, auth, logger)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := registry.Refresh(ctx); err != nil {
		return fmt.Errorf("refreshing MCP registry: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(registry.Current())
}
