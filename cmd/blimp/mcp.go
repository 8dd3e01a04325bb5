package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/blimp/internal/config"
	"github.com/jkaninda/blimp/internal/mcpserver"
)

var (
	mcpConfigPath string
	mcpUserID     string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Long: `Serve the Model Context Protocol over stdio so AI assistants can use
connected-app capabilities as tools. All tool calls run as a single
local user (--user, default "default").`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	mcpCmd.Flags().StringVar(&mcpUserID, "user", "default", "user ID all tool calls run as")
}

// runMCP starts the stdio MCP server. Logs go to stderr; stdout carries
// the protocol.
func runMCP(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cfg, err := loadConfig(goutils.Env("BLIMP_CONFIG", mcpConfigPath))
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	srv, err := mcpserver.NewServer(mcpserver.Config{
		Name:    "blimp",
		Version: version,
		UserID:  mcpUserID,
	}, sc.Service, sc.Registry, logger)
	if err != nil {
		return err
	}

	return srv.Run(context.Background())
}
