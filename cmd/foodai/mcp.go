package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dengzhuofu/foodai-agent"
	"github.com/dengzhuofu/foodai-agent/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose the kitchen tools as a Model Context Protocol (MCP) server",
	Long: `Publishes the local kitchen tools (fridge, shopping list, recipes) as an MCP server.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- http: Streamable HTTP on mcp.addr. The X-User-ID header selects the caller.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cfg, logger, err := newEngine(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		transport, _ := cmd.Flags().GetString("transport")
		if caller, _ := cmd.Flags().GetString("caller"); caller != "" {
			cfg.MCP.Caller = caller
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.MCP.Addr = addr
		}

		srv := mcp.NewServer(eng.Registry, cfg.MCP.Caller, foodai.Version, mcp.WithLogger(logger))

		switch transport {
		case "stdio":
			// Logs go to Stderr so they never corrupt JSON-RPC on Stdout.
			logger.Info("Starting FoodAI MCP Server (Stdio)", "caller", cfg.MCP.Caller, "tools", srv.Tools())
			return srv.ServeStdio()
		case "http":
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.ServeHTTP(ctx, cfg.MCP.Addr); err != nil {
				return err
			}
			logger.Info("MCP Server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, http", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'http'")
	mcpCmd.Flags().String("addr", "", "Address to listen on (only for http, overrides mcp.addr)")
	mcpCmd.Flags().String("caller", "", "Caller the tools act for (overrides mcp.caller)")
}
