package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"records-rag/internal/mcpserver"
)

var flagMCPAddr string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the searches as MCP tools over stdio, or HTTP with --addr",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		var chat mcpserver.Chatbot
		if bot, err := a.chatbot(); err != nil {
			log.Warn().Err(err).Msg("ask tool disabled")
		} else {
			chat = bot
		}

		srv, err := mcpserver.New(a.search, chat)
		if err != nil {
			return err
		}
		if flagMCPAddr != "" {
			return srv.RunHTTP(ctx, flagMCPAddr)
		}
		return srv.Run(ctx)
	},
}

func init() {
	mcpCmd.Flags().StringVar(&flagMCPAddr, "addr", "", "serve streamable HTTP on this address instead of stdio")
	rootCmd.AddCommand(mcpCmd)
}
