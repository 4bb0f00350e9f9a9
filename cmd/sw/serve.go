package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/salewatch/salewatch/internal/server"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := listenAddr
		if addr == "" {
			addr = cfg.ListenAddr
		}
		srv := server.New(eng, store, secrets, addr)
		fmt.Printf("Listening on %s (Ctrl-C to stop)\n", addr)
		return srv.Start(rootCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (default from config, 127.0.0.1:8844)")
	rootCmd.AddCommand(serveCmd)
}
