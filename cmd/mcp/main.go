package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	mcpadapter "github.com/kirillkom/pdf-rag-assistant/internal/adapters/mcp"
	"github.com/kirillkom/pdf-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/pdf-rag-assistant/internal/config"
	"github.com/kirillkom/pdf-rag-assistant/internal/observability/logging"
)

func main() {
	httpAddr := flag.String("http", "", "serve streamable HTTP on this address instead of stdio")
	flag.Parse()

	cfg, err := config.Load()
	// stdout carries the stdio protocol, so logs go to stderr.
	logging.SetupWriter(os.Stderr, "mcp", cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("config_invalid")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.QueryOnly())
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap_failed")
	}
	defer app.Close()

	mcpServer := mcpadapter.NewTools(app.QueryUC, app.CollectionUC).NewServer()

	if *httpAddr == "" {
		if err := server.ServeStdio(mcpServer); err != nil {
			log.Fatal().Err(err).Msg("mcp_stdio_failed")
		}
		return
	}

	httpServer := server.NewStreamableHTTPServer(mcpServer)
	go func() {
		<-ctx.Done()
		_ = httpServer.Shutdown(context.Background())
	}()
	log.Info().Str("addr", *httpAddr).Msg("mcp_http_listening")
	if err := httpServer.Start(*httpAddr); err != nil {
		log.Error().Err(err).Msg("mcp_http_stopped")
	}
}
