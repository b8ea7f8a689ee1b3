package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/docextract/internal/adapters/mcp"
	"github.com/kirillkom/docextract/internal/bootstrap"
	"github.com/kirillkom/docextract/internal/config"
	"github.com/kirillkom/docextract/internal/observability/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	// stdout carries the protocol
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel))

	pipeline, err := bootstrap.NewPipeline(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap error: %v\n", err)
		os.Exit(1)
	}

	handler := mcpadapter.NewHandler(pipeline.ExtractUC, pipeline.Catalog, cfg.DefaultDocumentType, cfg.MaxUploadBytes)
	if err := server.ServeStdio(mcpadapter.NewServer(handler)); err != nil {
		fmt.Fprintf(os.Stderr, "mcp server error: %v\n", err)
		os.Exit(1)
	}
}
