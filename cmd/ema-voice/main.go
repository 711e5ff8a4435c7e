package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/koscakluka/ema-voice/core/metrics"
	"github.com/koscakluka/ema-voice/internal/config"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML or TOML configuration file")
	envFile := flag.String("env", ".env", "Path to an env file with API keys")
	printSchema := flag.Bool("schema", false, "Print the configuration JSON schema and exit")
	plain := flag.Bool("plain", false, "Print events line by line instead of the terminal UI")
	listen := flag.Bool("listen", false, "Start listening to the microphone right away")
	flag.Parse()

	if *printSchema {
		schema, err := config.Schema()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(schema))
		return
	}

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *plain, *listen); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, plain, listen bool) error {
	registry := prometheus.NewRegistry()
	p, err := newPipeline(cfg, metrics.New(registry))
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer p.Close()

	stream := p.orchestrator.Events()
	if err := p.orchestrator.Orchestrate(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	if cfg.Server.Enabled {
		server := &http.Server{
			Addr:              cfg.Server.Address,
			Handler:           newRouter(p, registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	if listen {
		if err := p.orchestrator.StartListening(ctx); err != nil {
			return fmt.Errorf("failed to start listening: %w", err)
		}
	}

	if plain {
		return runPlain(ctx, p.orchestrator, stream, os.Stdin, os.Stdout, cfg.Log.Level == "debug")
	}
	return runTUI(ctx, p, stream)
}
