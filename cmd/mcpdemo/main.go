// Command mcpdemo wires the MCP tools-bridge subsystem together: it loads
// config, connects every configured MCP server, binds their tool catalogs
// into a shared ToolRouter, and serves a Prometheus metrics endpoint so an
// operator can watch session state, reconnects, and circuit transitions.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"mcp-tools-bridge/internal/config"
	"mcp-tools-bridge/internal/mcpclient"
	"mcp-tools-bridge/internal/toolrouter"
)

func main() {
	cfg := config.LoadConfig()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, logCleanup := setupLogger(cfg)
	defer logCleanup()
	slog.SetDefault(logger)

	router := toolrouter.NewRegistry()
	manager := mcpclient.NewManager(router)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	for name, sc := range cfg.MCP {
		ep := endpointFromConfig(sc)
		sessCfg := sessionConfigFromServer(cfg, sc)
		strategy := mcpclient.FailureStrategy(sc.FailureStrategy)
		if err := manager.AddServer(ctx, name, ep, sessCfg, strategy); err != nil {
			slog.Error("connect mcp server failed", "server", name, "error", err)
		}
	}
	cancel()
	defer manager.CloseAll()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/tools", func(w http.ResponseWriter, r *http.Request) {
		for _, d := range router.List() {
			fmt.Fprintf(w, "%s\t%s\n", d.Name, d.Description)
		}
	})

	server := &http.Server{Addr: ":8090", Handler: mux}
	go func() {
		slog.Info("metrics server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown forced", "error", err)
	}
}

func endpointFromConfig(sc config.ServerConfig) mcpclient.Endpoint {
	switch sc.Transport {
	case "subprocess":
		return mcpclient.Endpoint{
			Kind:    mcpclient.TransportSubprocess,
			Command: sc.Command,
			Args:    sc.Args,
			Headers: sc.Headers,
			Token:   sc.Token,
		}
	default:
		return mcpclient.Endpoint{
			Kind:    mcpclient.TransportHTTP,
			URL:     sc.URL,
			Headers: sc.Headers,
			Token:   sc.Token,
		}
	}
}

func sessionConfigFromServer(cfg *config.Config, sc config.ServerConfig) mcpclient.SessionConfig {
	return mcpclient.SessionConfig{
		MaxRetries:          sc.MaxRetries,
		BaseRetryDelay:      sc.RetryDelay(),
		MaxRetryDelay:       sc.MaxRetryDelay(),
		HealthCheckInterval: sc.HealthInterval(),
		CapabilityTimeout:   sc.CapabilityTimeout(),
		RetryJitter:         sc.Jitter(),
		CircuitThreshold:    sc.CircuitThreshold,
		CircuitReset:        sc.CircuitReset(),
		ClientName:          cfg.Client.Name,
		ClientVersion:       cfg.Client.Version,
	}
}

// setupLogger creates a logger based on configuration.
func setupLogger(cfg *config.Config) (*slog.Logger, func()) {
	var writers []io.Writer
	var closers []io.Closer
	outputs := strings.Split(cfg.Log.Output, ",")

	for _, output := range outputs {
		output = strings.TrimSpace(output)
		if output == "" {
			continue
		}
		var w io.Writer
		switch output {
		case "stderr":
			w = os.Stderr
		case "stdout":
			w = os.Stdout
		default:
			l := &lumberjack.Logger{
				Filename:   output,
				MaxSize:    100,
				MaxBackups: 3,
				MaxAge:     28,
				Compress:   true,
			}
			w = l
			closers = append(closers, l)
		}
		writers = append(writers, w)
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	multiWriter := io.MultiWriter(writers...)
	opts := &slog.HandlerOptions{Level: cfg.GetLogLevel()}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(multiWriter, opts)
	} else {
		handler = slog.NewTextHandler(multiWriter, opts)
	}

	cleanup := func() {
		for _, c := range closers {
			c.Close()
		}
	}
	return slog.New(handler), cleanup
}
