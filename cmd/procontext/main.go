// Command procontext is a documentation-context MCP server. On behalf of an
// AI coding assistant it resolves a free-text library name into a canonical
// library identifier, then fetches, caches, and serves that library's
// documentation in a form suitable for LLM consumption. It speaks the
// Model Context Protocol over stdio or HTTP, per server.transport.
//
// Usage:
//
//	./procontext
//	PROCONTEXT__SERVER__TRANSPORT=http PROCONTEXT__SERVER__PORT=9000 ./procontext
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"procontext/internal/allowlist"
	"procontext/internal/appstate"
	"procontext/internal/cache"
	"procontext/internal/config"
	"procontext/internal/fetcher"
	"procontext/internal/logger"
	"procontext/internal/mcpserver"
	"procontext/internal/metrics"
	"procontext/internal/registry"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "procontext: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("MAIN", cfg.Logging.Level, cfg.Logging.Format)

	printBanner(cfg)

	if err := os.MkdirAll(filepath.Dir(cfg.Cache.DBPath), 0o755); err != nil {
		log.Fatal("startup_failed", "failed to create cache directory", "path", cfg.Cache.DBPath, "error", err)
	}

	ctx := context.Background()

	db, err := cache.Open(ctx, cfg.Cache.DBPath, log.With("module", "CACHE"))
	if err != nil {
		log.Fatal("startup_failed", "failed to open cache", "error", err)
	}
	defer db.Close()

	client := fetcher.BuildHTTPClient()

	entries, registryVersion, err := registry.Load(ctx, client, cfg.Registry.URL, cfg.Registry.MetadataURL, log.With("module", "REGISTRY"))
	if err != nil {
		log.Fatal("registry_load_failed", "failed to load registry manifest", "error", err)
	}
	idx := registry.BuildIndexes(entries, log.With("module", "REGISTRY"))

	allowEntries := make([]allowlist.Entry, 0, len(entries))
	for _, e := range entries {
		allowEntries = append(allowEntries, allowlist.Entry{DocsURL: e.DocsURL, LLMsTxtURL: e.LLMsTxtURL})
	}
	discovered := db.LoadDiscoveredDomains(ctx, true, true)
	extraDomains := make([]string, 0, len(discovered))
	for d := range discovered {
		extraDomains = append(extraDomains, d)
	}
	initialAllow := allowlist.Build(allowEntries, extraDomains)

	f := fetcher.New(client, cfg.Fetcher.SSRFDomainCheck)
	m := metrics.New()
	state := appstate.New(cfg, idx, registryVersion, client, db, f, log.With("module", "APPSTATE"), initialAllow, m)
	m.AllowlistSize.Set(float64(initialAllow.Len()))

	stopCleanup := startCleanupTicker(ctx, state, cfg.Cache.CleanupIntervalHours)
	defer stopCleanup()

	mcpSrv := server.NewMCPServer("procontext", version)
	mcpserver.New(state, version).Register(mcpSrv)

	switch cfg.Server.Transport {
	case "http":
		runHTTP(cfg, mcpSrv, m, log)
	default:
		runStdio(mcpSrv, log)
	}
}

func runStdio(mcpSrv *server.MCPServer, log *logger.Logger) {
	log.Info("server_start", "serving MCP over stdio")
	if err := server.ServeStdio(mcpSrv); err != nil {
		log.Fatal("server_failed", "stdio server exited with error", "error", err)
	}
}

func runHTTP(cfg *config.Config, mcpSrv *server.MCPServer, m *metrics.Metrics, log *logger.Logger) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/", server.NewStreamableHTTPServer(mcpSrv))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("server_shutdown", "shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("server_shutdown_error", "graceful shutdown failed", "error", err)
		}
	}()

	log.Info("server_start", "serving MCP over http", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server_failed", "http server exited with error", "error", err)
	}
}

// startCleanupTicker periodically runs cleanup_if_due so expired cache rows
// are reaped even on an otherwise idle server; the ticker interval is
// capped at an hour so the check stays cheap even when
// cfg.Cache.CleanupIntervalHours is large. Returns a func that stops the
// ticker.
func startCleanupTicker(ctx context.Context, state *appstate.AppState, intervalHours int) func() {
	tickEvery := time.Hour
	if intervalHours > 0 && time.Duration(intervalHours)*time.Hour < tickEvery {
		tickEvery = time.Duration(intervalHours) * time.Hour
	}

	ticker := time.NewTicker(tickEvery)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				state.Cache.CleanupIfDue(ctx, intervalHours)
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

func printBanner(cfg *config.Config) {
	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║              procontext  (MCP docs server)            ║
╚══════════════════════════════════════════════════════╝
  Transport       : %s
  Host:Port       : %s:%d
  Registry URL    : %s
  Cache DB        : %s
  Cache TTL       : %dh
  Allowlist depth : %d
  Log level       : %s (%s)
`, cfg.Server.Transport, cfg.Server.Host, cfg.Server.Port,
		cfg.Registry.URL, cfg.Cache.DBPath, cfg.Cache.TTLHours,
		cfg.Fetcher.AllowlistDepth, cfg.Logging.Level, cfg.Logging.Format)
}
