package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tokligence/chat-bridge/internal/config"
	"github.com/tokligence/chat-bridge/internal/httpserver"
	"github.com/tokligence/chat-bridge/internal/ledger"
	ledgersql "github.com/tokligence/chat-bridge/internal/ledger/sqlite"
	"github.com/tokligence/chat-bridge/internal/logging"
	"github.com/tokligence/chat-bridge/internal/provider"
	provideropenai "github.com/tokligence/chat-bridge/internal/provider/openai"
	providerstatic "github.com/tokligence/chat-bridge/internal/provider/static"
	"github.com/tokligence/chat-bridge/internal/version"
)

func main() {
	cfg, err := config.LoadBridgeConfig(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	const maxLogBytes = int64(100 * 1024 * 1024) // 100MB
	if logTarget := strings.TrimSpace(cfg.LogFile); logTarget != "" {
		rot, err := logging.NewRotatingWriter(logTarget, maxLogBytes)
		if err != nil {
			log.Fatalf("init rotating log: %v", err)
		}
		// Mirror to stdout as well for foreground runs
		log.SetOutput(io.MultiWriter(os.Stdout, rot))
		defer rot.Close()
	}
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetPrefix("[bridged] ")

	log.Printf("chat bridge %s starting env=%s transport=%s provider=%s", version.Info(), cfg.Environment, cfg.Transport, cfg.Provider)

	prov, err := buildProvider(cfg)
	if err != nil {
		log.Fatalf("provider init failed: %v", err)
	}

	var store ledger.Store
	if strings.TrimSpace(cfg.LedgerPath) != "" {
		store, err = ledgersql.New(cfg.LedgerPath)
		if err != nil {
			log.Fatalf("open ledger: %v", err)
		}
		defer store.Close()
		log.Printf("usage ledger enabled path=%s", cfg.LedgerPath)
	}

	bridgeSrv := httpserver.New(httpserver.Config{
		Transport:         cfg.Transport,
		Port:              cfg.Port,
		KeepAliveInterval: cfg.KeepAliveInterval,
		Provider:          prov,
		Ledger:            store,
		Logger:            log.New(log.Writer(), "[bridged/http] ", log.LstdFlags|log.Lmicroseconds),
		Debug:             strings.EqualFold(cfg.LogLevel, "debug"),
	})
	defer bridgeSrv.Close()

	// Loopback bind plus the per-request gate: neither alone is the boundary.
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     bridgeSrv.Handler(),
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: chat streams and the event feed stay open
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("bridge listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	<-sigs
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

func buildProvider(cfg config.BridgeConfig) (provider.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return provideropenai.New(provideropenai.Config{
			BaseURL:        cfg.OpenAIBaseURL,
			APIKey:         cfg.OpenAIAPIKey,
			RequestTimeout: 30 * time.Second,
		})
	default:
		if path := strings.TrimSpace(cfg.StaticCatalogPath); path != "" {
			return providerstatic.LoadCatalog(path)
		}
		return providerstatic.New(), nil
	}
}
