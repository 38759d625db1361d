package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wenjia28/nanochat/internal/chat"
	"github.com/wenjia28/nanochat/internal/config"
	"github.com/wenjia28/nanochat/internal/llm"
	"github.com/wenjia28/nanochat/internal/policy"
	"github.com/wenjia28/nanochat/internal/store"
	transport "github.com/wenjia28/nanochat/internal/transport/http"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting chat relay...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Upstream URL: %s", cfg.UpstreamBaseURL)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// The completion client talks to this process's own proxy routes so
	// every upstream call carries the server-side key.
	llmClient := llm.NewClient(cfg.ProxyBaseURL, "", cfg.UpstreamTimeout)

	// Initialize controller
	controller, err := chat.New(db, llmClient, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize chat controller: %v", err)
	}

	// Create HTTP server
	server := transport.NewServer(controller, policyEngine, cfg)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Chat relay started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down chat relay...")

	// Stop any in-flight generation before closing the listener.
	controller.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Chat relay stopped")
}
