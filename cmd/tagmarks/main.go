package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/tagmarks/tagmarks/internal/cluster"
	"github.com/tagmarks/tagmarks/internal/controller"
	"github.com/tagmarks/tagmarks/internal/engine"
	"github.com/tagmarks/tagmarks/internal/pkg/security"
	"github.com/tagmarks/tagmarks/internal/server"
	"github.com/tagmarks/tagmarks/internal/storage"
)

func main() {
	// Command-line flags
	port := flag.Int("port", 8098, "HTTP port to listen on")
	dataDir := flag.String("data", "../data", "Directory to store .shelf files")
	webDir := flag.String("web", "../web", "Directory for static web files")
	keyFile := flag.String("keyfile", "", "Path to the master key file (default: <data>/master.key)")
	peersStr := flag.String("peers", "", "Comma-separated peer node URLs for cluster queries")
	baseURL := flag.String("base-url", "", "Public base URL used when building share links (default: http://localhost:<port>)")
	flag.Parse()

	log.Println("Tagmarks Shelf v0.1 Started...")

	// 1. Master key for the encrypted meta store
	keyPath := *keyFile
	if keyPath == "" {
		keyPath = filepath.Join(*dataDir, "master.key")
	}
	created, err := security.InitMasterKey(keyPath)
	if err != nil {
		log.Fatalf("Failed to initialize master key: %v", err)
	}
	if created {
		log.Printf("Generated new master key at %s", keyPath)
	}

	// 2. Encrypted meta store (users, tokens, saved searches, config)
	metaStore := controller.NewStore(filepath.Join(*dataDir, "meta.enc"))
	if err := metaStore.Load(); err != nil {
		log.Fatalf("Failed to load meta store: %v", err)
	}

	// 3. Global MemTable
	mt := engine.NewMemTable()

	// 4. Catalog with snapshot reader/writer and WAL replay
	reader, err := storage.NewShelfReader()
	if err != nil {
		log.Fatalf("Failed to create reader: %v", err)
	}
	writer, err := storage.NewShelfWriter()
	if err != nil {
		log.Fatalf("Failed to create writer: %v", err)
	}
	catalog := engine.NewCatalog(*dataDir, mt, reader.ReadSnapshot, writer.WriteSnapshot)
	log.Printf("Catalog initialized. Data: %s", *dataDir)

	// Background compactor keeps the shelf file count bounded
	cfg := metaStore.GetConfig()
	go catalog.RunCompactor(1*time.Hour, cfg.MaxSnapshots)

	// 5. Optional cluster aggregator
	var agg *cluster.Aggregator
	if *peersStr != "" {
		peers := []string{}
		for _, p := range strings.Split(*peersStr, ",") {
			if p = strings.TrimSpace(p); p != "" {
				peers = append(peers, p)
			}
		}
		if len(peers) > 0 {
			agg = cluster.NewAggregator(peers)
			log.Printf("Cluster aggregator enabled with %d peers", len(peers))
		}
	}

	// 6. HTTP API server
	addr := fmt.Sprintf(":%d", *port)
	publicURL := *baseURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("http://localhost%s", addr)
	}
	srv := server.NewAPIServer(catalog, metaStore, agg, *webDir, publicURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.StartSessionCleanup(ctx)

	go func() {
		log.Printf("Listening on %s", addr)
		log.Printf("Dashboard available at %s", publicURL)
		if err := srv.Start(addr); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// 7. Graceful Shutdown Hook
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Block until signal
	sig := <-quit
	log.Printf("Received signal: %v. Shutting down...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Flushing memory to disk...")
	if err := catalog.Flush(); err != nil {
		log.Printf("Final flush failed: %v", err)
	}
	if err := catalog.Close(); err != nil {
		log.Printf("Catalog close error: %v", err)
	}

	log.Println("Tagmarks exited gracefully.")
}
