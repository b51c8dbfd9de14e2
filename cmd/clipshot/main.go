// Package main provides the Clipshot daemon: a local clipboard history
// keeper with a size-bounded, crash-resilient store. It polls the system
// clipboard and feeds captures into the history store; the store handles
// deduplication, eviction, and durable persistence with rotating backups.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atotto/clipboard"

	"github.com/dev-datacode/clipshot/pkg/classify"
	"github.com/dev-datacode/clipshot/pkg/config"
	"github.com/dev-datacode/clipshot/pkg/history"
	"github.com/dev-datacode/clipshot/pkg/logging"
	"github.com/dev-datacode/clipshot/pkg/persist"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to the config file")
	dataDir := flag.String("data-dir", "", "override the data directory")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Clipshot v%s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	logger, logErr := logging.NewLogger("clipshot")
	if logErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: file logging unavailable: %v\n", logErr)
	}
	defer logger.Close()

	engine, err := persist.NewEngine(persist.Options{
		Path:        cfg.HistoryPath(),
		Generations: cfg.BackupGenerations,
		Quiet:       cfg.Debounce.Std(),
		OnError: func(err error) {
			logger.Errorf("background save failed: %v", err)
		},
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("Persistence error: %v", err)
	}

	store, err := history.Open(history.Options{
		Saver:            engine,
		BlobDir:          cfg.BlobDir(),
		MaxStorageBytes:  cfg.MaxStorageBytes,
		MaxItemBytes:     cfg.MaxItemBytes,
		DedupeWindow:     cfg.DedupeWindow,
		ProtectFavorites: cfg.ProtectFavorites,
		Classifier:       classify.Default().Sensitive,
		Logger:           logger,
	})
	if err != nil {
		if store == nil {
			log.Fatalf("History store error: %v", err)
		}
		// Degraded load: surface it, keep running with an empty history.
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		logger.Warnf("starting with empty history: %v", err)
	}

	logger.Infof("Clipshot v%s started, %d item(s) loaded, data dir %s", version, store.Len(), cfg.DataDir)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	run(store, cfg.PollInterval.Std(), sigChan, logger)

	logger.Infof("shutting down")
	if err := store.Shutdown(); err != nil {
		logger.Errorf("shutdown flush failed: %v", err)
	}
	if err := engine.Close(); err != nil {
		logger.Errorf("engine close failed: %v", err)
	}
}

// run is the sole producer of capture calls: one periodic task polls the
// clipboard until a shutdown signal arrives. Capture itself never blocks on
// the history file, so polling keeps its cadence.
func run(store *history.Store, interval time.Duration, sigChan <-chan os.Signal, logger *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastText string
	for {
		select {
		case <-sigChan:
			return
		case <-ticker.C:
			text, err := clipboard.ReadAll()
			if err != nil {
				// Empty clipboard and unsupported selections surface as
				// errors on some platforms; neither is actionable here.
				continue
			}
			if text == "" || text == lastText {
				continue
			}
			lastText = text

			outcome, err := store.Capture(history.Candidate{
				Data: []byte(text),
				Kind: history.KindText,
			})
			if err != nil {
				logger.Errorf("capture failed: %v", err)
				continue
			}
			logger.Debugf("capture: %s (%d bytes)", outcome, len(text))
		}
	}
}
