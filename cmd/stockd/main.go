// stockd is the inventory ledger daemon: an in-memory, append-only event
// store with WAL durability, snapshots, Parquet archiving and an HTTP JSON
// API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tentenbyte/stockd/internal/archive"
	"github.com/tentenbyte/stockd/internal/config"
	"github.com/tentenbyte/stockd/internal/errors"
	"github.com/tentenbyte/stockd/internal/ledger"
	"github.com/tentenbyte/stockd/internal/logging"
	"github.com/tentenbyte/stockd/internal/monitor"
	"github.com/tentenbyte/stockd/internal/persist"
	"github.com/tentenbyte/stockd/internal/server"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	listen := flag.String("listen", "", "listen address (overrides config)")
	dataDir := flag.String("data", "", "data directory (overrides config)")
	seed := flag.Bool("seed", false, "seed demo data into tenant 'demo' at startup")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.DefaultConfig()
		} else {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}

	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	logging.Init(parseLevel(cfg.Log.Level), cfg.Log.JSON)
	log := logging.Component("main")
	log.Info("stockd starting", "version", Version, "data_dir", cfg.DataDir)

	// Persistence. A held lock is fatal: two daemons must never share a data
	// directory. Any other initialization failure degrades to memory-only.
	var pm *persist.Manager
	pm, err = persist.New(cfg.DataDir, persist.Options{
		SyncMode:       cfg.WAL.SyncMode,
		MaxSegmentSize: cfg.WAL.MaxSegmentSize,
	}, logging.Component("persist"))
	if err != nil {
		if errors.Is(err, errors.ErrLockHeld) {
			log.Error("data directory locked by another process", "data_dir", cfg.DataDir)
			os.Exit(1)
		}
		log.Error("persistence unavailable, running memory-only", "error", err)
		pm = nil
	}

	mon := monitor.New(0.01)

	// A typed nil *persist.Manager must not reach the interface.
	var p ledger.Persister
	if pm != nil {
		p = pm
	}
	store := ledger.NewStore(p, mon, logging.Component("store"))

	if *seed {
		seedDemoData(store, log)
	}

	var archiver *archive.Engine
	if cfg.Archive.Enabled && pm != nil {
		archiver = archive.New(cfg.ArchiveDir(), archive.Options{
			Compression: cfg.Archive.Compression,
			Workers:     cfg.Archive.Workers,
		}, logging.Component("archive"))
	}

	srv := server.New(server.Config{
		Listen:    cfg.Listen,
		Store:     store,
		Monitor:   mon,
		Persister: pm,
		Archiver:  archiver,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if pm != nil && cfg.Snapshot.Interval > 0 {
		go snapshotLoop(ctx, store, cfg.Snapshot.Interval, log)
	}
	if archiver != nil && cfg.Archive.Interval > 0 {
		go archiveLoop(ctx, archiver, pm, store, cfg.Archive.Interval, log)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Info("shutting down", "signal", s.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}

		// Final snapshot, then release the data directory.
		store.Close()
		if pm != nil {
			if err := pm.Close(); err != nil {
				log.Warn("persistence close", "error", err)
			}
		}
	}()

	if err := srv.Start(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("stockd stopped")
}

// snapshotLoop writes periodic snapshots so recovery replays a bounded WAL
// suffix.
func snapshotLoop(ctx context.Context, store *ledger.Store, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.CreateSnapshot(); err != nil {
				log.Warn("periodic snapshot failed", "error", err)
			}
		}
	}
}

// archiveLoop runs periodic archival passes.
func archiveLoop(ctx context.Context, eng *archive.Engine, pm *persist.Manager,
	store *ledger.Store, interval time.Duration, log *slog.Logger) {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := eng.Run(ctx, pm, store); err != nil {
				log.Warn("archival pass failed", "error", err)
			}
		}
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// seedDemoData appends a small demo dataset to the "demo" tenant. Duplicate
// ids on restart are rejected by the store and skipped quietly.
func seedDemoData(store *ledger.Store, log *slog.Logger) {
	events := []ledger.Event{
		{
			TransID: "TXN-DEMO-001", ItemID: "ITEM001", ItemName: "ThinkPad X1",
			Type: ledger.TypeIn, Quantity: 10, UnitPrice: 1299.99,
			Category: "laptop", Model: "X1-G11", Unit: "pcs",
			PartnerID: "SUP001", PartnerName: "Lenovo Distribution",
			WarehouseID: "WH01", DocumentNo: "PO-2024-001",
			Timestamp: "2024-01-15T10:30:00Z",
		},
		{
			TransID: "TXN-DEMO-002", ItemID: "ITEM002", ItemName: "USB-C Dock",
			Type: ledger.TypeIn, Quantity: 50, UnitPrice: 89.50,
			Category: "accessory", Model: "DOCK-40", Unit: "pcs",
			PartnerID: "SUP001", PartnerName: "Lenovo Distribution",
			WarehouseID: "WH01", DocumentNo: "PO-2024-001",
			Timestamp: "2024-01-15T10:30:00Z",
		},
		{
			TransID: "TXN-DEMO-003", ItemID: "ITEM001", ItemName: "ThinkPad X1",
			Type: ledger.TypeOut, Quantity: 2, UnitPrice: 1299.99,
			Category: "laptop", Model: "X1-G11", Unit: "pcs",
			PartnerID: "CUST001", PartnerName: "Acme Corp",
			WarehouseID: "WH01", DocumentNo: "SO-2024-001",
			Timestamp: "2024-01-16T09:00:00Z",
		},
	}

	seeded := 0
	for _, e := range events {
		if err := store.Append("demo", e); err != nil {
			if !errors.Is(err, errors.ErrDuplicateTransactionID) {
				log.Warn("seed append failed", "trans_id", e.TransID, "error", err)
			}
			continue
		}
		seeded++
	}
	log.Info("demo data seeded", "tenant_id", "demo", "events", seeded)
}
