package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"qde/internal/api"
	"qde/internal/config"
	"qde/internal/engine"
	"qde/internal/logger"
	"qde/internal/market"
	"qde/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "configuration file")
		dataPath   = flag.String("data", "", "CSV bar file: symbol,timestamp,open,high,low,close,volume")
		replay     = flag.Bool("replay", false, "freeze learned weights for deterministic replay")
	)
	flag.Parse()

	// Missing .env is fine; explicit environment always wins.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *replay {
		cfg.Ensemble.Learning = false
	}

	log := logger.NewLogger(cfg.Logging)

	if *dataPath == "" {
		log.Fatal("no data file given, use -data")
	}
	bars, err := loadBars(*dataPath)
	if err != nil {
		log.Fatal("failed to load bars", "error", err, "path", *dataPath)
	}
	source := market.NewReplaySource(bars)

	sink, err := openStore(cfg)
	if err != nil {
		log.Fatal("failed to open event store", "error", err)
	}
	defer sink.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var ckpt *store.CheckpointStore
	if cfg.Store.Checkpoint.Enabled {
		ckpt, err = store.NewCheckpointStore(ctx, cfg.Store.Checkpoint.Redis)
		if err != nil {
			log.Fatal("failed to connect checkpoint store", "error", err)
		}
		defer ckpt.Close()
	}

	eng, err := engine.New(cfg, source, sink, ckpt, log)
	if err != nil {
		log.Fatal("failed to build engine", "error", err)
	}

	if ckpt != nil && cfg.Run.ID != "" {
		cp, err := ckpt.Load(ctx, cfg.Run.ID)
		if err != nil {
			log.Fatal("failed to load checkpoint", "error", err)
		}
		if cp != nil {
			if err := eng.Restore(cp); err != nil {
				log.Fatal("failed to restore checkpoint", "error", err)
			}
		}
	}

	if cfg.API.Enabled {
		server := api.NewServer(cfg.API.Addr, eng, log)
		go func() {
			if err := server.Start(); err != nil {
				log.Error("api server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error("api shutdown failed", "error", err)
			}
		}()
	}

	if err := eng.Run(ctx); err != nil && err != context.Canceled {
		log.Error("run failed", "error", err)
		os.Exit(1)
	}
}

// openStore builds the configured event store backend.
func openStore(cfg *config.Config) (store.EventStore, error) {
	switch cfg.Store.Backend {
	case "postgres":
		return store.NewPostgresStore(cfg.Store.Postgres)
	case "nop":
		return store.NewNopStore(), nil
	default:
		return store.NewMemoryStore(), nil
	}
}

// loadBars reads the CSV bar file. Header rows are skipped.
func loadBars(path string) ([]*market.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}

	bars := make([]*market.Bar, 0, len(rows))
	for i, row := range rows {
		if len(row) < 7 {
			return nil, fmt.Errorf("row %d: expected 7 columns, got %d", i+1, len(row))
		}
		ts, err := time.Parse(time.RFC3339, row[1])
		if err != nil {
			if i == 0 {
				continue // header
			}
			return nil, fmt.Errorf("row %d: bad timestamp %q", i+1, row[1])
		}

		values := make([]float64, 5)
		for j := 0; j < 5; j++ {
			v, err := strconv.ParseFloat(row[j+2], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad number %q", i+1, row[j+2])
			}
			values[j] = v
		}

		bars = append(bars, &market.Bar{
			Symbol:    row[0],
			Timestamp: ts,
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}
	return bars, nil
}
