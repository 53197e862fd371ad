package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"sentinel_director_server/logic"
	"sentinel_director_server/network"
	"sentinel_director_server/storage"
	"sentinel_director_server/telemetry"
)

// ProcessConfig holds process-level settings read from the environment.
type ProcessConfig struct {
	Addr         string `env:"SENTINEL_ADDR" envDefault:":8080"`
	ConfigPath   string `env:"SENTINEL_CONFIG" envDefault:"director_config.json"`
	DBPath       string `env:"SENTINEL_DB" envDefault:"director.db"`
	Site         string `env:"SENTINEL_SITE" envDefault:"site_1"`
	OTelEndpoint string `env:"SENTINEL_OTEL_ENDPOINT"`
	JournalQueue int    `env:"SENTINEL_JOURNAL_QUEUE" envDefault:"1024"`
}

func parseProcessConfig(args []string) (ProcessConfig, error) {
	var cfg ProcessConfig
	if err := env.Parse(&cfg); err != nil {
		return ProcessConfig{}, err
	}
	fs := flag.NewFlagSet("sentinel", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "director config JSON path")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite journal path")
	fs.StringVar(&cfg.Site, "site", cfg.Site, "site id to host")
	if err := fs.Parse(args); err != nil {
		return ProcessConfig{}, err
	}
	return cfg, nil
}

func loadDirectorConfig(path string) (*logic.DirectorConfig, error) {
	cfg, err := logic.LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("Config %s not found, using defaults", path)
		cfg = logic.DefaultConfig()
		logic.ClampDirectorConfig(cfg)
		return cfg, nil
	}
	return cfg, err
}

func main() {
	log.SetPrefix("[sentinel] ")

	// 1. Load Config
	proc, err := parseProcessConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("Error loading process config: %v", err)
	}
	cfg, err := loadDirectorConfig(proc.ConfigPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "sentinel-director", proc.OTelEndpoint)
	if err != nil {
		log.Fatalf("Tracing setup error: %v", err)
	}

	// 2. Journal + Site
	journal, err := storage.OpenJournal(proc.DBPath, proc.JournalQueue)
	if err != nil {
		log.Fatalf("Journal error: %v", err)
	}
	manager := network.NewRoomManager(journal)
	if _, err := manager.CreateRoom(proc.Site, cfg); err != nil {
		log.Fatalf("Site error: %v", err)
	}

	// 3. Router Setup
	srv := &http.Server{Addr: proc.Addr, Handler: newMux(manager, journal, proc.Site)}

	go func() {
		log.Printf("Sentinel Director listening on %s (site %s)", proc.Addr, proc.Site)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	manager.StopAll()
	if err := journal.Close(); err != nil {
		log.Printf("Journal close: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("Tracing shutdown: %v", err)
	}
}

func newMux(manager *network.RoomManager, journal *storage.Journal, defaultSite string) *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket Endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		site := r.URL.Query().Get("site")
		if site == "" {
			site = defaultSite
		}
		room := manager.GetRoom(site)
		if room == nil {
			http.Error(w, "unknown site", http.StatusNotFound)
			return
		}
		network.ServeWs(room, w, r)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /rounds", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		rounds, err := journal.RecentRounds(r.Context(), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, rounds)
	})

	mux.HandleFunc("GET /rounds/{id}/decisions", func(w http.ResponseWriter, r *http.Request) {
		decisions, err := journal.DecisionsForRound(r.Context(), r.PathValue("id"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, decisions)
	})

	mux.HandleFunc("GET /rounds/{id}/evidence", func(w http.ResponseWriter, r *http.Request) {
		events, err := journal.EvidenceForRound(r.Context(), r.PathValue("id"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, events)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}
