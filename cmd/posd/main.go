// Package main runs the Tableside POS daemon: the offline-first core
// plus a small local HTTP/WebSocket surface for the UI.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tableside/pos/internal/config"
	"github.com/tableside/pos/internal/connectivity"
	"github.com/tableside/pos/internal/db"
	"github.com/tableside/pos/internal/dispatcher"
	"github.com/tableside/pos/internal/logging"
	"github.com/tableside/pos/internal/queue"
	"github.com/tableside/pos/internal/remote"
	syncpkg "github.com/tableside/pos/internal/sync"
)

func main() {
	logging.Init(os.Stderr, logging.LevelInfo)

	cfg := config.Load()

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		logging.Error("Failed to open local database", err,
			map[string]interface{}{"data_dir": cfg.DataDir})
		os.Exit(1)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := db.NewStore(database)
	if err := store.Initialize(ctx); err != nil {
		logging.Error("Failed to initialize local store", err, nil)
		os.Exit(1)
	}

	rc := remote.NewRESTClient(cfg.RemoteURL, cfg.RemoteKey)
	q := queue.NewQueue(store)
	engine := syncpkg.NewEngine(q, rc)

	monitor := connectivity.NewMonitor(rc.Ping, &connectivity.Config{
		ProbeInterval:   cfg.ProbeInterval,
		ProbeTimeout:    3 * time.Second,
		PendingInterval: 10 * time.Second,
		Outstanding:     q.HasOutstanding,
	})

	d := dispatcher.NewDispatcher(monitor, engine, q, rc, store)

	hub := newWSHub()

	engine.OnStatusChange(func(s syncpkg.Status) {
		hub.BroadcastSyncStatus(string(s))
	})
	monitor.OnPendingChange(hub.BroadcastQueuePending)
	monitor.OnOffline(func() { hub.BroadcastConnectivity(false) })

	// The monitor is the sole automatic sync trigger: drain on every
	// offline-to-online transition.
	monitor.OnOnline(func() {
		hub.BroadcastConnectivity(true)
		go func() {
			if err := engine.Drain(ctx); err != nil {
				logging.Error("Automatic drain failed", err, nil)
			}
		}()
	})

	monitor.Start(ctx)
	defer monitor.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", handleHealth(monitor, q))
	mux.HandleFunc("/api/orders", handleOrders(d))
	mux.HandleFunc("/api/menu", handleMenu(d))
	mux.HandleFunc("/api/sync", handleSync(d))
	mux.HandleFunc("/api/queue/retry", handleQueueRetry(q))
	mux.HandleFunc("/api/queue/clear", handleQueueClear(q))
	mux.HandleFunc("/ws", handleWebSocket(hub))

	server := &http.Server{Addr: cfg.WSAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		hub.Stop()
	}()

	logging.Info("Tableside POS daemon listening",
		map[string]interface{}{"addr": cfg.WSAddr, "remote": cfg.RemoteURL})

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Error("Server failed", err, nil)
		os.Exit(1)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func handleHealth(monitor *connectivity.Monitor, q *queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		pending, err := q.HasOutstanding(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"online":  monitor.IsOnline(),
			"pending": pending,
		})
	}
}

func handleOrders(d *dispatcher.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		orders, err := d.Orders(r.Context())
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, orders)
	}
}

func handleMenu(d *dispatcher.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		menu, err := d.Menu(r.Context())
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, menu)
	}
}

func handleSync(d *dispatcher.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := d.TriggerSync(r.Context()); err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "drained"})
	}
}

func handleQueueRetry(q *queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		n, err := q.RetryFailed(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"reset": n})
	}
}

func handleQueueClear(q *queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		n, err := q.ClearFailed(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": n})
	}
}
