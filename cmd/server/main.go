/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the vacation engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load optional .env, parse command-line flags
  2. Initialize SQLite store (optionally seed demo data)
  3. Create API handler with dependencies
  4. Start the periodic notification sweep
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080, env PORT)
  -db      SQLite database path (default: vacation.db, env DB_PATH)
           Use ":memory:" for an in-memory database
  -sweep   Sweep interval (default: 1h, env SWEEP_INTERVAL)
  -seed    Seed demo employees and balances on startup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweep scheduler
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/vacation.db"

  # Run with in-memory database and demo data
  ./server -db=":memory:" -seed

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Sweep scheduler
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/vacation-engine/api"
	"github.com/warp/vacation-engine/store/sqlite"
	"github.com/warp/vacation-engine/vacation"
)

func main() {
	// .env is optional; flags still win over it.
	if err := godotenv.Load(); err == nil {
		log.Println("[Server] Loaded configuration from .env")
	}

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "vacation.db"), "SQLite database path")
	sweepInterval := flag.Duration("sweep", envDuration("SWEEP_INTERVAL", time.Hour), "notification sweep interval")
	seed := flag.Bool("seed", false, "seed demo employees and balances")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	if *seed {
		if err := seedDemoData(context.Background(), store); err != nil {
			log.Fatalf("Failed to seed demo data: %v", err)
		}
		log.Println("[Server] Seeded demo employees and balances")
	}

	// Initialize handler and router
	handler := api.NewHandler(store)
	router := api.NewRouter(handler)

	// Periodic reminder sweep
	scheduler := api.NewSweepScheduler(handler.Notifications)
	scheduler.Interval = *sweepInterval
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("[Server] Starting on http://localhost:%d", *port)
		log.Printf("[Server] API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Server] Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("[Server] Stopped")
}

// seedDemoData inserts a small org chart for local development: one
// manager with two reports, one HR user, 20 allocated days each.
func seedDemoData(ctx context.Context, store *sqlite.Store) error {
	managerID := "mgr-1"
	employees := []vacation.Employee{
		{ID: "mgr-1", Username: "maria", FirstName: "Maria", LastName: "Keller", Role: vacation.RoleManager, Department: "Engineering"},
		{ID: "emp-1", Username: "jonas", FirstName: "Jonas", LastName: "Brandt", Role: vacation.RoleEmployee, Department: "Engineering", ManagerID: &managerID},
		{ID: "emp-2", Username: "petra", FirstName: "Petra", LastName: "Sommer", Role: vacation.RoleEmployee, Department: "Engineering", ManagerID: &managerID},
		{ID: "hr-1", Username: "lena", FirstName: "Lena", LastName: "Vogt", Role: vacation.RoleHR, Department: "People"},
	}

	for _, e := range employees {
		if err := store.SaveEmployee(ctx, e); err != nil {
			return err
		}
		if err := store.SetAllocation(ctx, e.ID, vacation.Days(20)); err != nil {
			return err
		}
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
