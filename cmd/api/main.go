package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/adreel/backend/internal/handlers"
	"github.com/adreel/backend/internal/mediastore"
	"github.com/adreel/backend/internal/middleware"
	"github.com/adreel/backend/internal/workers"
)

// deps holds the seams that tests replace to run main's wiring without a real
// database or listener.
type deps struct {
	getenv         func(string) string
	openDB         func(driverName, dataSourceName string) (*sql.DB, error)
	migrateUp      func(*sql.DB) error
	listenAndServe func(*http.Server) error
	notify         func(chan<- os.Signal, ...os.Signal)
	stopCh         chan os.Signal
}

func defaultDeps() deps {
	return deps{
		getenv:         os.Getenv,
		openDB:         sql.Open,
		migrateUp:      migrateUp,
		listenAndServe: func(srv *http.Server) error { return srv.ListenAndServe() },
		notify:         func(c chan<- os.Signal, sig ...os.Signal) { signal.Notify(c, sig...) },
	}
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := run(defaultDeps()); err != nil {
		log.Fatal(err)
	}
	log.Println("Server stopped")
}

func run(d deps) error {
	if d.getenv == nil {
		d.getenv = func(string) string { return "" }
	}

	databaseURL := d.getenv("DATABASE_URL")
	if databaseURL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if d.openDB == nil {
		return errors.New("openDB dependency is required")
	}

	// Root context for background workers and graceful shutdown
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := d.openDB("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if d.migrateUp != nil {
		if err := d.migrateUp(db); err != nil {
			return fmt.Errorf("database migration failed: %w", err)
		}
		log.Println("Database is up-to-date")
	}

	media := mediastore.New(
		firstNonEmpty(d.getenv("MEDIA_DIR"), "media"),
		d.getenv("PUBLIC_BASE_URL"),
	)
	h := handlers.NewWithMedia(db, media)

	// Optional cross-instance realtime bridge.
	if redisURL := strings.TrimSpace(d.getenv("REDIS_URL")); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		h.EnableRedisBridge(rootCtx, redis.NewClient(opt))
		log.Println("Realtime Redis bridge enabled")
	}

	router := buildRouter(h, db, media.BaseDir)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	port := resolvePort(d.getenv)
	srv := &http.Server{
		Handler:      c.Handler(router),
		Addr:         ":" + port,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	stop := d.stopCh
	if stop == nil {
		stop = make(chan os.Signal, 1)
	}
	if d.notify != nil {
		d.notify(stop, os.Interrupt, syscall.SIGTERM)
	}

	startChatCleanupIfEnabled(rootCtx, db, d.getenv)

	go func() {
		<-stop
		log.Println("Shutting down server...")
		cancel()
		ctx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Server starting on port %s", port)
	if d.listenAndServe == nil {
		return errors.New("listenAndServe dependency is required")
	}
	if err := d.listenAndServe(srv); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func buildRouter(h *handlers.Handler, db *sql.DB, mediaDir string) *mux.Router {
	r := mux.NewRouter()
	handlers.RegisterRoutes(h, r)
	handlers.RegisterAdminRoutes(h, r, middleware.NewAdminGate(db).Middleware)
	// Stored objects are served straight off disk; URLs come from the media store.
	r.PathPrefix("/media/").Handler(http.StripPrefix("/media/", http.FileServer(http.Dir(mediaDir))))
	return r
}

func migrateUp(db *sql.DB) error {
	if db == nil {
		return errors.New("nil database")
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to init migration driver: %w", err)
	}
	migrator, err := migrate.NewWithDatabaseInstance("file://db/migrations", "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func resolvePort(getenv func(string) string) string {
	if p := strings.TrimSpace(getenv("PORT")); p != "" {
		return p
	}
	return "18911"
}

func parseIntervalFromEnv(getenv func(string) string, key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

func startChatCleanupIfEnabled(ctx context.Context, db *sql.DB, getenv func(string) string) {
	enabled := getenv("CHAT_CLEANUP_ENABLED")
	if enabled != "" && enabled != "true" {
		log.Printf("[ChatCleanupWorker] disabled via CHAT_CLEANUP_ENABLED=%q", enabled)
		return
	}
	interval := parseIntervalFromEnv(getenv, "CHAT_CLEANUP_INTERVAL_SECONDS", time.Hour)
	idleHours := 0
	if v := strings.TrimSpace(getenv("CHAT_IDLE_HOURS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			idleHours = n
		}
	}
	w := &workers.ChatSessionCleanupWorker{
		DB:              db,
		IdleHours:       idleHours,
		CheckIntervalMs: int(interval / time.Millisecond),
	}
	go w.Start(ctx)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
