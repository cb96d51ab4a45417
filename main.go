package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ehs-platform/services/noncompliance/internal/config"
	"github.com/ehs-platform/services/noncompliance/internal/events"
	"github.com/ehs-platform/services/noncompliance/internal/handler"
	"github.com/ehs-platform/services/noncompliance/internal/lifecycle"
	"github.com/ehs-platform/services/noncompliance/internal/repository"
	"github.com/ehs-platform/services/noncompliance/pkg/logger"
)

func main() {
	// Load .env if present; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	log.SetDefault()

	log.Info("starting service",
		"service", cfg.Service.Name,
		"environment", cfg.Service.Environment,
		"port", cfg.Service.HTTPPort,
		"store", cfg.Store.Backend,
	)

	// Case store: postgres in production, memory for local development.
	var store repository.CaseStore
	var db *sqlx.DB

	switch cfg.Store.Backend {
	case "postgres":
		db, err = initDB(cfg)
		if err != nil {
			log.Error("failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		log.Info("database connection established",
			"host", cfg.Database.Host,
			"database", cfg.Database.Database,
		)
		store = repository.NewPostgresStore(db)
	default:
		store = repository.NewMemoryStore()
	}

	// Optional redis read-through cache in front of the store.
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()

		store = repository.NewCachedStore(store, client, repository.CacheConfig{
			CaseTTL: cfg.Redis.CaseTTL,
		})
		log.Info("case cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CaseTTL)
	}

	// Optional transition event stream.
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		kafkaPublisher, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, log.Logger)
		if err != nil {
			log.Error("failed to initialize event publisher", "error", err)
			os.Exit(1)
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher

		log.Info("transition events enabled",
			"brokers", strings.Join(cfg.Kafka.Brokers, ","),
			"topic", cfg.Kafka.Topic,
		)
	}

	// Wire the lifecycle service and HTTP layer.
	service := lifecycle.NewService(store, log, lifecycle.WithPublisher(publisher))
	caseHandler := handler.NewCaseHandler(service)

	router := mux.NewRouter()
	router.Use(loggingMiddleware(log))
	router.Use(recoveryMiddleware(log))
	router.Use(corsMiddleware(cfg.CORS))

	router.HandleFunc("/health", healthHandler(cfg)).Methods("GET")
	router.HandleFunc("/ready", readyHandler(cfg, db)).Methods("GET")

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	caseHandler.RegisterRoutes(apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Service.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.Service.ReadTimeout,
		WriteTimeout: cfg.Service.WriteTimeout,
		IdleTimeout:  cfg.Service.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", "error", err)
	}

	log.Info("server exited gracefully")
}

// initDB initializes the PostgreSQL database connection.
func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Middleware

func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			log.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("panic recovered",
						"error", err,
						"method", r.Method,
						"path", r.URL.Path,
					)
					http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func corsMiddleware(cfg config.CORSConfig) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, o := range cfg.AllowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}

			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == "OPTIONS" {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowedMethods, ", "))
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ", "))
				w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", cfg.MaxAge))
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Handlers

func healthHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","service":%q}`, cfg.Service.Name)
	}
}

func readyHandler(cfg *config.Config, db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if db != nil {
			if err := db.Ping(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, `{"status":"not_ready","service":%q,"error":"database connection failed"}`, cfg.Service.Name)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ready","service":%q}`, cfg.Service.Name)
	}
}
