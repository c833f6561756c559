package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/username/moneyfolio/backend/src/config"
	"github.com/username/moneyfolio/backend/src/database"
	"github.com/username/moneyfolio/backend/src/handlers"
	"github.com/username/moneyfolio/backend/src/logger"
	"github.com/username/moneyfolio/backend/src/processors"
	"github.com/username/moneyfolio/backend/src/security"
	"github.com/username/moneyfolio/backend/src/services"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("Moneyfolio backend server starting...")

	if len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid.")
		stdlog.Fatal("JWT_SECRET must be at least 32 characters")
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations(config.Cfg.DatabasePath)

	candidateCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	authService := security.NewAuthService(config.Cfg.JWTSecret)

	scorerCfg := processors.DefaultScorerConfig()
	scorerCfg.MaxDayGap = config.Cfg.DuplicateMaxDayGap
	scorer := processors.NewSimilarityScorer(scorerCfg)

	store := services.NewTransactionStore(config.Cfg.DuplicateWindowDays)
	pendingService := services.NewPendingDuplicateService(store, candidateCache)
	duplicateService := services.NewDuplicateService(store, pendingService, scorer, candidateCache, services.DuplicateThresholds{
		Prevent: config.Cfg.DuplicatePreventScore,
		Pending: config.Cfg.DuplicatePendingScore,
		Signal:  config.Cfg.DuplicateSignalScore,
	})
	scanState := services.NewScanState()
	scanService := services.NewScanService(store, pendingService, scanState, services.ScanConfig{
		HeuristicSource:         config.Cfg.ScanHeuristicSource,
		FuzzyWordOverlapPercent: config.Cfg.FuzzyWordOverlapPercent,
		MaxDayGap:               config.Cfg.DuplicateMaxDayGap,
	})
	cleanupService := services.NewCleanupService(store, pendingService, candidateCache)

	authMiddleware := handlers.NewAuthMiddleware(authService)
	txHandler := handlers.NewTransactionHandler(duplicateService, store)
	duplicateHandler := handlers.NewDuplicateHandler(pendingService, scanService, cleanupService)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Moneyfolio Backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Handler)

			r.Post("/transactions", txHandler.HandleCreateTransaction)
			r.Get("/transactions", txHandler.HandleGetTransactions)

			r.Get("/duplicates/pending", duplicateHandler.HandleListPending)
			r.Put("/duplicates/{id}", duplicateHandler.HandleUpdatePending)
			r.Delete("/duplicates/{id}", duplicateHandler.HandleDeletePending)
			r.Post("/duplicates/{id}/resolve", duplicateHandler.HandleResolvePending)
			r.Post("/duplicates/bulk/resolve", duplicateHandler.HandleBulkResolve)
			r.Post("/duplicates/bulk/delete", duplicateHandler.HandleBulkDelete)
			r.Post("/duplicates/scan", duplicateHandler.HandleScan)
			r.Get("/duplicates/scan/status", duplicateHandler.HandleScanStatus)
			r.Post("/duplicates/cleanup", duplicateHandler.HandleCleanup)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
		}
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
