package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cafeledger/backend/internal/blob"
	"cafeledger/backend/internal/cache"
	"cafeledger/backend/internal/config"
	"cafeledger/backend/internal/httpapi"
	"cafeledger/backend/internal/reporting"
	"cafeledger/backend/internal/service"
	"cafeledger/backend/internal/store"
	"cafeledger/backend/internal/store/memory"
	pgstore "cafeledger/backend/internal/store/postgres"
)

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		log.Fatalf("read .env: %v", err)
	}
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("invalid REPORT_TIMEZONE: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				log.Fatalf("migrate: %v", err)
			}
			log.Println("schema: migrated")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.New()
		log.Println("repository: in-memory")
	}

	cacheStore := cache.ReportCache(cache.NewMemoryReportCache())
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using in-process report cache", err)
		} else {
			cacheStore = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: in-process")
	}

	var images blob.Storage
	if cfg.StorageURL != "" && cfg.StorageKey != "" {
		images = blob.NewSupabaseStorage(cfg.StorageURL, cfg.StorageKey, cfg.StorageBucket)
		log.Printf("images: supabase bucket %s", cfg.StorageBucket)
	} else {
		images = blob.NewMemoryStorage("http://localhost" + cfg.Address() + "/images")
		log.Println("images: in-memory")
	}

	reports := reporting.NewEngine(repo, cacheStore, reporting.Options{
		Location:                     loc,
		CacheTTL:                     cfg.ReportCacheTTL(),
		MonthlyIncludesDailyExpenses: cfg.MonthlyIncludesDailyExpenses,
	})
	svc := service.New(repo, reports, images)
	auth := httpapi.NewAuthManager(repo, cfg.AuthSecret, cfg.AccessTokenTTL())
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("cafe backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AccessTokenTTL() > 7*24*time.Hour {
		return fmt.Errorf("ACCESS_TOKEN_TTL_MINUTES must not exceed one week")
	}
	if (cfg.StorageURL == "") != (cfg.StorageKey == "") {
		return fmt.Errorf("STORAGE_URL and STORAGE_KEY must be set together")
	}
	return nil
}
