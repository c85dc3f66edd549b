package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"

	"catatwarung/backend/internal/cache"
	"catatwarung/backend/internal/config"
	"catatwarung/backend/internal/httpapi"
	"catatwarung/backend/internal/intent"
	"catatwarung/backend/internal/mirror"
	"catatwarung/backend/internal/reconcile"
	"catatwarung/backend/internal/service"
	"catatwarung/backend/internal/store"
	"catatwarung/backend/internal/store/memory"
	pgstore "catatwarung/backend/internal/store/postgres"
	"catatwarung/backend/internal/xid"
)

func main() {
	// A missing .env is fine; the process environment wins either way.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.ShopID)

	// `server token <owner>` mints an owner token and exits.
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := printToken(auth, cfg.ShopID, os.Args[2:]); err != nil {
			log.Fatalf("token: %v", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, cfg.ShopID)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	intentCache := cache.IntentCache(cache.NoopIntentCache{})
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("redis unavailable (%v), running without sync and with noop cache", err)
			_ = client.Close()
		} else {
			intentCache = cache.NewRedisIntentCache(client)
			closers = append(closers, client.Close)

			origin := cfg.NodeID
			if origin == "" {
				origin = xid.New("node")
			}
			mirrored := mirror.New(repo, mirror.NewRedisTransport(client), origin, cfg.ShopID)
			repo = mirrored
			go func() {
				if err := mirrored.Sync(runCtx); err != nil {
					log.Printf("[mirror] WARN: sync stopped: %v", err)
				}
			}()
			log.Printf("cache: redis, sync: redis (origin %s)", origin)
		}
	} else {
		log.Println("cache: noop, sync: off")
	}

	var interpreter intent.Interpreter = intent.Unavailable{}
	if cfg.OpenAIAPIKey != "" {
		openAI, err := intent.NewOpenAIInterpreter(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			log.Fatalf("openai interpreter: %v", err)
		}
		interpreter = intent.NewCached(openAI, intentCache, cfg.IntentCacheTTL())
		log.Println("interpreter: openai")
	} else {
		log.Println("interpreter: unavailable (OPENAI_API_KEY unset)")
	}

	engine := reconcile.New(repo)
	svc := service.New(repo, engine, interpreter, loc)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, cfg.VoiceRateLimitPerMinute)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("ledger backend for %s listening on %s", cfg.ShopID, cfg.Address())
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
	stopRun()

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
	if strings.TrimSpace(cfg.ShopID) == "" {
		return fmt.Errorf("SHOP_ID must be set")
	}
	if strings.ContainsAny(cfg.ShopID, " \t\r\n:") {
		return fmt.Errorf("SHOP_ID must not contain spaces or colons")
	}
	return nil
}

func printToken(auth *httpapi.AuthManager, shopID string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: server token <owner>")
	}
	token, expiresAt, err := auth.Sign(args[0], shopID)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n# expires %s\n", token, expiresAt.Format(time.RFC3339))
	return nil
}
