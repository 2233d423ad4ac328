// Package main, pitchline backend sunucusunun giriş noktasıdır.
//
// Bu dosyanın görevi Dependency Injection wire-up:
//  1. Logger ve config
//  2. Database (embedded migration'lar)
//  3. Repository'ler
//  4. Realtime Hub (+ opsiyonel Redis relay)
//  5. Service'ler
//  6. Hub callback'leri (join/change yetkilendirmesi)
//  7. Handler'lar ve route'lar
//  8. CORS, HTTP server, graceful shutdown
//
// Global değişken yok; her şey burada oluşturulup birbirine bağlanır.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/akinalp/pitchline/config"
	"github.com/akinalp/pitchline/database"
	"github.com/akinalp/pitchline/middleware"
	"github.com/akinalp/pitchline/pkg/logger"
	"github.com/akinalp/pitchline/realtime"
	"github.com/akinalp/pitchline/realtime/redisrelay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger config'e bağlı; burada henüz varsayılan logger var.
		boot := logger.New("info", true)
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	log.Info().Int("port", cfg.Server.Port).Msg("pitchline server starting")

	// ─── Database ───
	db, err := database.Open(cfg.Database.Path, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	// ─── Repository Layer ───
	repos := initRepositories(db)

	// ─── Realtime Hub ───
	//
	// Hub, ChangePublisher interface'ini karşılar; service'ler Hub'ın
	// concrete struct'ına değil bu interface'e bağımlıdır.
	hub := realtime.NewHub(log, cfg.Realtime.SendBufferSize)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Redis.URL != "" {
		relay, err := redisrelay.New(ctx, cfg.Redis.URL, cfg.Redis.Channel, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect change relay")
		}
		defer relay.Close()
		hub.SetRelay(relay)
		log.Info().Str("channel", cfg.Redis.Channel).Msg("redis change relay enabled")
	}

	// ─── Service Layer ───
	svcs, limiters := initServices(cfg, repos, hub, log)
	defer limiters.Message.Stop()
	if svcs.Notifier != nil {
		defer svcs.Notifier.Close()
	}

	// ─── Hub Callback'leri ───
	membership := registerHubCallbacks(hub, repos, cfg.Realtime.MembershipTTL, log)
	defer membership.Close()

	// ─── Handler + Route ───
	h := initHandlers(cfg, db, repos, svcs, limiters, hub)
	authMw := middleware.NewAuthMiddleware(svcs.Token, repos.Profile, log)

	mux := http.NewServeMux()
	initRoutes(mux, h, authMw)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
	})

	// WriteTimeout verilmez: /ws bağlantıları uzun ömürlüdür, yazma
	// deadline'ı her mesajda wsClient tarafından ayrıca kurulur.
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           corsHandler.Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// ─── Çalıştır + Graceful Shutdown ───
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return
	}
	log.Info().Msg("server stopped gracefully")
}
