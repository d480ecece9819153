package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/classmesh/sfu/internal/adapters/http"
	ws "github.com/classmesh/sfu/internal/adapters/signal"
	"github.com/classmesh/sfu/internal/config"
	"github.com/classmesh/sfu/internal/coord"
	"github.com/classmesh/sfu/internal/domain"
	"github.com/classmesh/sfu/internal/engine"
	"github.com/classmesh/sfu/internal/session"
	"github.com/classmesh/sfu/internal/sfu"
	"github.com/classmesh/sfu/internal/worker"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	sfuID := domain.NewSfuID()
	log.Info().Str("sfu", string(sfuID)).Msg("starting")

	store, err := coord.NewRedisStore(ctx, cfg.RedisAddr, cfg.TrackTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("redis unavailable")
	}

	eng := engine.New(cfg.StunServers)
	pool, err := worker.NewPool(ctx, eng, cfg.Workers.Producer, cfg.Workers.Consumer, cfg.Workers.Mixed)
	if err != nil {
		log.Fatal().Err(err).Msg("worker pool setup")
	}

	rooms := session.NewManager(sfuID, cfg.TaskTimeout)
	orch := sfu.NewOrchestrator(sfuID, rooms, pool, store, store)

	claimer := coord.NewClaimer(store, sfuID, cfg.SfuAddr, cfg.LeaseTTL, cfg.LivenessTTL)
	claimer.OnAssigned = func(room domain.RoomID) {
		// Pre-create so the first signaling connection lands on a room
		// this instance already owns.
		rooms.GetOrCreate(room)
	}
	go claimer.Run(ctx)
	go orch.RunIdleSweep(ctx, cfg.IdleSweepInterval)

	ctl := ws.NewController(orch, cfg)
	verifier := router.NewHMACVerifier(cfg.Secret)
	r := router.SetupRouter(cfg, ctl, verifier)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
