package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Vr3n/crown-vitality-research/internal/config"
	"github.com/Vr3n/crown-vitality-research/internal/database"
	"github.com/Vr3n/crown-vitality-research/internal/handler"
	"github.com/Vr3n/crown-vitality-research/internal/metrics"
	"github.com/Vr3n/crown-vitality-research/internal/middleware"
	"github.com/Vr3n/crown-vitality-research/internal/queue"
	"github.com/Vr3n/crown-vitality-research/internal/repository"
	"github.com/Vr3n/crown-vitality-research/internal/router"
	"github.com/Vr3n/crown-vitality-research/internal/service"
	"github.com/Vr3n/crown-vitality-research/internal/session"
	"github.com/Vr3n/crown-vitality-research/internal/validation"
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "Apply pending migrations before serving")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	if migrateOnStart {
		if err := database.Migrate(cfg.DB(), database.Up); err != nil {
			return err
		}
		log.Info().Msg("migrations applied")
	}

	db, err := database.Open(cfg.DB())
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		log.Warn().Msg("redis unavailable, response cache and rate limiting disabled")
	} else {
		defer rdb.Close()
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	v := validation.New()
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, log, m.CacheLookup)

	var events service.EventPublisher = queue.Nop{}
	if cfg.AMQPEnabled {
		events = queue.NewPublisher(cfg.RabbitURL, cfg.EventsQueue, log)
	}

	taxonomy := repository.NewTaxonomyRepo(db)
	svc := service.NewNoteService(service.Deps{
		Notes:     repository.NewNoteRepo(db, taxonomy),
		Labels:    taxonomy,
		Validator: v,
		Events:    events,
		Cache:     cache,
		Metrics:   m,
		Log:       log,
	})

	e := router.New(router.Deps{
		Auth:      handler.NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db), v, m, log),
		Notes:     handler.NewNotesHandler(svc, cfg.RequestTimeout),
		Gate:      session.NewJWTGate(cfg.JWTSecret),
		Cache:     cache,
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
		Metrics:   m,
		Gatherer:  prometheus.DefaultGatherer,
		DB:        db,
		Log:       log,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
	svc.Wait()
	return nil
}
