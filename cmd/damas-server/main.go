package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ocastro/damas-arena/internal/auth"
	"github.com/ocastro/damas-arena/internal/config"
	"github.com/ocastro/damas-arena/internal/httpapi"
	"github.com/ocastro/damas-arena/internal/lobby"
	"github.com/ocastro/damas-arena/internal/match"
	"github.com/ocastro/damas-arena/internal/msgcat"
	"github.com/ocastro/damas-arena/internal/obslog"
	"github.com/ocastro/damas-arena/internal/session"
	"github.com/ocastro/damas-arena/internal/wallet"
	"github.com/ocastro/damas-arena/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := obslog.InitFromEnv(); err != nil {
		os.Stderr.WriteString("obslog: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := obslog.L()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal("redis url", zap.Error(err))
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("redis ping", zap.Error(err))
		}
	}

	matches := match.NewManager(rdb)
	escrow := wallet.NewEngine(rdb, matches.Store(), cfg.CommissionRate)
	escrow.SetDemoStart(cfg.DemoStartBalance)
	matches.AttachSettler(escrow)

	if cfg.DatabaseURL != "" {
		repo, err := wallet.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("postgres", zap.Error(err))
		}
		defer repo.Close()
		escrow.AttachArchive(repo)
	} else {
		log.Warn("DATABASE_URL not set, match archive disabled")
	}

	offers := lobby.NewManager(lobby.NewStore(rdb, time.Duration(cfg.OfferTTLSec)*time.Second), escrow)
	verifier, err := auth.NewVerifier(cfg.JWTSecret, time.Duration(cfg.JWTExpireDays)*24*time.Hour)
	if err != nil {
		log.Fatal("auth", zap.Error(err))
	}
	cat, err := msgcat.New()
	if err != nil {
		log.Fatal("msgcat", zap.Error(err))
	}

	hub := ws.NewHub()
	coord := session.NewCoordinator(session.Options{
		Matches:  matches,
		Offers:   offers,
		Escrow:   escrow,
		Verifier: verifier,
		Catalog:  cat,
		Grace:    time.Duration(cfg.DisconnectGraceSec) * time.Second,
	})
	coord.AttachBroadcaster(hub)
	hub.SetHandler(coord)

	api := httpapi.New(offers, matches, escrow, coord, verifier, cat, hub)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		hub.Shutdown()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("exit", zap.Error(err))
		os.Exit(1)
	}
	log.Info("stopped")
}
