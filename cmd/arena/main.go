package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Aram47/chess-game-monolit-backend/internal/botapi"
	appcfg "github.com/Aram47/chess-game-monolit-backend/internal/config"
	"github.com/Aram47/chess-game-monolit-backend/internal/engine"
	"github.com/Aram47/chess-game-monolit-backend/internal/gateway"
	"github.com/Aram47/chess-game-monolit-backend/internal/match"
	"github.com/Aram47/chess-game-monolit-backend/internal/obslog"
	"github.com/Aram47/chess-game-monolit-backend/internal/roomstore"
	"github.com/Aram47/chess-game-monolit-backend/internal/rules"
	"github.com/Aram47/chess-game-monolit-backend/internal/session"
	"github.com/Aram47/chess-game-monolit-backend/internal/snapshot"
)

func main() {
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	store, err := roomstore.NewFromURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("room store init failed", zap.Error(err))
	}

	var sink session.Sink
	var repo *snapshot.Repository
	if cfg.DatabaseURL != "" {
		repo, err = snapshot.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("snapshot repository init failed", zap.Error(err))
		}
		sink = repo
	} else {
		logger.Warn("no DATABASE_URL, finished games will not be persisted")
	}

	var engines session.BestMover
	var pool *engine.Pool
	if cfg.StockfishPath != "" {
		pool, err = engine.NewPool(engine.PoolConfig{
			BinaryPath:   cfg.StockfishPath,
			Size:         cfg.EnginePoolSize,
			MoveDeadline: cfg.EngineDeadline(),
		})
		if err != nil {
			logger.Fatal("engine pool init failed", zap.Error(err))
		}
		engines = pool
	} else {
		logger.Warn("no STOCKFISH_PATH, bot play disabled")
	}

	registry := gateway.NewRegistry()
	sessions := session.NewHandler(store, rules.NewAdapter(), engines, sink, registry, session.Config{
		RoomTTL:           cfg.RoomTTL(),
		DisconnectGrace:   cfg.DisconnectGrace(),
		DefaultDifficulty: cfg.DefaultDifficulty,
	})
	monitor := session.NewMonitor(sessions)
	coordinator := match.New(store, cfg.RoomTTL())

	ws := gateway.NewServer(coordinator, sessions, monitor, registry, cfg.JWTSecret)
	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: ws}
	go func() {
		logger.Info("gateway_listen", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("gateway serve failed", zap.Error(err))
		}
	}()

	botSrv := botapi.NewServer(sessions)
	go func() {
		if err := botSrv.ListenAndServe(cfg.BotAPIAddr); err != nil {
			logger.Fatal("bot api serve failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = botSrv.Shutdown()
	if pool != nil {
		_ = pool.Close()
	}
	if repo != nil {
		_ = repo.Close()
	}
	_ = store.Close()
}
