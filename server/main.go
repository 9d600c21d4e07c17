package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"collabtext/internal/auth"
	"collabtext/internal/config"
	"collabtext/internal/discovery"
	"collabtext/internal/editor"
	"collabtext/internal/relay"
)

func main() {
	if err := mainInner(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	cfg, err := config.LoadRelay(os.Args[1:], os.Getenv)
	if err != nil {
		return err
	}
	log, err := config.NewLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Fan-out: redis when configured, in-process otherwise ---
	var broker relay.Broker = relay.NewMemoryBroker()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			return fmt.Errorf("could not connect to redis: %w", err)
		}
		log.Info("connected to redis", "addr", cfg.RedisAddr)
		broker = relay.NewRedisBroker(rdb, cfg.Document, log)
	}

	// --- Auth: postgres when configured, in-memory otherwise ---
	var store auth.Store
	if cfg.DatabaseURL != "" {
		dbpool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("unable to connect to database: %w", err)
		}
		defer dbpool.Close()
		if err := dbpool.Ping(ctx); err != nil {
			return fmt.Errorf("unable to reach database: %w", err)
		}
		pg := auth.NewPostgresStore(dbpool)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		log.Info("connected to postgres")
		store = pg
	} else {
		store = auth.NewMemoryStore()
	}
	for _, u := range cfg.Users {
		if err := store.AddUser(ctx, u.Email, u.Password); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
	}

	hub := relay.NewHub(broker, editor.DefaultLines(editor.UUIDGenerator{}), log)
	srv := relay.NewServer(hub, relay.Options{Auth: store, RequireAuth: cfg.RequireAuth, Log: log})
	httpServer := &http.Server{Addr: cfg.Addr, Handler: srv.Handler()}

	wg := new(sync.WaitGroup)
	hubErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		hubErr <- hub.Run(ctx)
	}()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		cancel()
		wg.Wait()
		return err
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server listen failed", "err", err)
		}
	}()
	log.Info("collabtext relay starting", "addr", ln.Addr().String(), "document", cfg.Document)

	if cfg.Advertise {
		port, _ := strconv.Atoi(portOf(ln.Addr()))
		stop, err := discovery.Advertise(cfg.Document, port, log)
		if err != nil {
			log.Warn("mdns advertisement disabled", "err", err)
		} else {
			defer stop()
		}
	}

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-exit:
		log.Info("signal caught", "sig", sig)
	case err := <-hubErr:
		log.Error("hub stopped", "err", err)
	}

	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = httpServer.Shutdown(shutdownCtx)
	wg.Wait()
	return nil
}

func portOf(addr net.Addr) string {
	_, port, _ := net.SplitHostPort(addr.String())
	return port
}
