package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/flashsale/core/internal/audit"
	"github.com/flashsale/core/internal/config"
	"github.com/flashsale/core/internal/httpapi"
	"github.com/flashsale/core/internal/logger"
	"github.com/flashsale/core/internal/redisx"
	"github.com/flashsale/core/internal/sale"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		// No logger exists yet; this is a startup configuration failure.
		println("config | failed to load configuration: " + err.Error())
		os.Exit(1)
	}

	log := logger.Init(cfg.LogLevel)
	log.Info("config | config initialized",
		"sale_start", cfg.SaleStart, "sale_end", cfg.SaleEnd, "total_stock", cfg.TotalStock)

	pool, err := redisx.NewPool(ctx, cfg.RedisURL, "")
	if err != nil {
		log.Error("redis | failed to connect to atomic store", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var auditSink *audit.Sink
	store, err := audit.NewStore(cfg.Postgres.DSN())
	if err != nil {
		log.Warn("postgres | audit trail unavailable at startup, continuing without it", "error", err)
	} else {
		defer store.Close()
		if err := store.CreateSchema(); err != nil {
			log.Error("postgres | failed to create audit schema", "error", err)
			os.Exit(1)
		}
		if err := store.RecordSaleRun(cfg.ProductName, cfg.TotalStock, cfg.SaleStart, cfg.SaleEnd); err != nil {
			log.Warn("postgres | failed to record sale run", "error", err)
		}
		auditSink = audit.NewSink(store, 100000)
	}

	coordinator := sale.New(pool, sale.Config{
		TotalStock:   cfg.TotalStock,
		Window:       sale.Window{Start: cfg.SaleStart, End: cfg.SaleEnd},
		ProductName:  cfg.ProductName,
		ProductPrice: cfg.ProductPrice,
	}, auditAdapter{auditSink})

	if err := coordinator.Initialize(); err != nil {
		log.Error("sale | failed to initialize stock counter", "error", err)
		os.Exit(1)
	}

	wg := sync.WaitGroup{}
	if auditSink != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			workerCtx := context.WithValue(ctx, logger.SourceKey, "audit_worker")
			auditSink.Run(workerCtx)
		}()
	}

	pingAS := func() error {
		conn := pool.Get()
		defer conn.Close()
		_, err := conn.Do("PING")
		return err
	}
	var pingAudit httpapi.Pinger
	if store != nil {
		pingAudit = store.Ping
	}

	handler := httpapi.NewHandler(coordinator, pingAS, pingAudit)
	router := httpapi.NewRouter(handler, httpapi.RouterConfig{
		CORSOrigin:      cfg.CORSOrigin,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
		RequestTimeout:  10 * time.Second,
		ExposeReset:     false,
	})

	server := &http.Server{
		Addr:           cfg.Host + ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	idleConnsClosed := make(chan struct{})
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigint
		log.Info("server | shutting down")

		shutdownComplete := make(chan struct{})
		go func() {
			cancel()
			wg.Wait()
			log.Info("server | workers finished")

			if err := server.Shutdown(context.Background()); err != nil {
				log.Error("server | could not shutdown cleanly", "error", err)
			}
			log.Info("server | HTTP server shutdown completed")
			close(shutdownComplete)
		}()

		select {
		case <-shutdownComplete:
			log.Info("server | graceful shutdown completed")
		case <-time.After(30 * time.Second):
			log.Warn("server | graceful shutdown timed out (30 seconds)")
		}

		close(idleConnsClosed)
	}()

	go func() {
		log.Info("server | running", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server | could not listen", "addr", server.Addr, "error", err)
			sigint <- syscall.SIGTERM
		}
	}()

	<-idleConnsClosed
	log.Info("server | server stopped")
}

// auditAdapter adapts a possibly-nil *audit.Sink to sale.AuditSink, so main
// can wire a nil sink when Postgres is unavailable at startup without the
// Coordinator needing to know about it.
type auditAdapter struct {
	sink *audit.Sink
}

func (a auditAdapter) RecordAttempt(userID string, result sale.Result, at time.Time) {
	if a.sink == nil {
		return
	}
	a.sink.RecordAttempt(userID, result, at)
}
