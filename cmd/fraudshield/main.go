package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fraudshield/internal/config"
	"fraudshield/internal/logx"
	"fraudshield/internal/notify"
	"fraudshield/internal/otelobs"
	"fraudshield/internal/server"
	"fraudshield/internal/store"
	"fraudshield/pkg/analyzers"
)

func main() {
	logx.Infof("starting fraudshield bootstrap")
	cfg := config.Load()

	shutdownTracer := otelobs.InitTracer("fraudshield", cfg.OTLPEndpoint)
	defer func() { _ = shutdownTracer(context.Background()) }()

	pcfg := analyzers.DefaultPipelineConfig()
	pcfg.FraudThreshold = cfg.FraudThreshold
	if cfg.NodeTimeout > 0 {
		pcfg.NodeTimeout = cfg.NodeTimeout
	}
	orch, err := analyzers.NewPipeline(pcfg)
	if err != nil {
		log.Fatalf("pipeline construction failed: %v", err)
	}

	srv := server.New(orch).WithAPISecret(cfg.APISecret)

	bus := notify.NewBus(1024)
	defer bus.Close()
	bus.Register(alertLogger{})
	srv.WithBus(bus)

	if cfg.RedisAddr != "" {
		ms := store.NewRedisModelStore(store.RedisConfig{Addr: cfg.RedisAddr})
		if err := ms.Ping(context.Background()); err != nil {
			log.Fatalf("redis unreachable at %s: %v", cfg.RedisAddr, err)
		}
		defer ms.Close()
		srv.WithModelStore(ms)
		logx.Infof("model store: redis at %s", cfg.RedisAddr)
	} else {
		srv.WithModelStore(store.NewMemoryModelStore())
		logx.Infof("model store: in-memory")
	}

	if cfg.PostgresDSN != "" {
		audit, err := store.NewAuditStore(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("audit store init failed: %v", err)
		}
		defer audit.Close()
		srv.WithAuditStore(audit)
		logx.Infof("audit store: postgres enabled")
	}

	srv.RestoreModels(context.Background())

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logx.Infof("fraudshield listening on :%d", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("fraudshield stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logx.Infof("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logx.Errorf("shutdown error: %v", err)
	}
}

// alertLogger logs fraud alerts; external sinks register alongside it.
type alertLogger struct{}

func (alertLogger) Topics() []string { return []string{notify.TopicFraudAlert} }

func (alertLogger) Handle(_ context.Context, evt notify.Event) {
	alert, ok := evt.Payload.(notify.Alert)
	if !ok {
		return
	}
	logx.Warnf("fraud alert: txn=%s analysis=%s level=%s score=%.3f",
		alert.TransactionID, alert.AnalysisID, alert.RiskLevel, alert.FraudScore)
}
