package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/xela07ax/spaceai-roles-modifier/internal/audit"
	"github.com/xela07ax/spaceai-roles-modifier/internal/connectors"
	"github.com/xela07ax/spaceai-roles-modifier/internal/engine"
	"github.com/xela07ax/spaceai-roles-modifier/internal/infra"
	"github.com/xela07ax/spaceai-roles-modifier/internal/infra/auth"
	"github.com/xela07ax/spaceai-roles-modifier/internal/policy"
	"github.com/xela07ax/spaceai-roles-modifier/internal/repository/postgres"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Инфраструктура и ресурсы
	repo, err := postgres.NewRepo(appCtx, cfg.Database)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}
	defer repo.Close()
	if cfg.Database.AutoMigrate {
		if err := repo.Migrate(); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()

	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("public key", zap.Error(err))
	}
	validator := auth.NewBaseValidator(pubKey)

	// 2. Policy Decision Point: холодная загрузка ролей в память
	pdp := policy.NewMemoEnforcer(repo, logger)
	if err := pdp.Refresh(appCtx); err != nil {
		logger.Fatal("initial role load failed", zap.Error(err))
	}
	go engine.NewConfigListener(rdb, pdp, logger).Start(appCtx)

	// 3. Control Plane (Менеджеры управления)
	ksm := engine.NewKillSwitchManager(rdb, repo, logger)
	if err := ksm.Init(appCtx); err != nil {
		logger.Fatal("failed to init kill-switch manager", zap.Error(err))
	}
	go ksm.StartListener(appCtx)

	sm := engine.NewSimulationManager(rdb, repo, logger)
	if err := sm.Init(appCtx); err != nil {
		logger.Fatal("failed to init simulation manager", zap.Error(err))
	}
	go sm.StartListener(appCtx)

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	// 4. Аудит решений: пачками в Postgres
	journal := audit.NewJournal(repo, logger, cfg.Engine.AuditBufferSize, cfg.Engine.AuditFlushInterval)
	journal.Start()
	go metrics.WatchAuditBuffer(appCtx, journal, 5*time.Second)

	// 5. Execution Layer (Исполнение + Надежность)
	var avatar engine.ExecutionProvider
	if cfg.Avatar.Addr == "" {
		logger.Warn("avatar.addr is empty, using in-memory avatar")
		avatar = connectors.NewMemoryAvatar()
	} else {
		conn, err := grpc.NewClient(cfg.Avatar.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			logger.Fatal("failed to connect to avatar", zap.Error(err))
		}
		defer conn.Close()
		avatar = connectors.NewGRPCAdapter(conn, cfg.Avatar.Timeout)
	}
	safeExecutor := engine.NewReliabilityWrapper(avatar, cfg.Engine, metrics, logger)

	// 6. Core
	core := engine.NewModifierCore(pdp, journal, safeExecutor, ksm, sm, metrics, logger)

	// 7. HTTP Server. Порядок: Trace -> Auth -> KillSwitch -> Simulation
	protected := engine.TracingMiddleware(
		engine.AuthMiddleware(validator, logger)(
			ksm.Middleware(
				sm.Middleware(
					http.HandlerFunc(core.HandleExec),
				),
			),
		),
	)
	mux := http.NewServeMux()
	mux.Handle("/v1/exec", protected)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := repo.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	metricsSrv := &http.Server{
		Addr:    cfg.Server.MetricsAddr,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	// gRPC сервер шлюза
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(engine.UnaryAuthInterceptor(validator)))
	engine.RegisterModifierServer(grpcSrv, engine.NewGRPCGatewayServer(core))
	go func() {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr())
		if err != nil {
			logger.Fatal("failed to listen gRPC", zap.Error(err))
		}
		logger.Info("gRPC server started", zap.String("addr", cfg.Server.GRPCAddr()))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("roles modifier started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// 8. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("roles modifier stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	cancel()
	// Дописываем хвост журнала после остановки входящего трафика
	journal.Stop()
	logger.Info("roles modifier exited properly")
}
