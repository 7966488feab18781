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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/spaceai-roles-modifier/internal/console/handler"
	"github.com/xela07ax/spaceai-roles-modifier/internal/console/server"
	"github.com/xela07ax/spaceai-roles-modifier/internal/console/service"
	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
	"github.com/xela07ax/spaceai-roles-modifier/internal/infra"
	"github.com/xela07ax/spaceai-roles-modifier/internal/infra/auth"
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

	// 1. Инициализация ресурсов
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	repo, err := postgres.NewRepo(ctx, cfg.Database)
	cancel()
	if err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	defer repo.Close()
	if cfg.Database.AutoMigrate {
		if err := repo.Migrate(); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
	}
	if err := bootstrapAdmin(repo, cfg.Auth); err != nil {
		logger.Fatal("admin bootstrap failed", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()

	privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("private key", zap.Error(err))
	}
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("public key", zap.Error(err))
	}

	// 2. Инициализация слоев (Dependency Injection)
	notifier := service.NewRedisNotifier(rdb)
	srv := server.NewConsoleServer(
		logger,
		auth.NewBaseValidator(pubKey),
		handler.NewAuthHandler(service.NewAuthService(repo, auth.NewIssuer(privKey), cfg.Auth.TokenTTL)),
		handler.NewRoleHandler(service.NewRoleService(repo, notifier, logger)),
		handler.NewInvokerHandler(service.NewInvokerService(repo, notifier, logger)),
		handler.NewAuditHandler(service.NewAuditService(repo)),
	)

	// 3. Запуск сервера
	httpSrv := &http.Server{
		Addr:         cfg.Server.ConsoleAddr(),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info("console API started", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("console shutdown failed", zap.Error(err))
	}
}

// bootstrapAdmin создает администратора консоли из конфига, если он задан.
func bootstrapAdmin(repo *postgres.Repo, cfg infra.AuthConfig) error {
	if cfg.AdminUser == "" || cfg.AdminPassword == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), cfg.BcryptCost)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return repo.EnsureUser(ctx, domain.User{
		Email:        cfg.AdminUser + "@localhost",
		Username:     cfg.AdminUser,
		PasswordHash: string(hash),
		Role:         "admin",
		Scopes:       map[string]bool{domain.ScopeRolesAdmin: true},
	})
}
