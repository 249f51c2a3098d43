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
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	pg "github.com/panyam/passgate"
	pggrpc "github.com/panyam/passgate/grpc"
	"github.com/panyam/passgate/internal/config"
	"github.com/panyam/passgate/internal/logging"
	"github.com/panyam/passgate/oauth2"
	"github.com/panyam/passgate/stores"
	pggae "github.com/panyam/passgate/stores/gae"
	pggorm "github.com/panyam/passgate/stores/gorm"
)

func main() {
	if err := run(); err != nil {
		slog.Error("passgate exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	sessions, err := pg.NewSessionIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.SessionTTL)
	if err != nil {
		return err
	}
	policy, err := pg.ParseLinkPolicy(cfg.OAuth.LinkPolicy)
	if err != nil {
		return err
	}

	opts := pg.Options{
		Store:          store,
		Sessions:       sessions,
		EmailSender:    &pg.ConsoleEmailSender{Logger: logger},
		ResetBaseURL:   cfg.Auth.ResetBaseURL,
		LinkPolicy:     policy,
		OAuthTimeout:   cfg.OAuth.Timeout,
		TrustedOrigins: cfg.Server.TrustedOrigins,
		Logger:         logger,
	}
	if cfg.OAuth.Enabled() {
		opts.Google = &oauth2.GoogleConfig{
			ClientID:     cfg.OAuth.GoogleClientID,
			ClientSecret: cfg.OAuth.GoogleClientSecret,
			RedirectURL:  cfg.OAuth.GoogleRedirectURI,
			SuccessURL:   cfg.OAuth.SuccessURL,
			ErrorURL:     cfg.OAuth.ErrorURL,
			VerifyState:  cfg.OAuth.VerifyState,
		}
	} else {
		logger.Warn("GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set, Google sign-in disabled")
	}
	if cfg.RateLimit.RPS > 0 {
		opts.RateLimiter = pg.NewKeyedRateLimiterWithExpiry(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.IdleExpiry)
		opts.TrustProxyHeaders = cfg.RateLimit.TrustProxyHeaders
	}
	gate := pg.New(opts)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      gate.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errc := make(chan error, 2)
	go func() {
		logger.Info("passgate listening", "addr", srv.Addr, "store", cfg.Store.Kind, "google", opts.Google != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	var grpcServer *grpc.Server
	if cfg.Server.GRPCPort != "" {
		grpcServer, err = startGRPC(cfg.Server.GRPCPort, sessions, logger, errc)
		if err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errc:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	return srv.Shutdown(shutdownCtx)
}

// openStore builds the configured credential store and its cleanup func
func openStore(ctx context.Context, cfg config.StoreConfig) (pg.CredentialStore, func(), error) {
	switch cfg.Kind {
	case config.StorePostgres:
		db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := pggorm.AutoMigrate(db); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		return pggorm.NewCredentialStore(db), func() { sqlDB.Close() }, nil

	case config.StoreDatastore:
		client, err := datastore.NewClient(ctx, cfg.DatastoreProject)
		if err != nil {
			return nil, nil, fmt.Errorf("open datastore: %w", err)
		}
		return pggae.NewCredentialStore(client, cfg.DatastoreNamespace), func() { client.Close() }, nil

	default:
		return stores.NewFSCredentialStore(cfg.UsersFile), func() {}, nil
	}
}

// startGRPC serves the health service behind the session token interceptors
func startGRPC(port string, sessions *pg.SessionIssuer, logger *slog.Logger, errc chan<- error) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, fmt.Errorf("grpc listen: %w", err)
	}

	publicMethods := []string{healthpb.Health_Check_FullMethodName, healthpb.Health_Watch_FullMethodName}
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(pggrpc.UnaryAuthInterceptor(pggrpc.NewPublicMethodsConfig(sessions, publicMethods...))),
		grpc.ChainStreamInterceptor(pggrpc.StreamAuthInterceptor(pggrpc.NewPublicMethodsConfig(sessions, publicMethods...))),
	)
	healthpb.RegisterHealthServer(server, health.NewServer())

	go func() {
		logger.Info("grpc listening", "addr", lis.Addr().String())
		if err := server.Serve(lis); err != nil {
			errc <- err
		}
	}()
	return server, nil
}
