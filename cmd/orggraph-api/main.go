package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OrgGraphLabs/orggraph/backend/internal/auth"
	"github.com/OrgGraphLabs/orggraph/backend/internal/config"
	"github.com/OrgGraphLabs/orggraph/backend/internal/database"
	"github.com/OrgGraphLabs/orggraph/backend/internal/graph"
	"github.com/OrgGraphLabs/orggraph/backend/internal/groups"
	"github.com/OrgGraphLabs/orggraph/backend/internal/logging"
	"github.com/OrgGraphLabs/orggraph/backend/internal/memberships"
	"github.com/OrgGraphLabs/orggraph/backend/internal/reports"
	"github.com/OrgGraphLabs/orggraph/backend/internal/server"
	"github.com/OrgGraphLabs/orggraph/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "orggraph-api",
		Short: "Organizational directory and membership graph service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")
	cmd.PersistentFlags().String("client-secret", "", "Client secret accepted at /auth/token (overrides env)")
	cmd.PersistentFlags().Bool("seed", defaults.GetBool("seed.sample_data"), "Seed the sample hierarchy on startup")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.client_secret", "client-secret")
	bindFlag(cmd, "seed.sample_data", "seed")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if appConfig.SeedSampleData {
		if err := database.SeedSampleData(ctx, db, logger); err != nil {
			return err
		}
	}

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.AuthSigningSecret),
		ClientSecret:  []byte(appConfig.AuthClientSecret),
		Issuer:        appConfig.AuthIssuer,
		Audience:      appConfig.AuthAudience,
	})
	if err != nil {
		return err
	}

	resolver, err := graph.NewResolver(graph.Config{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	groupService, err := groups.NewService(groups.ServiceConfig{Database: db, Resolver: resolver, Logger: logger})
	if err != nil {
		return err
	}
	membershipService, err := memberships.NewService(memberships.ServiceConfig{Database: db, Resolver: resolver, Logger: logger})
	if err != nil {
		return err
	}
	reportService, err := reports.NewService(reports.ServiceConfig{
		Database:   db,
		Resolver:   resolver,
		IDProvider: reports.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:      tokenManager,
		UserService:       userService,
		GroupService:      groupService,
		MembershipService: membershipService,
		ReportService:     reportService,
		Resolver:          resolver,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
