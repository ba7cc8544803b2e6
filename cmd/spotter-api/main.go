package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/spotter-app/backend/internal/auth"
	"github.com/spotter-app/backend/internal/comments"
	"github.com/spotter-app/backend/internal/config"
	"github.com/spotter-app/backend/internal/database"
	"github.com/spotter-app/backend/internal/logging"
	"github.com/spotter-app/backend/internal/media"
	"github.com/spotter-app/backend/internal/posts"
	"github.com/spotter-app/backend/internal/ranking"
	"github.com/spotter-app/backend/internal/server"
	"github.com/spotter-app/backend/internal/storage"
	"github.com/spotter-app/backend/internal/users"
	"github.com/spotter-app/backend/internal/workouts"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "spotter-api",
		Short: "Spotter fitness-social backend service",
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
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite or postgres)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Database DSN")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session token signing secret (overrides env)")
	cmd.PersistentFlags().String("storage-bucket", defaults.GetString("storage.bucket"), "Object storage bucket")
	cmd.PersistentFlags().String("storage-endpoint", defaults.GetString("storage.endpoint"), "Object storage S3 endpoint")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "storage.bucket", "storage-bucket")
	bindFlag(cmd, "storage.endpoint", "storage-endpoint")
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

	db, err := database.Open(appConfig.DatabaseDriver, appConfig.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.AuthSigningKey),
		Issuer:        "spotter-auth",
		Audience:      "spotter-api",
		TokenTTL:      appConfig.TokenTTL,
	})

	var objectStore media.ObjectStore
	if appConfig.StorageConfigured() {
		client, err := storage.NewClient(ctx, storage.ClientConfig{
			Bucket:          appConfig.StorageBucket,
			Endpoint:        appConfig.StorageEndpoint,
			AccessKeyID:     appConfig.StorageAccessKeyID,
			SecretAccessKey: appConfig.StorageSecretAccessKey,
			Logger:          logger,
		})
		if err != nil {
			return err
		}
		objectStore = client
	} else {
		logger.Warn("object storage not configured, media uploads disabled")
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Hasher:   auth.NewPasswordHasher(),
		Tokens:   tokenIssuer,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	workoutsService, err := workouts.NewService(workouts.ServiceConfig{
		Database: db,
		Store:    objectStore,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	commentsService, err := comments.NewService(comments.ServiceConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	rankingService, err := ranking.NewService(ranking.ServiceConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	postsService, err := posts.NewService(posts.ServiceConfig{
		Database: db,
		Store:    objectStore,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	mediaService, err := media.NewService(media.ServiceConfig{
		Database: db,
		Store:    objectStore,
		Tokens:   tokenIssuer,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:    tokenIssuer,
		UsersService:    usersService,
		WorkoutsService: workoutsService,
		CommentsService: commentsService,
		RankingService:  rankingService,
		PostsService:    postsService,
		MediaService:    mediaService,
		Logger:          logger,
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
