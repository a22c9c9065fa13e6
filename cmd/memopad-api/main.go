package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memopad-app/memopad-api/internal/auth"
	"github.com/memopad-app/memopad-api/internal/blob"
	"github.com/memopad-app/memopad-api/internal/config"
	"github.com/memopad-app/memopad-api/internal/database"
	"github.com/memopad-app/memopad-api/internal/ident"
	"github.com/memopad-app/memopad-api/internal/labels"
	"github.com/memopad-app/memopad-api/internal/logging"
	"github.com/memopad-app/memopad-api/internal/notes"
	"github.com/memopad-app/memopad-api/internal/server"
	"github.com/memopad-app/memopad-api/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "memopad-api",
		Short: "Memopad note-taking backend service",
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
	cmd.PersistentFlags().String("signing-secret", "", "Bearer token signing secret (overrides env)")
	cmd.PersistentFlags().String("upload-dir", defaults.GetString("upload.dir"), "Local image upload directory")
	cmd.PersistentFlags().String("upload-base-url", defaults.GetString("upload.base_url"), "Base URL for locally stored images")
	cmd.PersistentFlags().String("minio-endpoint", defaults.GetString("minio.endpoint"), "MinIO endpoint (uses object storage for images when set)")
	cmd.PersistentFlags().String("minio-bucket", defaults.GetString("minio.bucket"), "MinIO bucket for images")
	cmd.PersistentFlags().String("minio-public-url", defaults.GetString("minio.public_url"), "Public base URL of the MinIO deployment")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "upload.dir", "upload-dir")
	bindFlag(cmd, "upload.base_url", "upload-base-url")
	bindFlag(cmd, "minio.endpoint", "minio-endpoint")
	bindFlag(cmd, "minio.bucket", "minio-bucket")
	bindFlag(cmd, "minio.public_url", "minio-public-url")
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

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "memopad-auth",
		Audience:      "memopad-api",
	})

	idProvider := ident.NewUUIDProvider()

	blobStore, uploadDir, err := newBlobStore(appConfig, logger)
	if err != nil {
		return err
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Database: db,
		IDs:      idProvider,
		Tokens:   tokenIssuer,
		Hasher:   auth.NewPasswordHasher(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	labelsService, err := labels.NewService(labels.ServiceConfig{
		Database: db,
		IDs:      idProvider,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	notesService, err := notes.NewService(notes.ServiceConfig{
		Database: db,
		IDs:      idProvider,
		Blobs:    blobStore,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Users:     usersService,
		Labels:    labelsService,
		Notes:     notesService,
		Logger:    logger,
		UploadDir: uploadDir,
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

// newBlobStore selects MinIO when an endpoint is configured and the local
// file store otherwise. The second return value is the directory the router
// should serve, empty when object storage is in use.
func newBlobStore(appConfig config.AppConfig, logger *zap.Logger) (blob.Store, string, error) {
	if appConfig.MinioEndpoint != "" {
		store, err := blob.NewMinioStore(blob.MinioConfig{
			Endpoint:  appConfig.MinioEndpoint,
			AccessKey: appConfig.MinioAccessKey,
			SecretKey: appConfig.MinioSecretKey,
			Bucket:    appConfig.MinioBucket,
			PublicURL: appConfig.MinioPublicURL,
			UseSSL:    appConfig.MinioUseSSL,
		})
		if err != nil {
			return nil, "", err
		}
		logger.Info("image storage using minio", zap.String("endpoint", appConfig.MinioEndpoint))
		return store, "", nil
	}

	store, err := blob.NewFileStore(appConfig.UploadDir, appConfig.UploadBaseURL, nil)
	if err != nil {
		return nil, "", err
	}
	logger.Info("image storage using local directory", zap.String("dir", appConfig.UploadDir))
	return store, appConfig.UploadDir, nil
}
