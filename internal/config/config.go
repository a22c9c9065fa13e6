package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "MEMOPAD"
	defaultHTTPAddress   = "0.0.0.0:8888"
	defaultDatabasePath  = "memopad.db"
	defaultLogLevel      = "info"
	defaultUploadDir     = "uploads"
	defaultUploadBaseURL = "http://localhost:8888"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	LogLevel      string
	SigningSecret string

	// Local upload directory and the absolute base URL under which stored
	// images are addressed.
	UploadDir     string
	UploadBaseURL string

	// MinIO settings; the object store is used instead of the local upload
	// directory when Endpoint is set.
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioPublicURL string
	MinioUseSSL    bool
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("upload.dir", defaultUploadDir)
	configViper.SetDefault("upload.base_url", defaultUploadBaseURL)
	configViper.SetDefault("minio.bucket", "memopad")
	configViper.SetDefault("minio.use_ssl", false)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		UploadDir:      configViper.GetString("upload.dir"),
		UploadBaseURL:  configViper.GetString("upload.base_url"),
		MinioEndpoint:  configViper.GetString("minio.endpoint"),
		MinioAccessKey: configViper.GetString("minio.access_key"),
		MinioSecretKey: configViper.GetString("minio.secret_key"),
		MinioBucket:    configViper.GetString("minio.bucket"),
		MinioPublicURL: configViper.GetString("minio.public_url"),
		MinioUseSSL:    configViper.GetBool("minio.use_ssl"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.MinioEndpoint) != "" {
		if strings.TrimSpace(c.MinioAccessKey) == "" || strings.TrimSpace(c.MinioSecretKey) == "" {
			return fmt.Errorf("minio.access_key and minio.secret_key are required when minio.endpoint is set")
		}
		if strings.TrimSpace(c.MinioBucket) == "" {
			return fmt.Errorf("minio.bucket is required when minio.endpoint is set")
		}
		if strings.TrimSpace(c.MinioPublicURL) == "" {
			return fmt.Errorf("minio.public_url is required when minio.endpoint is set")
		}
		return nil
	}
	if strings.TrimSpace(c.UploadDir) == "" {
		return fmt.Errorf("upload.dir is required")
	}
	if strings.TrimSpace(c.UploadBaseURL) == "" {
		return fmt.Errorf("upload.base_url is required")
	}
	return nil
}
