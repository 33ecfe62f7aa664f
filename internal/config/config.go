// Package config loads the daemon configuration from defaults, an optional
// config file and AMRFLOW_-prefixed environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults applied when neither the config file nor the environment sets a
// value.
const (
	DefaultListenAddr              = "127.0.0.1:8080"
	DefaultJWTAlgorithm            = "HS256"
	DefaultAccessTokenExpireMins   = 60
	DefaultExportWorkerPollSeconds = 2
)

// Settings is the resolved daemon configuration.
type Settings struct {
	// DatabasePath is the SQLite database file.
	DatabasePath string `mapstructure:"database_path"`

	// ListenAddr is the HTTP listen address.
	ListenAddr string `mapstructure:"listen_addr"`

	// SecretKey signs access tokens. Required.
	SecretKey string `mapstructure:"secret_key"`

	// JWTAlgorithm is the token signing algorithm.
	JWTAlgorithm string `mapstructure:"jwt_algorithm"`

	// AccessTokenExpireMinutes is the token lifetime.
	AccessTokenExpireMinutes int `mapstructure:"access_token_expire_minutes"`

	// AllowedOrigins is the CORS origin allow-list.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// CORSAllowCredentials toggles credentialed CORS requests.
	CORSAllowCredentials bool `mapstructure:"cors_allow_credentials"`

	// ExportDir is where export files are materialized.
	ExportDir string `mapstructure:"export_dir"`

	// ExportWorkerPollSeconds is the idle poll interval of the export
	// worker.
	ExportWorkerPollSeconds int `mapstructure:"export_worker_poll_seconds"`
}

// TokenTTL returns the access token lifetime as a duration.
func (s *Settings) TokenTTL() time.Duration {
	return time.Duration(s.AccessTokenExpireMinutes) * time.Minute
}

// WorkerPollInterval returns the export worker poll interval as a duration.
func (s *Settings) WorkerPollInterval() time.Duration {
	return time.Duration(s.ExportWorkerPollSeconds) * time.Second
}

// DefaultDir returns the default application directory, ~/.amrflow.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".amrflow"
	}
	return filepath.Join(home, ".amrflow")
}

// Load resolves the settings. When configFile is empty, amrflow.yaml inside
// the default directory is used if present.
func Load(configFile string) (*Settings, error) {
	v := viper.New()

	appDir := DefaultDir()
	v.SetDefault("database_path", filepath.Join(appDir, "amrflow.db"))
	v.SetDefault("listen_addr", DefaultListenAddr)
	v.SetDefault("jwt_algorithm", DefaultJWTAlgorithm)
	v.SetDefault("access_token_expire_minutes",
		DefaultAccessTokenExpireMins)
	v.SetDefault("allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("cors_allow_credentials", true)
	v.SetDefault("export_dir", filepath.Join(appDir, "exports"))
	v.SetDefault("export_worker_poll_seconds",
		DefaultExportWorkerPollSeconds)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("amrflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(appDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("amrflow")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine; an explicitly named
		// one must exist.
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("unable to read config "+
				"file: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("unable to parse config: %w", err)
	}

	if settings.SecretKey == "" {
		return nil, fmt.Errorf("secret_key must be set (config file " +
			"or AMRFLOW_SECRET_KEY)")
	}

	return &settings, nil
}
