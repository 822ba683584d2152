// shared/config/config.go
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/Ftotnem/POINTS-LEDGER/shared/errors"
)

// CommonConfig holds configuration fields that are shared across services.
type CommonConfig struct {
	Environment       string        // "development" or "production"
	LogLevel          string        // logrus level name (e.g., "info", "debug")
	RedisAddrs        []string      // Redis server addresses; more than one selects cluster mode
	RedisPassword     string        // Redis password for authentication
	HeartbeatInterval time.Duration // How often to send a heartbeat to the registry (e.g., 5s)
	HeartbeatTTL      time.Duration // How long an instance is considered alive without a heartbeat (e.g., 15s)
	ServiceIP         string        // The IP address this service advertises for registration
	ServicePort       int           // The port this service listens on, used for registration
}

// LedgerServiceConfig holds configuration specific to the ledger-service.
type LedgerServiceConfig struct {
	CommonConfig
	ListenAddr                    string
	MongoDBConnStr                string
	MongoDBDatabase               string
	MongoDBTeamsCollection        string
	MongoDBTransactionsCollection string
	MongoDBAdminsCollection       string
	MongoDBTransactionsEnabled    bool // false selects the compensating writer for standalone mongod
	IdentityAPIKey                string
	IdentityBaseURL               string
	SessionTTL                    time.Duration
	LeaderboardCacheTTL           time.Duration
	ReconcileInterval             time.Duration // 0 disables the periodic reconciler
	ReconcileRepair               bool
	DefaultTeams                  []string
	SignInRatePerSecond           float64
	SignInBurst                   int
	RetryMaxElapsed               time.Duration // upper bound for retrying transient store failures
	RequestTimeout                time.Duration
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("ledger")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	return v
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func loadCommon(v *viper.Viper) (CommonConfig, error) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REDIS_ADDRS", "localhost:6379")
	v.SetDefault("POD_IP", "0.0.0.0")

	cfg := CommonConfig{
		Environment:   v.GetString("APP_ENV"),
		LogLevel:      v.GetString("LOG_LEVEL"),
		RedisAddrs:    splitList(v.GetString("REDIS_ADDRS")),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		ServiceIP:     v.GetString("POD_IP"),
	}

	var err error
	cfg.HeartbeatInterval, err = getDuration(v, "SERVICE_HEARTBEAT_INTERVAL", 5*time.Second)
	if err != nil {
		return cfg, err
	}
	cfg.HeartbeatTTL, err = getDuration(v, "SERVICE_HEARTBEAT_TTL", 15*time.Second)
	if err != nil {
		return cfg, err
	}
	if len(cfg.RedisAddrs) == 0 {
		return cfg, fmt.Errorf("REDIS_ADDRS must list at least one address")
	}
	return cfg, nil
}

// LoadLedgerServiceConfig loads configuration for the ledger-service.
func LoadLedgerServiceConfig() (*LedgerServiceConfig, error) {
	v := newViper()
	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	common, err := loadCommon(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load common config for ledger-service: %w", err)
	}

	v.SetDefault("LEDGER_SERVICE_LISTEN_ADDR", ":8083")
	v.SetDefault("MONGODB_CONN_STR", "mongodb://localhost:27017")
	v.SetDefault("MONGODB_DATABASE", "points_ledger")
	v.SetDefault("MONGODB_TEAMS_COLLECTION", "teams")
	v.SetDefault("MONGODB_TRANSACTIONS_COLLECTION", "transactions")
	v.SetDefault("MONGODB_ADMINS_COLLECTION", "admins")
	v.SetDefault("MONGODB_TRANSACTIONS_ENABLED", true)
	v.SetDefault("IDENTITY_BASE_URL", "https://identitytoolkit.googleapis.com")
	v.SetDefault("LEDGER_RECONCILE_REPAIR", false)
	v.SetDefault("SIGNIN_RATE_PER_SECOND", 1.0)
	v.SetDefault("SIGNIN_BURST", 5)

	cfg := &LedgerServiceConfig{
		CommonConfig:                  common,
		ListenAddr:                    v.GetString("LEDGER_SERVICE_LISTEN_ADDR"),
		MongoDBConnStr:                v.GetString("MONGODB_CONN_STR"),
		MongoDBDatabase:               v.GetString("MONGODB_DATABASE"),
		MongoDBTeamsCollection:        v.GetString("MONGODB_TEAMS_COLLECTION"),
		MongoDBTransactionsCollection: v.GetString("MONGODB_TRANSACTIONS_COLLECTION"),
		MongoDBAdminsCollection:       v.GetString("MONGODB_ADMINS_COLLECTION"),
		MongoDBTransactionsEnabled:    v.GetBool("MONGODB_TRANSACTIONS_ENABLED"),
		IdentityAPIKey:                v.GetString("IDENTITY_API_KEY"),
		IdentityBaseURL:               strings.TrimRight(v.GetString("IDENTITY_BASE_URL"), "/"),
		ReconcileRepair:               v.GetBool("LEDGER_RECONCILE_REPAIR"),
		DefaultTeams:                  splitList(v.GetString("LEDGER_DEFAULT_TEAMS")),
		SignInRatePerSecond:           v.GetFloat64("SIGNIN_RATE_PER_SECOND"),
		SignInBurst:                   v.GetInt("SIGNIN_BURST"),
	}

	durations := []struct {
		key    string
		target *time.Duration
		def    time.Duration
	}{
		{"SESSION_TTL", &cfg.SessionTTL, 12 * time.Hour},
		{"LEADERBOARD_CACHE_TTL", &cfg.LeaderboardCacheTTL, 30 * time.Second},
		{"LEDGER_RECONCILE_INTERVAL", &cfg.ReconcileInterval, 5 * time.Minute},
		{"RETRY_MAX_ELAPSED", &cfg.RetryMaxElapsed, 5 * time.Second},
		{"REQUEST_TIMEOUT", &cfg.RequestTimeout, 5 * time.Second},
	}
	for _, d := range durations {
		if *d.target, err = getDuration(v, d.key, d.def); err != nil {
			return nil, err
		}
	}

	cfg.ServicePort, err = extractPort(cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to extract port from LEDGER_SERVICE_LISTEN_ADDR '%s': %w", cfg.ListenAddr, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *LedgerServiceConfig) validate() error {
	if c.IsProduction() && c.IdentityAPIKey == "" {
		return apperrors.NewConfigurationError("IDENTITY_API_KEY must be set in production")
	}
	if c.SessionTTL <= 0 {
		return apperrors.NewConfigurationError(fmt.Sprintf("SESSION_TTL must be positive (got %s)", c.SessionTTL))
	}
	if c.SignInRatePerSecond <= 0 || c.SignInBurst <= 0 {
		return apperrors.NewConfigurationError("SIGNIN_RATE_PER_SECOND and SIGNIN_BURST must be positive")
	}
	if c.ReconcileInterval < 0 {
		return apperrors.NewConfigurationError("LEDGER_RECONCILE_INTERVAL must not be negative")
	}
	// Compensating writes leave a window where points are moved but the transaction is not
	// yet visible; a repair pass in that window would undo a valid adjustment.
	if c.ReconcileRepair && !c.MongoDBTransactionsEnabled {
		return apperrors.NewConfigurationError("LEDGER_RECONCILE_REPAIR requires MONGODB_TRANSACTIONS_ENABLED")
	}
	return nil
}

// IsProduction returns true if the environment is production
func (c *CommonConfig) IsProduction() bool {
	return c.Environment == "production"
}

// getDuration parses a duration key, falling back to defaultVal when unset.
func getDuration(v *viper.Viper, key string, defaultVal time.Duration) (time.Duration, error) {
	valStr := strings.TrimSpace(v.GetString(key))
	if valStr == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(valStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format for %s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// extractPort extracts the numeric port from a listen address (e.g., ":8083" -> 8083, "0.0.0.0:8083" -> 8083)
func extractPort(listenAddr string) (int, error) {
	_, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		if strings.HasPrefix(listenAddr, ":") {
			portStr = strings.TrimPrefix(listenAddr, ":")
		} else {
			return 0, fmt.Errorf("invalid ListenAddr format for port extraction: %w", err)
		}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port number '%s': %w", portStr, err)
	}
	return port, nil
}
