package config

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Relayer roles. Only the collector performs minting and unlock fan-out.
const (
	RoleCollector = "collector"
	RoleWatcher   = "watcher"
	RoleVerifier  = "verifier"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	CKB        CKBConfig        `mapstructure:"ckb"`
	Relayer    RelayerConfig    `mapstructure:"relayer"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"gt=0"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" default:"15s"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" default:"60s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" default:"30s"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`

	MaxOpenConns    int           `mapstructure:"max_open_conns" default:"10"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" default:"30m"`
}

// CKBConfig contains CKB node, indexer and committee key settings
type CKBConfig struct {
	RPCURL     string `mapstructure:"rpc_url" validate:"required,url"`
	IndexerURL string `mapstructure:"indexer_url" validate:"required,url"`

	// Either PrivateKey or EncryptedPrivateKey with MasterKey (base64) must be set.
	PrivateKey          string `mapstructure:"private_key"`
	EncryptedPrivateKey string `mapstructure:"encrypted_private_key"`
	MasterKey           string `mapstructure:"master_key"`

	ConfirmNumber uint64     `mapstructure:"confirm_number"`
	Fee           uint64     `mapstructure:"fee" default:"100000"`
	AddressPrefix string     `mapstructure:"address_prefix" default:"ckt" validate:"oneof=ckb ckt"`
	Deps          DepsConfig `mapstructure:"deps"`
}

// DepsConfig lists the deployed scripts the relayer builds against
type DepsConfig struct {
	Secp256k1     ScriptDepConfig `mapstructure:"secp256k1"`
	SudtType      ScriptDepConfig `mapstructure:"sudt_type"`
	RecipientType ScriptDepConfig `mapstructure:"recipient_type"`
	BridgeLock    ScriptDepConfig `mapstructure:"bridge_lock"`
}

// ScriptDepConfig locates a deployed script
type ScriptDepConfig struct {
	CodeHash string `mapstructure:"code_hash" validate:"required"`
	HashType string `mapstructure:"hash_type" default:"data" validate:"oneof=data type data1 data2"`
	TxHash   string `mapstructure:"tx_hash"`
	Index    uint   `mapstructure:"index"`
	DepType  string `mapstructure:"dep_type" default:"code" validate:"oneof=code dep_group"`
}

// RelayerConfig contains loop pacing and batch settings
type RelayerConfig struct {
	Role string `mapstructure:"role" default:"watcher" validate:"oneof=collector watcher verifier"`

	BlockPollInterval     time.Duration `mapstructure:"block_poll_interval" default:"5s"`
	RetryBackoff          time.Duration `mapstructure:"retry_backoff" default:"3s"`
	MintPollInterval      time.Duration `mapstructure:"mint_poll_interval" default:"3s"`
	FinalityPollInterval  time.Duration `mapstructure:"finality_poll_interval" default:"1s"`
	IndexerSyncInterval   time.Duration `mapstructure:"indexer_sync_interval" default:"1s"`
	ReadinessInterval     time.Duration `mapstructure:"readiness_interval" default:"10s"`
	MintTimeoutIterations int           `mapstructure:"mint_timeout_iterations" default:"200" validate:"gt=0"`
	CustodyTimeoutIters   int           `mapstructure:"custody_timeout_iterations" default:"60" validate:"gt=0"`
	MintBatchSize         int           `mapstructure:"mint_batch_size" default:"100" validate:"gt=0"`
}

// IsCollector reports whether this process owns the side effects.
func (r RelayerConfig) IsCollector() bool {
	return r.Role == RoleCollector
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := defaults.Set(&config); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")

	// confirm_number is defaulted here so an explicit 0 survives defaults.Set
	v.SetDefault("ckb.confirm_number", 15)

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(config); err != nil {
		return err
	}
	if config.CKB.PrivateKey == "" && config.CKB.EncryptedPrivateKey == "" {
		return fmt.Errorf("ckb.private_key or ckb.encrypted_private_key is required")
	}
	if config.CKB.EncryptedPrivateKey != "" && config.CKB.MasterKey == "" {
		return fmt.Errorf("ckb.master_key is required with ckb.encrypted_private_key")
	}
	return nil
}
