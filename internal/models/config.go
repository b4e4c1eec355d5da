package models

import "time"

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Settlement SettlementConfig
	Gateway    GatewayConfig
	Redis      RedisConfig
	Formance   FormanceConfig
	Scheduler  SchedulerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	AdminToken   string
}

// SettlementConfig holds business-calendar and seed file settings
type SettlementConfig struct {
	Timezone     string
	SettingsFile string
	PlansFile    string
}

// GatewayConfig holds PIX gateway credentials
type GatewayConfig struct {
	BaseURL     string
	PublicKey   string
	SecretKey   string
	CallbackURL string
	Timeout     time.Duration
	Mock        bool
}

// RedisConfig holds the sweep lock connection; an empty Addr disables locking
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// FormanceConfig holds the optional ledger mirror connection
type FormanceConfig struct {
	Enabled      bool
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// SchedulerConfig drives the in-process sweep loop; a zero Interval leaves sweeps to an external scheduler
type SchedulerConfig struct {
	Interval        time.Duration
	CleanupInterval time.Duration
}
