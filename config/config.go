package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Client    ClientConfig    `mapstructure:"client"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Presence  PresenceConfig  `mapstructure:"presence"`
	Transport TransportConfig `mapstructure:"transport"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Security  SecurityConfig  `mapstructure:"security"`
}

type ClientConfig struct {
	Debug     bool   `mapstructure:"debug"`
	RemoteURL string `mapstructure:"remote_url"`
	// DeviceID identifies this installation in mutation records.
	// Generated on first run when empty.
	DeviceID string `mapstructure:"device_id"`
}

type SyncConfig struct {
	// AutoSyncInterval is how often a background sync is attempted
	// while online. Zero disables the ticker.
	AutoSyncInterval time.Duration `mapstructure:"auto_sync_interval"`
	ProbeInterval    time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

type PresenceConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	StalenessWindow   time.Duration `mapstructure:"staleness_window"`
}

type TransportConfig struct {
	// Mode selects the realtime backend: local | redis | ws.
	Mode          string `mapstructure:"mode"`
	WSURL         string `mapstructure:"ws_url"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	EventBuf      int    `mapstructure:"event_buf"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // memory | sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the WebSocket origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// DebugIPs restricts the debug endpoints. Empty allows any caller.
	DebugIPs []string `mapstructure:"debug_ips"`
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("client.debug", false)
	v.SetDefault("client.remote_url", "http://localhost:8080")
	v.SetDefault("sync.auto_sync_interval", "2m")
	v.SetDefault("sync.probe_interval", "15s")
	v.SetDefault("sync.probe_timeout", "3s")
	v.SetDefault("sync.request_timeout", "10s")
	v.SetDefault("presence.heartbeat_interval", "30s")
	v.SetDefault("presence.staleness_window", "60s")
	v.SetDefault("transport.mode", "ws")
	v.SetDefault("transport.event_buf", 256)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/fitroom.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("server.port", 8080)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
