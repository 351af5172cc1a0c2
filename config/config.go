package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Fallback   FallbackConfig   `mapstructure:"fallback"`
	Log        LogConfig        `mapstructure:"log"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Redis      RedisConfig      `mapstructure:"redis"`
	HTTP       HTTPConfig       `mapstructure:"http"`
}

type MarketDataConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	WS   WSConfig   `mapstructure:"ws"`
}

type RESTConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WSConfig struct {
	URL              string        `mapstructure:"url"`
	Topics           []string      `mapstructure:"topics"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
}

// EngineConfig holds the synchronization engine constants.
type EngineConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	ThrottleInterval time.Duration `mapstructure:"throttle_interval"`
	FetchStagger     time.Duration `mapstructure:"fetch_stagger"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	MaxConcurrent    int           `mapstructure:"max_concurrent"`
	MaxRetries       int           `mapstructure:"max_retries"`
	ReconnectDelay   time.Duration `mapstructure:"reconnect_delay"`
	StalenessCeiling time.Duration `mapstructure:"staleness_ceiling"`
	BufferCapacity   int           `mapstructure:"buffer_capacity"`
	SignalSymbols    int           `mapstructure:"signal_symbols"`
	SeedCandles      int           `mapstructure:"seed_candles"`
	SMAWindows       []int         `mapstructure:"sma_windows"`
	DisplaySymbol    string        `mapstructure:"display_symbol"`
	DisplayTimeframe string        `mapstructure:"display_timeframe"`
	RealtimeOnStart  bool          `mapstructure:"realtime_on_start"`
}

type FallbackConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	BaselinesFile string  `mapstructure:"baselines_file"` // optional override of the embedded table
	MaxDrift      float64 `mapstructure:"max_drift"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// ArchiveConfig selects where accepted price records are archived.
// Driver is one of "", "postgres" or "sqlite"; empty disables the archive.
type ArchiveConfig struct {
	Driver     string         `mapstructure:"driver"`
	SQLitePath string         `mapstructure:"sqlite_path"`
	CreateDB   bool           `mapstructure:"create_db"`
	Retention  time.Duration  `mapstructure:"retention"`
	QueueSize  int            `mapstructure:"queue_size"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
}

type RedisConfig struct {
	Addr      string        `mapstructure:"addr"` // empty disables the mirror
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeepTicks int64         `mapstructure:"keep_ticks"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the read API
}

// Load loads application configuration using Viper.
// It reads config.yaml from path (or the default config directory when path is empty)
// and overrides with environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // config.yaml
		v.SetConfigType("yaml")
		ex, _ := os.Executable()
		if strings.Contains(ex, "go-build") {
			pwd, _ := os.Getwd()
			v.AddConfigPath(filepath.Join(pwd, "../../config"))
		} else {
			v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
		}
		v.AddConfigPath("config")
	}

	// Support environment variables with dot notation (e.g., ENGINE_MAX_RETRIES)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks the values the engine cannot run without.
func (c *Config) Validate() error {
	if c.MarketData.REST.BaseURL == "" {
		return fmt.Errorf("market_data.rest.base_url is required")
	}
	if c.MarketData.WS.URL != "" &&
		!strings.HasPrefix(c.MarketData.WS.URL, "ws://") && !strings.HasPrefix(c.MarketData.WS.URL, "wss://") {
		return fmt.Errorf("invalid push channel url: %s", c.MarketData.WS.URL)
	}
	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("engine.poll_interval must be positive")
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must not be negative")
	}
	if c.Engine.BufferCapacity <= 0 {
		return fmt.Errorf("engine.buffer_capacity must be positive")
	}
	switch c.Archive.Driver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported archive driver: %s", c.Archive.Driver)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("market_data.rest.timeout", 5*time.Second)
	v.SetDefault("market_data.ws.handshake_timeout", 10*time.Second)
	v.SetDefault("market_data.ws.read_timeout", 60*time.Second)
	v.SetDefault("market_data.ws.ping_interval", 30*time.Second)

	v.SetDefault("engine.poll_interval", time.Second)
	v.SetDefault("engine.throttle_interval", time.Second)
	v.SetDefault("engine.fetch_stagger", 50*time.Millisecond)
	v.SetDefault("engine.fetch_timeout", 5*time.Second)
	v.SetDefault("engine.max_concurrent", 8)
	v.SetDefault("engine.max_retries", 5)
	v.SetDefault("engine.reconnect_delay", 3*time.Second)
	v.SetDefault("engine.staleness_ceiling", 30*time.Second)
	v.SetDefault("engine.buffer_capacity", 100)
	v.SetDefault("engine.signal_symbols", 5)
	v.SetDefault("engine.seed_candles", 100)
	v.SetDefault("engine.sma_windows", []int{20})
	v.SetDefault("engine.display_timeframe", "1h")

	v.SetDefault("fallback.enabled", true)
	v.SetDefault("fallback.max_drift", 0.02)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("archive.queue_size", 1024)
	v.SetDefault("archive.retention", 7*24*time.Hour)

	v.SetDefault("redis.ttl", 2*time.Minute)
	v.SetDefault("redis.keep_ticks", 500)
}
