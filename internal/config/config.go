// Package config loads the responder's configuration, grounded on the
// teacher's internal/config (viper, defaults-then-file-then-env) but
// narrowed to the keys spec.md §6 names plus the beacon/echo tuning
// keys SPEC_FULL.md §10.3 adds.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the process-wide responder configuration.
type Config struct {
	LoraBackend string `mapstructure:"lora_backend"`
	SerialPort  string `mapstructure:"serial_port"`

	SPIBus     string `mapstructure:"spi_bus"`
	SPISpeedHz int    `mapstructure:"spi_speed_hz"`
	ResetPin   int    `mapstructure:"reset_pin"`
	CSPin      int    `mapstructure:"cs_pin"`
	DIO0Pin    int    `mapstructure:"dio0_pin"`

	FrequencyHz     uint32 `mapstructure:"frequency_hz"`
	SpreadingFactor int    `mapstructure:"spreading_factor"`
	BandwidthHz     int    `mapstructure:"bandwidth_hz"`
	CodingRate      int    `mapstructure:"coding_rate"`
	TxPowerDbm      int    `mapstructure:"tx_power_dbm"`
	SyncWord        int    `mapstructure:"sync_word"`

	Beacon BeaconConfig `mapstructure:"beacon"`
	Echo   EchoConfig   `mapstructure:"echo"`

	Logger    LoggerConfig    `mapstructure:"logger"`
	EventLog  EventLogConfig  `mapstructure:"event_log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Offload   OffloadConfig   `mapstructure:"offload"`
	Status    StatusConfig    `mapstructure:"status"`
}

type BeaconConfig struct {
	Message    string `mapstructure:"message"`
	IntervalMs int    `mapstructure:"interval_ms"`
}

type EchoConfig struct {
	Prefix  string `mapstructure:"prefix"`
	DelayMs int    `mapstructure:"delay_ms"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	LogDir string `mapstructure:"log_dir"`
}

type EventLogConfig struct {
	Path string `mapstructure:"path"`
}

type TelemetryConfig struct {
	RedisEnabled  bool   `mapstructure:"redis_enabled"`
	RedisHost     string `mapstructure:"redis_host"`
	RedisPort     int    `mapstructure:"redis_port"`
	RedisChannel  string `mapstructure:"redis_channel"`
	InfluxEnabled bool   `mapstructure:"influx_enabled"`
	InfluxURL     string `mapstructure:"influx_url"`
	InfluxToken   string `mapstructure:"influx_token"`
	InfluxOrg     string `mapstructure:"influx_org"`
	InfluxBucket  string `mapstructure:"influx_bucket"`
}

type OffloadConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	RemoteDir string `mapstructure:"remote_dir"`
	CronExpr  string `mapstructure:"cron_expr"`
}

type StatusConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Addr       string `mapstructure:"addr"`
	AuthToken  string `mapstructure:"auth_token"`
	JWTSecret  string `mapstructure:"jwt_secret"`
	JWTIssuer  string `mapstructure:"jwt_issuer"`
}

// Load reads configuration from file and environment variables, in the
// teacher's defaults-then-file-then-env order. configPath may be empty,
// in which case config.yaml is searched for in ./configs and ".".
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath(getConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config: %w", err)
		}
	}

	v.SetEnvPrefix("RESPONDER")
	v.AutomaticEnv()

	// lora_backend has its own unprefixed override per spec.md §6.
	if backend := os.Getenv("LORA_BACKEND"); backend != "" {
		v.Set("lora_backend", backend)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("lora_backend", "rn2903")
	v.SetDefault("serial_port", "/dev/ttyACM0")

	v.SetDefault("spi_bus", "spidev0.0")
	v.SetDefault("spi_speed_hz", 8_000_000)
	v.SetDefault("reset_pin", 17)
	v.SetDefault("cs_pin", 25)
	v.SetDefault("dio0_pin", 4)

	v.SetDefault("frequency_hz", 915_000_000)
	v.SetDefault("spreading_factor", 7)
	v.SetDefault("bandwidth_hz", 125_000)
	v.SetDefault("coding_rate", 5)
	v.SetDefault("tx_power_dbm", 14)
	v.SetDefault("sync_word", 0x34)

	v.SetDefault("beacon.message", "BEACON")
	v.SetDefault("beacon.interval_ms", 5000)

	v.SetDefault("echo.prefix", "ECHO:")
	v.SetDefault("echo.delay_ms", 150)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.log_dir", "./logs")

	v.SetDefault("event_log.path", "./data/events.db")

	v.SetDefault("telemetry.redis_enabled", false)
	v.SetDefault("telemetry.redis_host", "localhost")
	v.SetDefault("telemetry.redis_port", 6379)
	v.SetDefault("telemetry.redis_channel", "responder:events")
	v.SetDefault("telemetry.influx_enabled", false)

	v.SetDefault("offload.enabled", false)
	v.SetDefault("offload.port", 21)
	v.SetDefault("offload.remote_dir", "/")

	v.SetDefault("status.enabled", false)
	v.SetDefault("status.addr", ":8080")
	v.SetDefault("status.jwt_issuer", "d2d-responder")
}

// WatchTunables hot-reloads the beacon message/interval and echo
// prefix/delay on config file change, per SPEC_FULL.md §10.3 — backend,
// pins, and radio parameters are excluded since they are bound to
// already-open hardware handles and require a process restart.
func WatchTunables(v *viper.Viper, onChange func(BeaconConfig, EchoConfig)) {
	v.OnConfigChange(func(_ fsnotify.Event) {
		var beacon BeaconConfig
		var echo EchoConfig
		_ = v.UnmarshalKey("beacon", &beacon)
		_ = v.UnmarshalKey("echo", &echo)
		onChange(beacon, echo)
	})
	v.WatchConfig()
}

func getConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".d2d-responder")
}
