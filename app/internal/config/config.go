package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port     string
	LogLevel string

	// Storage
	DBDriver string
	DBPath   string
	MySQL    MySQLConfig

	// Status engine
	DisplayTZ   string
	MinDowntime time.Duration
	MinFPS      float64
	MinBitrate  float64
	FrameWidth  int
	FrameHeight int
	CacheTTL    time.Duration

	// Ingest
	EnableIngest  bool
	MQTT          MQTTConfig
	RetentionDays int
	PruneInterval time.Duration

	// Request handling
	APIRatePerMin  int
	TrustedProxies string
	FetchAttempts  int
	FetchBackoff   time.Duration
}

// MySQLConfig holds the connection settings of the central dashboard database
type MySQLConfig struct {
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// MQTTConfig holds broker settings for the ingest subscriber
type MQTTConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string
}

// Load reads configuration from .env and the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getenv("PORT", "4555"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		DBDriver:       strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:         getenv("DB_PATH", "./storewatch.db"),
		DisplayTZ:      getenv("DISPLAY_TZ", "Europe/London"),
		MinDowntime:    envDurSecs("MIN_DOWN_SECONDS", 1800),
		MinFPS:         envFloat("MIN_FPS", 25),
		MinBitrate:     envFloat("MIN_BITRATE", 400),
		FrameWidth:     envInt("FRAME_WIDTH", 640),
		FrameHeight:    envInt("FRAME_HEIGHT", 480),
		CacheTTL:       envDurSecs("CACHE_TTL_SECONDS", 30),
		EnableIngest:   envBool("ENABLE_INGEST", false),
		RetentionDays:  envInt("RETENTION_DAYS", 400),
		PruneInterval:  envDurSecs("PRUNE_INTERVAL_SECONDS", 3600),
		APIRatePerMin:  envInt("API_RATE_PER_MIN", 120),
		TrustedProxies: getenv("TRUSTED_PROXIES", ""),
		FetchAttempts:  envInt("FETCH_ATTEMPTS", 3),
		FetchBackoff:   time.Duration(envInt("FETCH_BACKOFF_MS", 100)) * time.Millisecond,
		MySQL: MySQLConfig{
			DSN:      getenv("MYSQL_DSN", ""),
			Host:     getenv("MYSQL_HOST", "127.0.0.1"),
			Port:     envInt("MYSQL_PORT", 3306),
			User:     getenv("MYSQL_USER", "root"),
			Password: getenv("MYSQL_PASS", ""),
			Database: getenv("MYSQL_DB", "dashboard"),
		},
		MQTT: MQTTConfig{
			Host:        getenv("MQTT_HOST", "localhost"),
			Port:        envInt("MQTT_PORT", 1883),
			Username:    getenv("MQTT_USERNAME", ""),
			Password:    getenv("MQTT_PASSWORD", ""),
			ClientID:    getenv("MQTT_CLIENT_ID", "storewatch"),
			TopicPrefix: getenv("MQTT_TOPIC_PREFIX", "storewatch/"),
		},
	}

	if !strings.HasSuffix(cfg.MQTT.TopicPrefix, "/") {
		cfg.MQTT.TopicPrefix += "/"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or mysql, got %q", c.DBDriver)
	}
	if c.MinDowntime < 0 {
		return fmt.Errorf("MIN_DOWN_SECONDS must not be negative")
	}
	if c.FetchAttempts < 1 {
		c.FetchAttempts = 1
	}
	if c.APIRatePerMin < 1 {
		return fmt.Errorf("API_RATE_PER_MIN must be positive")
	}
	return nil
}

// DSNString returns the MySQL connection string, built from the parts when MYSQL_DSN is unset
func (m MySQLConfig) DSNString() string {
	if m.DSN != "" {
		return m.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		m.User, m.Password, m.Host, m.Port, m.Database)
}

// BrokerURL returns the tcp URL of the MQTT broker
func (m MQTTConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", m.Host, m.Port)
}

// Helper functions
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(k string, def bool) bool {
	v := strings.ToLower(getenv(k, ""))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

func envDurSecs(k string, def int) time.Duration {
	return time.Duration(envInt(k, def)) * time.Second
}
