package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/patrickwarner/admediation/internal/adsource"
	"github.com/patrickwarner/admediation/internal/models"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string
	Environment  string
	// Backing stores. An empty address disables the component.
	RedisAddr           string
	ClickHouseDSN       string
	PostgresDSN         string
	SourcesFromPostgres bool
	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	CHMaxOpenConns    int
	// Mediation configuration
	Priority      []models.NetworkID
	AdMob         models.SourceConfig
	UnityAds      models.SourceConfig
	TimeScale     float64
	Seed          int64
	LoadOnStartup bool
	// Reward ledger configuration
	RewardDailyTTL time.Duration
	// Per-user show rate limiting
	ShowRateLimitEnabled  bool
	ShowRateLimitCapacity int
	ShowRateLimitRefill   float64
	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8787")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 10*time.Second)
	cfg.ServiceName = getenv("SERVICE_NAME", "admediation")
	cfg.Environment = getenv("ENV", "production")

	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.ClickHouseDSN = os.Getenv("CLICKHOUSE_DSN")
	cfg.PostgresDSN = os.Getenv("POSTGRES_DSN")
	cfg.SourcesFromPostgres = envBool("SOURCES_FROM_POSTGRES", false)

	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 10)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 2)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)
	// Event inserts are async, so ClickHouse gets a larger pool than Postgres
	cfg.CHMaxOpenConns = envInt("CH_MAX_OPEN_CONNS", 25)

	cfg.Priority = envNetworks("MEDIATION_PRIORITY", []models.NetworkID{models.NetworkAdMob, models.NetworkUnityAds})
	cfg.AdMob = sourceFromEnv("ADMOB", adsource.DefaultAdMobConfig())
	cfg.UnityAds = sourceFromEnv("UNITYADS", adsource.DefaultUnityAdsConfig())
	cfg.TimeScale = envFloat("TIME_SCALE", 1.0)
	cfg.Seed = int64(envInt("SIMULATION_SEED", int(time.Now().UnixNano()%1_000_000)))
	cfg.LoadOnStartup = envBool("LOAD_ON_STARTUP", true)

	cfg.RewardDailyTTL = envDuration("REWARD_DAILY_TTL", 24*time.Hour)

	cfg.ShowRateLimitEnabled = envBool("SHOW_RATE_LIMIT_ENABLED", true)
	cfg.ShowRateLimitCapacity = envInt("SHOW_RATE_LIMIT_CAPACITY", 5)
	cfg.ShowRateLimitRefill = envFloat("SHOW_RATE_LIMIT_REFILL", 0.1)

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// Sources returns the enabled source configurations in priority order.
// Networks listed in Priority come first in the listed order; the Priority
// field of each returned config is its position.
func (c Config) Sources() []models.SourceConfig {
	byNetwork := map[models.NetworkID]models.SourceConfig{
		models.NetworkAdMob:    c.AdMob,
		models.NetworkUnityAds: c.UnityAds,
	}
	var out []models.SourceConfig
	for _, n := range c.Priority {
		sc, ok := byNetwork[n]
		if !ok || !sc.Enabled {
			continue
		}
		delete(byNetwork, n)
		sc.Priority = len(out)
		out = append(out, sc)
	}
	return out
}

// sourceFromEnv overlays <PREFIX>_* variables onto def.
func sourceFromEnv(prefix string, def models.SourceConfig) models.SourceConfig {
	sc := def
	sc.AdUnitID = getenv(prefix+"_AD_UNIT_ID", def.AdUnitID)
	sc.RewardAmount = envInt(prefix+"_REWARD_AMOUNT", def.RewardAmount)
	sc.LoadDelay = envDuration(prefix+"_LOAD_DELAY", def.LoadDelay)
	sc.ShowDuration = envDuration(prefix+"_SHOW_DURATION", def.ShowDuration)
	sc.ReloadDelay = envDuration(prefix+"_RELOAD_DELAY", def.ReloadDelay)
	sc.PreloadAfterShow = envBool(prefix+"_PRELOAD_AFTER_SHOW", def.PreloadAfterShow)
	sc.FillRate = envFloat(prefix+"_FILL_RATE", def.FillRate)
	sc.CompletionRate = envFloat(prefix+"_COMPLETION_RATE", def.CompletionRate)
	sc.Enabled = envBool(prefix+"_ENABLED", def.Enabled)
	return sc
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}

// envNetworks parses a comma-separated list of network names. Empty entries
// are dropped; an empty result yields def.
func envNetworks(key string, def []models.NetworkID) []models.NetworkID {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []models.NetworkID
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, models.ParseNetworkID(part))
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
