package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string
	HTTPPort     string
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string

	WarehouseTopic string

	GeminiAPIKey   string
	GeminiModel    string
	GeminiEndpoint string

	SessionSigningKey string
	SessionIssuer     string

	DistrictsGeoJSONPath string
	DistrictNameProperty string
	BadWordsPath         string
	Judges               []string
	PetitionPurpose      string

	ReconcileSchedule   string
	ReconcileBatchCap   int
	ReconcileGroupDelay time.Duration

	EnableScheduledReconciliation bool
	EnableWarehouseSync           bool

	LogLevel  string
	LogFormat string
}

// Load reads the process environment. A .env file in the working directory is
// applied first when present; real environment variables win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	cfg := Config{
		ServiceName:  envString("SERVICE_NAME", "petitionhub"),
		HTTPPort:     envString("HTTP_PORT", "8080"),
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		RedisAddr:    strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		KafkaBrokers: envList("KAFKA_BROKERS", nil),

		WarehouseTopic: envString("WAREHOUSE_TOPIC", "petitions.warehouse"),

		GeminiAPIKey:   strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:    envString("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiEndpoint: strings.TrimSpace(os.Getenv("GEMINI_ENDPOINT")),

		SessionSigningKey: os.Getenv("SESSION_SIGNING_KEY"),
		SessionIssuer:     strings.TrimSpace(os.Getenv("SESSION_ISSUER")),

		DistrictsGeoJSONPath: strings.TrimSpace(os.Getenv("DISTRICTS_GEOJSON_PATH")),
		DistrictNameProperty: envString("DISTRICT_NAME_PROPERTY", "SIG_KOR_NM"),
		BadWordsPath:         strings.TrimSpace(os.Getenv("BADWORDS_PATH")),
		Judges:               envList("PETITION_JUDGES", nil),
		PetitionPurpose:      strings.TrimSpace(os.Getenv("PETITION_PURPOSE")),

		ReconcileSchedule:   envString("RECONCILE_SCHEDULE", "@every 10m"),
		ReconcileBatchCap:   envInt("RECONCILE_BATCH_CAP", 100),
		ReconcileGroupDelay: envDuration("RECONCILE_GROUP_DELAY", 4*time.Second),

		EnableScheduledReconciliation: envBool("ENABLE_SCHEDULED_RECONCILIATION", false),
		EnableWarehouseSync:           envBool("ENABLE_WAREHOUSE_SYNC", false),

		LogLevel:  envString("LOG_LEVEL", "info"),
		LogFormat: envString("LOG_FORMAT", "json"),
	}
	if cfg.ReconcileBatchCap <= 0 {
		return Config{}, errors.New("RECONCILE_BATCH_CAP must be positive")
	}
	if cfg.EnableWarehouseSync && len(cfg.KafkaBrokers) == 0 {
		return Config{}, errors.New("KAFKA_BROKERS is required when ENABLE_WAREHOUSE_SYNC is set")
	}
	return cfg, nil
}

func envString(name string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func envList(name string, fallback []string) []string {
	var values []string
	for _, value := range strings.Split(os.Getenv(name), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			values = append(values, value)
		}
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}
