package config

import (
	"encoding/base64"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDSN          string
	HTTPAddr       string
	LogLevel       string
	RedisDSN       string
	UseMemoryStore bool

	TargetAccounts  []string
	ScrapeHourUTC   int
	ScrapeMinuteUTC int

	SourceBaseURL   string
	SourceUsername  string
	SourcePassword  string
	SourceSessionID string
	SessionPath     string
	DisableSession  bool
	MaxRetries      uint64
	RequestInterval time.Duration

	ExportDir   string
	R2Endpoint  string
	R2Bucket    string
	R2Region    string
	R2PublicURL string

	// raw secrets kept in-memory only; never log these
	EncryptionKeyRaw string
	EncryptionKey    []byte // decoded from EncryptionKeyRaw
	AdminSecretKey   string
	CORSOrigins      []string
}

// Load reads configuration from the environment, after loading an optional
// .env file. A missing .env is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()
	return fromEnv()
}

func fromEnv() (Config, error) {
	cfg := Config{
		DBDSN:           os.Getenv("DB_DSN"),
		HTTPAddr:        getenvDefault("HTTP_ADDR", ":8080"),
		LogLevel:        getenvDefault("LOG_LEVEL", "info"),
		RedisDSN:        getenvDefault("REDIS_DSN", "redis://localhost:6379/0"),
		UseMemoryStore:  getenvBool("USE_MEMORY_STORE"),
		SourceBaseURL:   os.Getenv("SOURCE_BASE_URL"),
		SourceUsername:  os.Getenv("SOURCE_USERNAME"),
		SourcePassword:  os.Getenv("SOURCE_PASSWORD"),
		SourceSessionID: os.Getenv("SOURCE_SESSION_ID"),
		SessionPath:     getenvDefault("SESSION_PATH", "sessions/source_session.json"),
		DisableSession:  getenvBool("SOURCE_DISABLE_SESSION"),
		ExportDir:       getenvDefault("EXPORT_DIR", "exports"),
		R2Endpoint:      os.Getenv("R2_ENDPOINT"),
		R2Bucket:        os.Getenv("R2_BUCKET"),
		R2Region:        getenvDefault("R2_REGION", "auto"),
		R2PublicURL:     os.Getenv("R2_PUBLIC_URL"),
		AdminSecretKey:  os.Getenv("ADMIN_SECRET_KEY"),
	}

	cfg.TargetAccounts = splitList(os.Getenv("TARGET_ACCOUNTS"))
	cfg.ScrapeHourUTC = getenvInt("SCRAPE_HOUR_UTC", 3)
	cfg.ScrapeMinuteUTC = getenvInt("SCRAPE_MINUTE_UTC", 0)
	cfg.MaxRetries = uint64(getenvInt("MAX_RETRIES", 3))
	cfg.RequestInterval = getenvDuration("REQUEST_INTERVAL", 2*time.Second)

	if cfg.DBDSN == "" && !cfg.UseMemoryStore {
		return Config{}, errors.New("missing DB_DSN")
	}

	// decode encryption key (base64, must be 32 bytes)
	cfg.EncryptionKeyRaw = os.Getenv("ENCRYPTION_KEY")
	if cfg.EncryptionKeyRaw != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.EncryptionKeyRaw)
		if err != nil {
			return Config{}, errors.New("ENCRYPTION_KEY must be valid base64")
		}
		if len(key) != 32 {
			return Config{}, errors.New("ENCRYPTION_KEY must be 32 bytes (256 bits)")
		}
		cfg.EncryptionKey = key
	}

	corsOrigins := os.Getenv("CORS_ORIGINS")
	if corsOrigins != "" {
		cfg.CORSOrigins = splitList(corsOrigins)
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}

	return cfg, nil
}

// WithAccounts returns a copy of cfg tracking the given accounts. Callers
// rebuild their orchestrator from the new value; the shared config is never
// mutated in place.
func (c Config) WithAccounts(accounts []string) Config {
	c.TargetAccounts = append([]string(nil), accounts...)
	return c
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(k string) bool {
	v, _ := strconv.ParseBool(os.Getenv(k))
	return v
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
