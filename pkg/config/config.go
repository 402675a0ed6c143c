package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	GinMode     string
	FrontendURL string

	LogLevel  string
	LogFormat string

	DatabaseDriver string
	DatabaseURL    string

	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string

	GoogleProjectID        string
	GooglePubSubTopic      string
	GoogleCredentials      string
	FirebaseCredentials    string
	GmailRequestsPerSecond float64

	Sync SyncConfig
}

// SyncConfig bounds a single sync run.
type SyncConfig struct {
	DefaultMaxResults int
	MaxResultsCap     int
	MaxHistoryPages   int
	FetchConcurrency  int
	Interval          time.Duration
	RunTimeout        time.Duration
}

// New returns a viper instance preloaded with .env values, environment bindings and defaults.
// Callers may bind CLI flags onto it before calling FromViper.
func New() *viper.Viper {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=postmark port=5432 sslmode=disable")
	v.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	v.SetDefault("JWT_ACCESS_EXPIRY", 15*time.Minute)
	v.SetDefault("JWT_REFRESH_EXPIRY", 168*time.Hour)
	v.SetDefault("GOOGLE_REDIRECT_URI", "http://localhost:8080/api/accounts/google/callback")
	v.SetDefault("GOOGLE_PUBSUB_TOPIC", "gmail-updates")
	v.SetDefault("GMAIL_REQUESTS_PER_SECOND", 10.0)
	v.SetDefault("SYNC_DEFAULT_MAX_RESULTS", 25)
	v.SetDefault("SYNC_MAX_RESULTS_CAP", 50)
	v.SetDefault("SYNC_MAX_HISTORY_PAGES", 20)
	v.SetDefault("SYNC_FETCH_CONCURRENCY", 4)
	v.SetDefault("SYNC_INTERVAL", time.Duration(0))
	v.SetDefault("SYNC_RUN_TIMEOUT", 2*time.Minute)
	return v
}

func Load() *Config {
	return FromViper(New())
}

func FromViper(v *viper.Viper) *Config {
	return &Config{
		Port:                   v.GetString("PORT"),
		GinMode:                v.GetString("GIN_MODE"),
		FrontendURL:            v.GetString("FRONTEND_URL"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		LogFormat:              v.GetString("LOG_FORMAT"),
		DatabaseDriver:         v.GetString("DB_DRIVER"),
		DatabaseURL:            v.GetString("DATABASE_URL"),
		JWTSecret:              v.GetString("JWT_SECRET"),
		JWTAccessExpiry:        v.GetDuration("JWT_ACCESS_EXPIRY"),
		JWTRefreshExpiry:       v.GetDuration("JWT_REFRESH_EXPIRY"),
		GoogleClientID:         v.GetString("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:     v.GetString("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURI:      v.GetString("GOOGLE_REDIRECT_URI"),
		GoogleProjectID:        v.GetString("GOOGLE_PROJECT_ID"),
		GooglePubSubTopic:      v.GetString("GOOGLE_PUBSUB_TOPIC"),
		GoogleCredentials:      v.GetString("GOOGLE_CREDENTIALS_FILE"),
		FirebaseCredentials:    v.GetString("FIREBASE_CREDENTIALS_FILE"),
		GmailRequestsPerSecond: v.GetFloat64("GMAIL_REQUESTS_PER_SECOND"),
		Sync: SyncConfig{
			DefaultMaxResults: v.GetInt("SYNC_DEFAULT_MAX_RESULTS"),
			MaxResultsCap:     v.GetInt("SYNC_MAX_RESULTS_CAP"),
			MaxHistoryPages:   v.GetInt("SYNC_MAX_HISTORY_PAGES"),
			FetchConcurrency:  v.GetInt("SYNC_FETCH_CONCURRENCY"),
			Interval:          v.GetDuration("SYNC_INTERVAL"),
			RunTimeout:        v.GetDuration("SYNC_RUN_TIMEOUT"),
		},
	}
}

// PubSubTopicName strips a "projects/<p>/topics/" prefix if one was configured.
func (c *Config) PubSubTopicName() string {
	topic := c.GooglePubSubTopic
	if parts := strings.Split(topic, "/"); len(parts) > 1 {
		topic = parts[len(parts)-1]
	}
	if topic == "" {
		topic = "gmail-updates"
	}
	return topic
}

// PubSubTopicPath is the fully qualified topic used by Gmail watch requests.
func (c *Config) PubSubTopicPath() string {
	if strings.HasPrefix(c.GooglePubSubTopic, "projects/") {
		return c.GooglePubSubTopic
	}
	return "projects/" + c.GoogleProjectID + "/topics/" + c.PubSubTopicName()
}
