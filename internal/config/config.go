package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreBackendPostgres = "postgres"
	StoreBackendSQLite   = "sqlite"
	StoreBackendMemory   = "memory"
)

// Lifecycle write modes.
const (
	WriteModeMerge      = "merge"
	WriteModeOptimistic = "optimistic"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Store        StoreConfig
	Postgres     PostgresConfig
	SQLite       SQLiteConfig
	Redis        RedisConfig
	MQTT         MQTTConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Policy       PolicyConfig
	Lifecycle    LifecycleConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// StoreConfig selects the ticket store backend.
type StoreConfig struct {
	Backend string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
	ConnectRetries int
}

// SQLiteConfig holds the embedded database location.
type SQLiteConfig struct {
	Path string
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	CacheTTLSeconds int
	EventsChannel   string
}

// MQTTConfig configures the optional event fan-out broker.
type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
}

// LoggerConfig configures logging behavior.
// Format is "json" or "console".
type LoggerConfig struct {
	Level   string
	Format  string
	Service string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	APIKeys               []APIKeyConfig
}

// APIKeyConfig describes a service credential for automation callers.
type APIKeyConfig struct {
	ID   string
	Role string
	Hash string
}

// PolicyConfig lists the roles allowed per operation. An empty escalate or
// close list means any authenticated actor; edit, assign and delete must name
// at least one role. File, when set, overrides the lists.
type PolicyConfig struct {
	File          string
	EditRoles     []string
	AssignRoles   []string
	DeleteRoles   []string
	EscalateRoles []string
	CloseRoles    []string
}

// LifecycleConfig tunes how the engine writes tickets back.
type LifecycleConfig struct {
	WriteMode        string
	MaxWriteAttempts int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom       string
	EscalationEmail string
	WebhookURL      string
}

var defaultManagementRoles = "admin,director,sr_operations_manager,operations_manager,pod"

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	apiKeys, err := parseAPIKeys(os.Getenv("AUTH_API_KEYS"))
	if err != nil {
		return nil, err
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "followup-ticket-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(getEnv("STORE_BACKEND", StoreBackendSQLite)),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
			ConnectRetries: getEnvAsInt("POSTGRES_CONNECT_RETRIES", 5),
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "./data/followup.db"),
		},
		Redis: RedisConfig{
			Addr:            os.Getenv("REDIS_ADDR"),
			Password:        os.Getenv("REDIS_PASSWORD"),
			DB:              redisDB,
			CacheTTLSeconds: getEnvAsInt("REDIS_CACHE_TTL_SECONDS", 60),
			EventsChannel:   getEnv("REDIS_EVENTS_CHANNEL", "followup:ticket-events"),
		},
		MQTT: MQTTConfig{
			BrokerURL:   os.Getenv("MQTT_BROKER"),
			ClientID:    getEnv("MQTT_CLIENT_ID", "followup-ticket-service"),
			TopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "followup/tickets"),
		},
		Logger: LoggerConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Format:  strings.ToLower(getEnv("LOG_FORMAT", "json")),
			Service: getEnv("APP_NAME", "followup-ticket-service"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			APIKeys:               apiKeys,
		},
		Policy: PolicyConfig{
			File:          os.Getenv("POLICY_FILE"),
			EditRoles:     getEnvAsList("POLICY_EDIT_ROLES", defaultManagementRoles),
			AssignRoles:   getEnvAsList("POLICY_ASSIGN_ROLES", defaultManagementRoles),
			DeleteRoles:   getEnvAsList("POLICY_DELETE_ROLES", "admin"),
			EscalateRoles: getEnvAsList("POLICY_ESCALATE_ROLES", ""),
			CloseRoles:    getEnvAsList("POLICY_CLOSE_ROLES", ""),
		},
		Lifecycle: LifecycleConfig{
			WriteMode:        strings.ToLower(getEnv("LIFECYCLE_WRITE_MODE", WriteModeMerge)),
			MaxWriteAttempts: getEnvAsInt("LIFECYCLE_MAX_WRITE_ATTEMPTS", 3),
		},
		Notification: NotificationConfig{
			EmailFrom:       getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			EscalationEmail: os.Getenv("NOTIFY_ESCALATION_EMAIL"),
			WebhookURL:      getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case StoreBackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("STORE_BACKEND=postgres requires POSTGRES_DSN")
		}
	case StoreBackendSQLite, StoreBackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	switch c.Lifecycle.WriteMode {
	case WriteModeMerge, WriteModeOptimistic:
	default:
		return fmt.Errorf("unknown LIFECYCLE_WRITE_MODE %q", c.Lifecycle.WriteMode)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// CacheTTL returns how long ticket snapshots stay cached.
func (r RedisConfig) CacheTTL() time.Duration {
	if r.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(r.CacheTTLSeconds) * time.Second
}

// parseAPIKeys reads "id:role:bcrypt-hash" entries separated by ';'.
func parseAPIKeys(raw string) ([]APIKeyConfig, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var keys []APIKeyConfig
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("invalid AUTH_API_KEYS entry %q", entry)
		}
		keys = append(keys, APIKeyConfig{ID: parts[0], Role: parts[1], Hash: parts[2]})
	}
	return keys, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key, fallback string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		val = fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
