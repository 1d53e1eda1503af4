package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	defaultMaxPlayersPerRoom   = 8
	defaultRoundDuration       = 60 * time.Second
	defaultHostGrace           = 10 * time.Second
	defaultScoreReportInterval = 2 * time.Second
	defaultRoomTTL             = 2 * time.Hour
)

type Config struct {
	Port        string
	BindAddress string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	RedisHost   string
	RedisPort   string
	JWTSecret   string
	LogLevel    string
	LogPretty   bool
	// Empty means any origin.
	AllowedOrigins []string
	ArchiveEnabled bool

	// Room synchronization knobs shared by gateway and racer.
	MaxPlayersPerRoom   int
	RoundDuration       time.Duration
	HostGrace           time.Duration
	ScoreReportInterval time.Duration
	RoomTTL             time.Duration

	// Racer (client) settings.
	DocStore       string // redis, gateway or memory
	GatewayURL     string
	ProgressDBPath string
	DisplayName    string
}

// Load reads a .env file when one exists and builds the configuration from the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not read .env file")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		BindAddress: getEnv("BIND_ADDRESS", "localhost"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "coinrush"),
		DBPassword:  getEnv("DB_PASSWORD", "coinrush123"),
		DBName:      getEnv("DB_NAME", "coinrush"),
		RedisHost:   getEnv("REDIS_HOST", "localhost"),
		RedisPort:   getEnv("REDIS_PORT", "6379"),
		JWTSecret:   getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   getBool("LOG_PRETTY", true),

		AllowedOrigins: getList("ALLOWED_ORIGINS"),
		ArchiveEnabled: getBool("ARCHIVE_ENABLED", true),

		MaxPlayersPerRoom:   getInt("MAX_PLAYERS_PER_ROOM", defaultMaxPlayersPerRoom),
		RoundDuration:       getDuration("ROUND_DURATION", defaultRoundDuration),
		HostGrace:           getDuration("HOST_GRACE", defaultHostGrace),
		ScoreReportInterval: getDuration("SCORE_REPORT_INTERVAL", defaultScoreReportInterval),
		RoomTTL:             getDuration("ROOM_TTL", defaultRoomTTL),

		DocStore:       strings.ToLower(getEnv("DOC_STORE", "redis")),
		GatewayURL:     strings.TrimRight(getEnv("GATEWAY_URL", "http://localhost:8080"), "/"),
		ProgressDBPath: getEnv("PROGRESS_DB", "data/progress.db"),
		DisplayName:    getEnv("DISPLAY_NAME", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.Warn().Str("key", key).Str("value", raw).Msg("invalid integer, using default")
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

// getDuration accepts Go duration strings ("90s") or a bare number of seconds.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Warn().Str("key", key).Str("value", raw).Msg("invalid duration, using default")
		return defaultValue
	}
	return d
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

func InitRedis(cfg *Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	return client
}
