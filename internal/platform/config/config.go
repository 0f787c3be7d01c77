package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort string
	JWTKey  []byte
	JWTExp  time.Duration

	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string
	SQLitePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CacheDriver            string
	ResultsCacheTTLSeconds int
	BuildLockTTLSeconds    int

	CloseQueueName      string
	CloseLockKeyPrefix  string
	CloseLockTTLSeconds int

	CarryOverMaxDepth int
}

var AppConfig *Config

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = &Config{
		APIPort:                getEnv("API_PORT", "8080"),
		JWTKey:                 []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:                 time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		DBDriver:               getEnv("DB_DRIVER", "pgx"),
		DBHost:                 getEnv("DB_HOST", "localhost"),
		DBPort:                 getEnv("DB_PORT", "5432"),
		DBUser:                 getEnv("DB_USER", "user"),
		DBPassword:             getEnv("DB_PASSWORD", "password"),
		DBName:                 getEnv("DB_NAME", "seminar_standings"),
		DBSslMode:              getEnv("DB_SSLMODE", "disable"),
		SQLitePath:             getEnv("SQLITE_PATH", "standings.db"),
		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		RedisDB:                getEnvAsInt("REDIS_DB", 0),
		CacheDriver:            getEnv("CACHE_DRIVER", "redis"),
		ResultsCacheTTLSeconds: getEnvAsInt("RESULTS_CACHE_TTL_SECONDS", 300),
		BuildLockTTLSeconds:    getEnvAsInt("BUILD_LOCK_TTL_SECONDS", 30),
		CloseQueueName:         getEnv("CLOSE_QUEUE_NAME", "round_close_queue"),
		CloseLockKeyPrefix:     getEnv("CLOSE_LOCK_KEY_PREFIX", "round_close_lock"),
		CloseLockTTLSeconds:    getEnvAsInt("CLOSE_LOCK_TTL_SECONDS", 300),
		CarryOverMaxDepth:      getEnvAsInt("CARRY_OVER_MAX_DEPTH", 32),
	}

	switch AppConfig.DBDriver {
	case "sqlite":
		AppConfig.DBConnStr = "file:" + AppConfig.SQLitePath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	default:
		AppConfig.DBConnStr = "host=" + AppConfig.DBHost +
			" port=" + AppConfig.DBPort +
			" user=" + AppConfig.DBUser +
			" password=" + AppConfig.DBPassword +
			" dbname=" + AppConfig.DBName +
			" sslmode=" + AppConfig.DBSslMode
	}
}

func (c *Config) ResultsCacheTTL() time.Duration {
	return time.Duration(c.ResultsCacheTTLSeconds) * time.Second
}

func (c *Config) BuildLockTTL() time.Duration {
	return time.Duration(c.BuildLockTTLSeconds) * time.Second
}

func (c *Config) CloseLockTTL() time.Duration {
	return time.Duration(c.CloseLockTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
