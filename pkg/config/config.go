package config

import "os"

type Config struct {
	Port            string
	Env             string
	PostgresConnStr string
	MongoURI        string
	RedisAddr       string
	RedisPassword   string
	JWTSecret       string
	LogFile         string
	LogLevel        string
}

func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		PostgresConnStr: getEnv("POSTGRES_CONN_STR", ""),
		MongoURI:        getEnv("MONGO_URI", ""),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		JWTSecret:       getEnv("JWT_SECRET", "supersecretjwtkey"),
		LogFile:         getEnv("LOG_FILE", "logs/knot.log"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
