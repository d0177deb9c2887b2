package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string
	LogJSON     bool

	MasterKey           string
	MasterKeyPassphrase string
	MasterKeySalt       string
	KDFIterations       int

	NonceTTLSeconds int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PolicyBundlePath string

	KeyValidityDays  int
	CertValidityDays int
	AuditRetainDays  int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:            addr,
		PostgresDSN:         os.Getenv("POSTGRES_DSN"),
		LogLevel:            envDefault("LOG_LEVEL", "info"),
		LogJSON:             envBoolDefault("LOG_JSON", false),
		MasterKey:           os.Getenv("MASTER_KEY"),
		MasterKeyPassphrase: os.Getenv("MASTER_KEY_PASSPHRASE"),
		MasterKeySalt:       os.Getenv("MASTER_KEY_SALT"),
		KDFIterations:       envIntDefault("KDF_ITERATIONS", 100000),
		NonceTTLSeconds:     envIntDefault("NONCE_TTL_SECONDS", 300),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             envIntDefault("REDIS_DB", 0),
		PolicyBundlePath:    os.Getenv("POLICY_BUNDLE_PATH"),
		KeyValidityDays:     envIntDefault("KEY_VALIDITY_DAYS", 365),
		CertValidityDays:    envIntDefault("CERT_VALIDITY_DAYS", 365),
		AuditRetainDays:     envIntDefault("AUDIT_RETAIN_DAYS", 90),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func (c Config) NonceTTL() time.Duration {
	if c.NonceTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.NonceTTLSeconds) * time.Second
}

func (c Config) KeyValidity() time.Duration {
	return time.Duration(c.KeyValidityDays) * 24 * time.Hour
}

func (c Config) CertValidity() time.Duration {
	return time.Duration(c.CertValidityDays) * 24 * time.Hour
}

func (c Config) AuditRetention() time.Duration {
	return time.Duration(c.AuditRetainDays) * 24 * time.Hour
}
