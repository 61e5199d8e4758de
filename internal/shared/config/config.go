package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	APIBase     string        `yaml:"apiBase"`
	Timeout     time.Duration `yaml:"timeout"`
	LogLevel    string        `yaml:"logLevel"`
	Env         string        `yaml:"env"`
	DatabaseURL string        `yaml:"databaseUrl"`

	ObjectStoreType string `yaml:"objectStore"`
	LocalStoreDir   string `yaml:"localStoreDir"`
	AWSRegion       string `yaml:"awsRegion"`
	S3Bucket        string `yaml:"s3Bucket"`
	S3Prefix        string `yaml:"s3Prefix"`
	SSEKMSKeyID     string `yaml:"sseKmsKeyId"`

	Minio MinioConfig `yaml:"minio"`

	QueueURL string `yaml:"queueUrl"`

	// Token is a pre-issued bearer token for non-interactive use (EXECAL_TOKEN).
	Token string `yaml:"token"`
	// Owner namespaces saved reports and ledger entries.
	Owner string `yaml:"owner"`

	Dev DevConfig `yaml:"dev"`
}

// MinioConfig configures the MinIO object store.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"useSSL"`
}

// DevConfig configures the local development backend.
type DevConfig struct {
	Port            string   `yaml:"port"`
	AltIDKey        bool     `yaml:"altIdKey"`
	CORSAllowOrigin []string `yaml:"corsAllowOrigins"`
	JWTSecret       string   `yaml:"jwtSecret"`
	UploadRate      float64  `yaml:"uploadRate"`
	UploadBurst     int      `yaml:"uploadBurst"`
	// MockTests fills in fixed indicators when nothing could be parsed.
	MockTests bool          `yaml:"mockTests"`
	TokenTTL  time.Duration `yaml:"tokenTtl"`
	StoreDir  string        `yaml:"storeDir"`
}

// Load reads configuration from environment variables with sensible defaults.
// A YAML file named by EXECAL_CONFIG is applied first; env vars win over it.
func Load() Config {
	cfg, err := LoadFile(os.Getenv("EXECAL_CONFIG"))
	if err != nil {
		log.Printf("config: %v", err)
		cfg = Config{}
	}
	return cfg
}

// LoadFile applies the YAML file at path (if any) and then the environment.
func LoadFile(path string) (Config, error) {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	var cfg Config
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.APIBase = strings.TrimRight(getEnv("EXECAL_API_BASE", orDefault(cfg.APIBase, "http://localhost:8000")), "/")
	cfg.Timeout = getEnvDuration("EXECAL_TIMEOUT", cfg.Timeout)
	cfg.LogLevel = getEnv("EXECAL_LOG_LEVEL", orDefault(cfg.LogLevel, "info"))
	cfg.Env = normalizeEnv(getEnv("ENV", orDefault(cfg.Env, "dev")))
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)

	cfg.ObjectStoreType = normalizeStoreType(getEnv("OBJECT_STORE", cfg.ObjectStoreType))
	cfg.LocalStoreDir = getEnv("LOCAL_STORE_DIR", orDefault(cfg.LocalStoreDir, "./reports"))
	cfg.AWSRegion = getEnv("AWS_REGION", cfg.AWSRegion)
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3Prefix = getEnv("S3_PREFIX", cfg.S3Prefix)
	cfg.SSEKMSKeyID = getEnv("SSE_KMS_KEY_ID", cfg.SSEKMSKeyID)

	cfg.Minio.Endpoint = getEnv("MINIO_ENDPOINT", cfg.Minio.Endpoint)
	cfg.Minio.AccessKey = getEnv("MINIO_ACCESS_KEY", cfg.Minio.AccessKey)
	cfg.Minio.SecretKey = getEnv("MINIO_SECRET_KEY", cfg.Minio.SecretKey)
	cfg.Minio.Bucket = getEnv("MINIO_BUCKET", cfg.Minio.Bucket)
	cfg.Minio.Region = getEnv("MINIO_REGION", cfg.Minio.Region)
	cfg.Minio.UseSSL = getEnvBool("MINIO_USE_SSL", cfg.Minio.UseSSL)

	cfg.QueueURL = getEnv("EXECAL_SQS_QUEUE_URL", cfg.QueueURL)
	cfg.Token = getEnv("EXECAL_TOKEN", cfg.Token)
	cfg.Owner = getEnv("EXECAL_OWNER", orDefault(cfg.Owner, "local"))

	cfg.Dev.Port = getEnv("DEV_PORT", orDefault(cfg.Dev.Port, "8000"))
	cfg.Dev.AltIDKey = getEnvBool("DEV_ALT_ID_KEY", cfg.Dev.AltIDKey)
	if raw := os.Getenv("CORS_ALLOW_ORIGINS"); raw != "" {
		cfg.Dev.CORSAllowOrigin = splitAndTrim(raw)
	}
	if len(cfg.Dev.CORSAllowOrigin) == 0 {
		cfg.Dev.CORSAllowOrigin = []string{"http://localhost:5173"}
	}
	cfg.Dev.JWTSecret = getEnv("JWT_SECRET", cfg.Dev.JWTSecret)
	cfg.Dev.UploadRate = getEnvFloat("DEV_UPLOAD_RATE", cfg.Dev.UploadRate)
	if cfg.Dev.UploadRate <= 0 {
		cfg.Dev.UploadRate = 1
	}
	cfg.Dev.UploadBurst = getEnvInt("DEV_UPLOAD_BURST", cfg.Dev.UploadBurst)
	if cfg.Dev.UploadBurst <= 0 {
		cfg.Dev.UploadBurst = 5
	}
	cfg.Dev.MockTests = getEnvBool("USE_MOCK_TESTS", cfg.Dev.MockTests)
	if mins := getEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 0); mins > 0 {
		cfg.Dev.TokenTTL = time.Duration(mins) * time.Minute
	}
	if cfg.Dev.TokenTTL <= 0 {
		cfg.Dev.TokenTTL = time.Hour
	}
	cfg.Dev.StoreDir = getEnv("DEV_STORE_DIR", orDefault(cfg.Dev.StoreDir, "./devdata"))
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	// Bare integers are seconds.
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	log.Printf("config: %s invalid duration %q", key, raw)
	return def
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config: %s invalid bool %q", key, raw)
		return def
	}
	return val
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: %s invalid int %q", key, raw)
		return def
	}
	return val
}

func getEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config: %s invalid number %q", key, raw)
		return def
	}
	return val
}

func orDefault(val, def string) string {
	if strings.TrimSpace(val) == "" {
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "minio":
		return "minio"
	default:
		return "local"
	}
}
