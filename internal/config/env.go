package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	BedrockRegion   string
	ModelID         string
	ModelArn        string
	KnowledgeBaseID string

	SecretsFile   string
	SessionSecret string
	SessionIdle   time.Duration

	PresignTTL        time.Duration
	GenerationTimeout time.Duration
	LoginPerMinute    int
	CookieSecure      bool
	TrustProxyHeaders bool

	DatabaseURL    string
	SslCertPath    string
	AllowedOrigins []string
}

// LoadConfig loads the environment variables and return config.
// envFile may be empty, in which case .env in the working directory is tried.
func LoadConfig(envFile string) *Config {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Printf("WARN: could not load %s: %v", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	region := getEnv("AWS_REGION", "us-west-2")
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		AwsAccessKey:      getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:      getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:         region,
		BucketName:        getEnv("BUCKET_NAME", ""),
		BedrockRegion:     getEnv("BEDROCK_REGION", region),
		ModelID:           getEnv("BEDROCK_MODEL_ID", "anthropic.claude-v2"),
		ModelArn:          getEnv("MODEL_ARN", ""),
		KnowledgeBaseID:   getEnv("KNOWLEDGE_BASE_ID", ""),
		SecretsFile:       getEnv("SECRETS_FILE", ".secrets.yaml"),
		SessionSecret:     getEnv("SESSION_SECRET", ""),
		SessionIdle:       getEnvDuration("SESSION_IDLE_TTL", 12*time.Hour),
		PresignTTL:        time.Duration(getEnvInt("PRESIGN_TTL_SECONDS", 3600)) * time.Second,
		GenerationTimeout: getEnvDuration("GENERATION_TIMEOUT", 55*time.Second),
		LoginPerMinute:    getEnvInt("LOGIN_ATTEMPTS_PER_MINUTE", 10),
		CookieSecure:      getEnvBool("COOKIE_SECURE", false),
		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		SslCertPath:       getEnv("SSL_CERT_PATH", ""),
		AllowedOrigins:    splitList(getEnv("ALLOWED_ORIGINS", "")),
	}

	if cfg.ModelArn == "" {
		cfg.ModelArn = FoundationModelArn(cfg.BedrockRegion, cfg.ModelID)
	}

	return cfg
}

// Validate reports settings the server cannot start without. The knowledge
// base id may still be filled in from the secrets file, so it is checked
// after that file has been read.
func (c *Config) Validate() error {
	var errs []error
	if c.BucketName == "" {
		errs = append(errs, errors.New("BUCKET_NAME not set"))
	}
	if c.KnowledgeBaseID == "" {
		errs = append(errs, errors.New("knowledge base id not set (KNOWLEDGE_BASE_ID or secrets file)"))
	}
	if c.PresignTTL <= 0 {
		errs = append(errs, fmt.Errorf("PRESIGN_TTL_SECONDS must be positive, got %s", c.PresignTTL))
	}
	return errors.Join(errs...)
}

// FoundationModelArn builds the ARN Bedrock expects for an on-demand foundation model.
func FoundationModelArn(region, modelID string) string {
	return fmt.Sprintf("arn:aws:bedrock:%s::foundation-model/%s", region, modelID)
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
