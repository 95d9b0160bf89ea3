package config

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string
	Env  string

	MongoURI     string
	DatabaseName string

	JWTSecret          string
	JWTExpirationHours int

	StorageBackend   string // "b2" or "local"
	LocalStoragePath string
	LocalStorageURL  string

	B2ApplicationKeyID string
	B2ApplicationKey   string
	B2BucketName       string

	MaxFileSize      int64
	FreeStorageLimit int64

	ReconcileInterval time.Duration

	AllowedOrigins []string
}

var AppConfig *Config

func LoadConfig() {
	AppConfig = &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DatabaseName: getEnv("DATABASE_NAME", "cirrusdrive"),

		JWTSecret:          getEnv("JWT_SECRET", ""),
		JWTExpirationHours: int(parseInt64(getEnv("JWT_EXPIRATION_HOURS", "24"))),

		StorageBackend:   getEnv("STORAGE_BACKEND", "b2"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./data/blobs"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "http://localhost:8080/blobs"),

		B2ApplicationKeyID: getEnv("B2_APPLICATION_KEY_ID", ""),
		B2ApplicationKey:   getEnv("B2_APPLICATION_KEY", ""),
		B2BucketName:       getEnv("B2_BUCKET_NAME", ""),

		MaxFileSize:      parseInt64(getEnv("MAX_FILE_SIZE", "52428800")),       // 50MB per file
		FreeStorageLimit: parseInt64(getEnv("FREE_STORAGE_LIMIT", "104857600")), // 100MiB per user

		ReconcileInterval: parseDuration(getEnv("RECONCILE_INTERVAL", "1h")),

		AllowedOrigins: parseStringSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
	}

	logConfig()
	validateConfig()
}

func logConfig() {
	log.Println("Configuration loaded:")
	log.Printf("  Port: %s", AppConfig.Port)
	log.Printf("  Environment: %s", AppConfig.Env)
	log.Printf("  Database: %s", AppConfig.DatabaseName)
	log.Printf("  MongoDB URI: %s", maskConnectionString(AppConfig.MongoURI))
	log.Printf("  JWT Secret: %s", maskSecret(AppConfig.JWTSecret))
	log.Printf("  JWT Expiration: %dh", AppConfig.JWTExpirationHours)
	log.Printf("  Storage Backend: %s", AppConfig.StorageBackend)
	log.Printf("  B2 Key ID: %s", maskSecret(AppConfig.B2ApplicationKeyID))
	log.Printf("  B2 Bucket: %s", AppConfig.B2BucketName)
	log.Printf("  Max File Size: %d bytes", AppConfig.MaxFileSize)
	log.Printf("  Free Storage Limit: %d bytes", AppConfig.FreeStorageLimit)
	log.Printf("  Reconcile Interval: %v", AppConfig.ReconcileInterval)
	log.Printf("  Allowed Origins: %v", AppConfig.AllowedOrigins)
}

func maskSecret(secret string) string {
	if secret == "" {
		return "[NOT SET]"
	}
	if len(secret) <= 8 {
		return "[HIDDEN]"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}

func maskConnectionString(uri string) string {
	if uri == "" {
		return "[NOT SET]"
	}
	if strings.Contains(uri, "@") {
		parts := strings.Split(uri, "@")
		if len(parts) >= 2 {
			return "[CREDENTIALS_HIDDEN]@" + parts[len(parts)-1]
		}
	}
	return uri
}

func validateConfig() {
	var missingVars []string

	required := map[string]string{
		"MONGO_URI":  AppConfig.MongoURI,
		"JWT_SECRET": AppConfig.JWTSecret,
	}

	if AppConfig.StorageBackend == "b2" {
		required["B2_APPLICATION_KEY_ID"] = AppConfig.B2ApplicationKeyID
		required["B2_APPLICATION_KEY"] = AppConfig.B2ApplicationKey
		required["B2_BUCKET_NAME"] = AppConfig.B2BucketName
	}

	for key, value := range required {
		if value == "" {
			missingVars = append(missingVars, key)
		}
	}

	if len(missingVars) > 0 {
		log.Printf("Missing required environment variables: %v", missingVars)
		log.Fatal("Please set all required environment variables")
	}

	if AppConfig.StorageBackend != "b2" && AppConfig.StorageBackend != "local" {
		log.Fatalf("Unknown storage backend: %s (expected b2 or local)", AppConfig.StorageBackend)
	}

	log.Println("All required environment variables are set")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt64(s string) int64 {
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		log.Fatalf("Failed to parse int64: %s", s)
	}
	return i
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Fatalf("Failed to parse duration: %s", s)
	}
	return d
}

func parseStringSlice(s string) []string {
	if s == "" {
		return []string{}
	}

	parts := strings.Split(s, ",")
	var result []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func CreateContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
