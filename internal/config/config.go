package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	ServerPort   int
	DatabasePath string
	LogLevel     string
	LogFormat    string
	AllowOrigins []string
	MaxUploadMB  int64

	// Decoded width*height limit; the compressed size says little about it.
	MaxImagePixels int64

	// Inference sidecar endpoints and the model artifacts they load.
	DetectorURL        string
	SegmenterURL       string
	DetectorModelPath  string
	SegmenterModelPath string
	InferenceTimeout   time.Duration
	ConfidenceMin      float64

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	JWTSecret string

	HistoryTTL    time.Duration // 0 keeps conversation history for the life of the process
	HistorySweep  string        // cron spec for the idle-session sweep
	StatsInterval time.Duration
}

// Load loads configuration from environment variables or sets defaults.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	maxUpload, err := strconv.ParseInt(getEnv("MAX_UPLOAD_MB", "32"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_MB: %w", err)
	}
	maxPixels, err := strconv.ParseInt(getEnv("MAX_IMAGE_PIXELS", "40000000"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_IMAGE_PIXELS: %w", err)
	}
	inferenceTimeout, err := time.ParseDuration(getEnv("INFERENCE_TIMEOUT", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid INFERENCE_TIMEOUT: %w", err)
	}
	confidence, err := strconv.ParseFloat(getEnv("CONFIDENCE_THRESHOLD", "0.5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CONFIDENCE_THRESHOLD: %w", err)
	}
	historyTTL, err := time.ParseDuration(getEnv("HISTORY_TTL", "0s"))
	if err != nil {
		return nil, fmt.Errorf("invalid HISTORY_TTL: %w", err)
	}
	statsInterval, err := time.ParseDuration(getEnv("STATS_INTERVAL", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid STATS_INTERVAL: %w", err)
	}

	return &Config{
		ServerPort:         port,
		DatabasePath:       getEnv("DATABASE_PATH", "./neuroscan.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "console"),
		AllowOrigins:       splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		MaxUploadMB:        maxUpload,
		MaxImagePixels:     maxPixels,
		DetectorURL:        getEnv("DETECTOR_URL", "http://localhost:5001/detect"),
		SegmenterURL:       getEnv("SEGMENTER_URL", "http://localhost:5001/segment"),
		DetectorModelPath:  getEnv("DETECTOR_MODEL_PATH", "./model/best.pt"),
		SegmenterModelPath: getEnv("SEGMENTER_MODEL_PATH", "./model/sam2_l.pt"),
		InferenceTimeout:   inferenceTimeout,
		ConfidenceMin:      confidence,
		LLMBaseURL:         getEnv("LLM_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		LLMAPIKey:          getEnv("LLM_API_KEY", ""),
		LLMModel:           getEnv("LLM_MODEL", "doubao-1-5-lite-32k-250115"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		HistoryTTL:         historyTTL,
		HistorySweep:       getEnv("HISTORY_SWEEP", "@every 10m"),
		StatsInterval:      statsInterval,
	}, nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
