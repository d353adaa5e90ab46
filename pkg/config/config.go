package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 스테이지 이름
const (
	StageSignificance = "significance"
	StageOptimize     = "optimize"
	StageGenerate     = "generate"
	StagePostprocess  = "postprocess"
	StageValidate     = "validate"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Logging
	LogLevel  string
	LogFormat string

	// Artifacts
	Paths PathsConfig

	// Pushgateway
	Metrics MetricsConfig

	Optimize OptimizeConfig
	Generate GenerateConfig

	// Database (history mirror)
	Database DatabaseConfig

	// Redis (stage lock)
	Redis RedisConfig

	// Scheduler (cron, 초 단위 포함 6필드)
	Schedule ScheduleConfig

	// 파싱 오류 (validate에서 보고)
	parseErrs []error
}

// PathsConfig 아티팩트 위치
type PathsConfig struct {
	AdRevenueData      string // Date, Revenue
	PrimeDays          string // EventDate
	BestParams         string
	TrainingData       string // ds, y
	ForecastOutput     string // raw ds, yhat
	FinalForecast      string
	ProductsToRemove   string // ad_product
	ValidationForecast string // fcst_<period> 표 (raw 예측과 별개, 기본값 없음)
	ActualValues       string // actual_*
	MAPEScores         string
}

// MetricsConfig Prometheus Pushgateway 설정
type MetricsConfig struct {
	Gateway string
	Job     string
	Timeout time.Duration
}

// OptimizeConfig 하이퍼파라미터 탐색 설정
type OptimizeConfig struct {
	Trials      int
	Parallelism int
	Seed        uint64
	SpacePath   string // 선택: YAML 탐색 공간 (없으면 기본 공간)
}

// GenerateConfig 예측 생성 설정
type GenerateConfig struct {
	EventGating bool   // 유의성 검정으로 이벤트 회귀 변수 on/off
	ProductID   string // raw 아티팩트에 product_id 컬럼이 없을 때 사용
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Enabled bool
	URL     string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	LockTTL  time.Duration
}

// ScheduleConfig 스테이지별 cron 표현식
type ScheduleConfig struct {
	Optimize string
	Generate string
	Validate string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{}
	cfg.Port = getEnv("PORT", "8089")
	cfg.Env = getEnv("ENV", "development")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "json")

	cfg.Paths = PathsConfig{
		AdRevenueData:    getEnv("AD_REVENUE_DATA_PATH", ""),
		PrimeDays:        getEnv("PRIME_DAYS_PATH", ""),
		BestParams:       getEnv("BEST_PARAMS_PATH", ""),
		TrainingData:     getEnv("TRAINING_DATA_PATH", ""),
		ForecastOutput:   getEnv("FORECAST_OUTPUT_PATH", ""),
		FinalForecast:    getEnv("FINAL_FORECAST_PATH", ""),
		ProductsToRemove: getEnv("PRODUCTS_TO_REMOVE_PATH", ""),
		ActualValues:     getEnv("ACTUAL_VALUES_PATH", ""),
		MAPEScores:       getEnv("MAPE_SCORES_PATH", ""),
	}
	cfg.Paths.ValidationForecast = getEnv("VALIDATION_FORECAST_PATH", "")

	cfg.Metrics = MetricsConfig{
		Gateway: getEnv("PROMETHEUS_GATEWAY", ""),
		Job:     getEnv("METRICS_JOB", "dva_forecast_validation"),
		Timeout: cfg.getEnvAsDuration("METRICS_TIMEOUT", "10s"),
	}

	cfg.Optimize = OptimizeConfig{
		Trials:      cfg.getEnvAsInt("OPTIMIZE_TRIALS", 100),
		Parallelism: cfg.getEnvAsInt("OPTIMIZE_PARALLELISM", 1),
		Seed:        uint64(cfg.getEnvAsInt("OPTIMIZE_SEED", 42)),
		SpacePath:   getEnv("OPTIMIZE_SPACE_PATH", ""),
	}

	cfg.Generate = GenerateConfig{
		EventGating: cfg.getEnvAsBool("GENERATE_EVENT_GATING", true),
		ProductID:   getEnv("FORECAST_PRODUCT_ID", ""),
	}

	cfg.Database = DatabaseConfig{
		Enabled:         cfg.getEnvAsBool("DB_ENABLED", false),
		URL:             getEnv("DATABASE_URL", ""),
		MaxConns:        cfg.getEnvAsInt("DB_MAX_CONNS", 5),
		MinConns:        cfg.getEnvAsInt("DB_MIN_CONNS", 1),
		MaxConnLifetime: cfg.getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
		MaxConnIdleTime: cfg.getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
	}

	cfg.Redis = RedisConfig{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       cfg.getEnvAsInt("REDIS_DB", 0),
		Enabled:  cfg.getEnvAsBool("REDIS_ENABLED", false),
		LockTTL:  cfg.getEnvAsDuration("STAGE_LOCK_TTL", "2h"),
	}

	cfg.Schedule = ScheduleConfig{
		Optimize: getEnv("OPTIMIZE_SCHEDULE", "0 0 2 * * 0"),  // 일요일 02:00
		Generate: getEnv("GENERATE_SCHEDULE", "0 0 4 * * *"),  // 매일 04:00
		Validate: getEnv("VALIDATE_SCHEDULE", "0 30 6 * * *"), // 매일 06:30
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks general settings; stage-specific keys are checked by
// RequireStage.
func (c *Config) validate() error {
	errs := append([]error(nil), c.parseErrs...)

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		errs = append(errs, fmt.Errorf("ENV must be one of: development, staging, production"))
	}
	switch c.LogFormat {
	case "json", "console", "pretty":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be one of: json, console, pretty"))
	}
	if c.Optimize.Trials <= 0 {
		errs = append(errs, fmt.Errorf("OPTIMIZE_TRIALS must be positive"))
	}
	if c.Optimize.Parallelism <= 0 {
		errs = append(errs, fmt.Errorf("OPTIMIZE_PARALLELISM must be positive"))
	}
	if c.Metrics.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("METRICS_TIMEOUT must be positive"))
	}
	if c.Database.Enabled && c.Database.URL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required when DB_ENABLED=true"))
	}
	if c.Redis.Enabled && c.Redis.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("STAGE_LOCK_TTL must be positive"))
	}

	return errors.Join(errs...)
}

// RequireStage fails fast listing every key the stage needs but is unset
func (c *Config) RequireStage(stage string) error {
	var required map[string]string
	switch stage {
	case StageSignificance:
		required = map[string]string{
			"AD_REVENUE_DATA_PATH": c.Paths.AdRevenueData,
			"PRIME_DAYS_PATH":      c.Paths.PrimeDays,
		}
	case StageOptimize:
		required = map[string]string{
			"TRAINING_DATA_PATH": c.Paths.TrainingData,
			"BEST_PARAMS_PATH":   c.Paths.BestParams,
		}
	case StageGenerate:
		required = map[string]string{
			"AD_REVENUE_DATA_PATH": c.Paths.AdRevenueData,
			"BEST_PARAMS_PATH":     c.Paths.BestParams,
			"FORECAST_OUTPUT_PATH": c.Paths.ForecastOutput,
		}
		if c.Generate.EventGating {
			required["PRIME_DAYS_PATH"] = c.Paths.PrimeDays
		}
	case StagePostprocess:
		required = map[string]string{
			"FORECAST_OUTPUT_PATH": c.Paths.ForecastOutput,
			"FINAL_FORECAST_PATH":  c.Paths.FinalForecast,
		}
	case StageValidate:
		required = map[string]string{
			"VALIDATION_FORECAST_PATH": c.Paths.ValidationForecast,
			"ACTUAL_VALUES_PATH":       c.Paths.ActualValues,
			"MAPE_SCORES_PATH":         c.Paths.MAPEScores,
			"PROMETHEUS_GATEWAY":       c.Metrics.Gateway,
		}
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}

	var missing []string
	for key, v := range required {
		if v == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("stage %s requires %s", stage, strings.Join(missing, ", "))
	}
	return nil
}

// RequireStages checks every stage up front and joins the failures
func (c *Config) RequireStages(stages []string) error {
	var errs []error
	for _, stage := range stages {
		if err := c.RequireStage(stage); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env",
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		c.parseErrs = append(c.parseErrs, fmt.Errorf("%s: invalid integer %q", key, valueStr))
		return defaultValue
	}

	return value
}

func (c *Config) getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		c.parseErrs = append(c.parseErrs, fmt.Errorf("%s: invalid boolean %q", key, valueStr))
		return defaultValue
	}

	return value
}

func (c *Config) getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		c.parseErrs = append(c.parseErrs, fmt.Errorf("%s: invalid duration %q", key, valueStr))
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
