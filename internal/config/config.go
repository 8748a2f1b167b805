package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/optim"

	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"
	SourceMySQL    = "mysql"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults; an
// optional YAML file named by CONFIG_FILE overrides the analysis options.
type Config struct {
	// Server
	Port           int
	LogLevel       string
	MaxUploadBytes int64

	// Runs
	RunTTL            time.Duration
	MaxConcurrentRuns int
	Workers           int

	// Optimizer
	Optimizer                  string
	OptimizerMaxIterations     int
	OptimizerGradientThreshold float64

	// Input
	Source       string
	DataPath     string
	DatabaseURL  string
	MySQLDSN     string
	SourceTable  string
	QueryTimeout time.Duration

	// Output
	OutputDir string

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration

	// Observability
	OTLPEndpoint string

	ConfigFile string
	Analysis   domain.AnalysisOptions
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	def := domain.DefaultAnalysisOptions()
	cfg := &Config{
		Port:           getEnvInt("PORT", 8080),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 64<<20)),

		RunTTL:            getEnvDuration("RUN_TTL", time.Hour),
		MaxConcurrentRuns: getEnvInt("MAX_CONCURRENT_RUNS", 2),
		Workers:           getEnvInt("WORKERS", 8),

		Optimizer:                  getEnv("OPTIMIZER", optim.NelderMeadName),
		OptimizerMaxIterations:     getEnvInt("OPTIMIZER_MAX_ITERATIONS", optim.DefaultConfig().MaxIterations),
		OptimizerGradientThreshold: getEnvFloat("OPTIMIZER_GRADIENT_THRESHOLD", optim.DefaultConfig().GradientThreshold),

		Source:       strings.ToLower(getEnv("SOURCE", SourceCSV)),
		DataPath:     getEnv("DATA_PATH", "data/flo_data_20k.csv"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		MySQLDSN:     getEnv("MYSQL_DSN", ""),
		SourceTable:  getEnv("SOURCE_TABLE", "flo_customers"),
		QueryTimeout: getEnvDuration("QUERY_TIMEOUT", 30*time.Second),

		OutputDir: getEnv("OUTPUT_DIR", "outputs"),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 200*time.Millisecond),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		ConfigFile: getEnv("CONFIG_FILE", ""),

		Analysis: domain.AnalysisOptions{
			HorizonMonths:       getEnvInt("HORIZON_MONTHS", def.HorizonMonths),
			SegmentCount:        getEnvInt("SEGMENT_COUNT", def.SegmentCount),
			BGNBDPenalizer:      getEnvFloat("BGNBD_PENALIZER", def.BGNBDPenalizer),
			GammaGammaPenalizer: getEnvFloat("GG_PENALIZER", def.GammaGammaPenalizer),
			DiscountRate:        getEnvFloat("DISCOUNT_RATE", def.DiscountRate),
			DiscountPeriod:      domain.DiscountPeriod(getEnv("DISCOUNT_PERIOD", string(def.DiscountPeriod))),
			OutlierLowQ:         getEnvFloat("OUTLIER_LOW_Q", def.OutlierLowQ),
			OutlierHighQ:        getEnvFloat("OUTLIER_HIGH_Q", def.OutlierHighQ),
			BufferDays:          getEnvInt("ANALYSIS_BUFFER_DAYS", def.BufferDays),
			TopN:                getEnvInt("TOP_N", def.TopN),
		},
	}

	if err := cfg.SetAnalysisDate(getEnv("ANALYSIS_DATE", "")); err != nil {
		return nil, err
	}
	if cfg.ConfigFile != "" {
		if err := cfg.ApplyFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// SetAnalysisDate parses an explicit analysis instant: "" keeps the derived
// default, "now" pins the current day, anything else must be YYYY-MM-DD.
func (c *Config) SetAnalysisDate(v string) error {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		c.Analysis.AnalysisDate = nil
	case "now":
		now := time.Now().UTC().Truncate(24 * time.Hour)
		c.Analysis.AnalysisDate = &now
	default:
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return &domain.ErrValidation{Field: "ANALYSIS_DATE", Message: "must be YYYY-MM-DD or now"}
		}
		c.Analysis.AnalysisDate = &t
	}
	return nil
}

// OptimizerConfig returns the optimizer limits.
func (c *Config) OptimizerConfig() optim.Config {
	oc := optim.DefaultConfig()
	if c.OptimizerMaxIterations > 0 {
		oc.MaxIterations = c.OptimizerMaxIterations
	}
	if c.OptimizerGradientThreshold > 0 {
		oc.GradientThreshold = c.OptimizerGradientThreshold
	}
	return oc
}

// fileConfig is the YAML layout. Only keys present in the file override.
type fileConfig struct {
	Analysis struct {
		HorizonMonths       *int     `yaml:"horizon_months"`
		SegmentCount        *int     `yaml:"segment_count"`
		BGNBDPenalizer      *float64 `yaml:"bgnbd_penalizer"`
		GammaGammaPenalizer *float64 `yaml:"gg_penalizer"`
		DiscountRate        *float64 `yaml:"discount_rate"`
		DiscountPeriod      *string  `yaml:"discount_period"`
		OutlierLowQ         *float64 `yaml:"outlier_low_q"`
		OutlierHighQ        *float64 `yaml:"outlier_high_q"`
		BufferDays          *int     `yaml:"analysis_buffer_days"`
		AnalysisDate        *string  `yaml:"analysis_date"`
		TopN                *int     `yaml:"top_n"`
	} `yaml:"analysis"`
	Optimizer *struct {
		Name              *string  `yaml:"name"`
		MaxIterations     *int     `yaml:"max_iterations"`
		GradientThreshold *float64 `yaml:"gradient_threshold"`
	} `yaml:"optimizer"`
}

// ApplyFile overlays the YAML file at path.
func (c *Config) ApplyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	a := &c.Analysis
	setInt(&a.HorizonMonths, fc.Analysis.HorizonMonths)
	setInt(&a.SegmentCount, fc.Analysis.SegmentCount)
	setFloat(&a.BGNBDPenalizer, fc.Analysis.BGNBDPenalizer)
	setFloat(&a.GammaGammaPenalizer, fc.Analysis.GammaGammaPenalizer)
	setFloat(&a.DiscountRate, fc.Analysis.DiscountRate)
	setFloat(&a.OutlierLowQ, fc.Analysis.OutlierLowQ)
	setFloat(&a.OutlierHighQ, fc.Analysis.OutlierHighQ)
	setInt(&a.BufferDays, fc.Analysis.BufferDays)
	setInt(&a.TopN, fc.Analysis.TopN)
	if v := fc.Analysis.DiscountPeriod; v != nil {
		a.DiscountPeriod = domain.DiscountPeriod(*v)
	}
	if v := fc.Analysis.AnalysisDate; v != nil {
		if err := c.SetAnalysisDate(*v); err != nil {
			return err
		}
	}
	if o := fc.Optimizer; o != nil {
		if o.Name != nil {
			c.Optimizer = *o.Name
		}
		setInt(&c.OptimizerMaxIterations, o.MaxIterations)
		setFloat(&c.OptimizerGradientThreshold, o.GradientThreshold)
	}
	return nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
