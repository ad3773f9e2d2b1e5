package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/stayscan/internal/pace"
	"github.com/sells-group/stayscan/internal/pool"
	"github.com/sells-group/stayscan/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Browser BrowserConfig `yaml:"browser" mapstructure:"browser"`
	Pacing  PacingConfig  `yaml:"pacing" mapstructure:"pacing"`
	Review  pool.Config   `yaml:"review" mapstructure:"review"`
	Crawl   CrawlConfig   `yaml:"crawl" mapstructure:"crawl"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	Path        string            `yaml:"path" mapstructure:"path"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// BrowserConfig configures the devtools session the driver attaches to.
type BrowserConfig struct {
	DevtoolsURL    string `yaml:"devtools_url" mapstructure:"devtools_url"`
	Headless       bool   `yaml:"headless" mapstructure:"headless"`
	NavTimeoutSecs int    `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
}

// PacingConfig configures think-time ranges, in seconds so the YAML reads
// naturally.
type PacingConfig struct {
	RequestMinSecs float64 `yaml:"request_min_secs" mapstructure:"request_min_secs"`
	RequestMaxSecs float64 `yaml:"request_max_secs" mapstructure:"request_max_secs"`
	ScrollMinSecs  float64 `yaml:"scroll_min_secs" mapstructure:"scroll_min_secs"`
	ScrollMaxSecs  float64 `yaml:"scroll_max_secs" mapstructure:"scroll_max_secs"`
	ZoneMinSecs    float64 `yaml:"zone_min_secs" mapstructure:"zone_min_secs"`
	ZoneMaxSecs    float64 `yaml:"zone_max_secs" mapstructure:"zone_max_secs"`
	RegionMinSecs  float64 `yaml:"region_min_secs" mapstructure:"region_min_secs"`
	RegionMaxSecs  float64 `yaml:"region_max_secs" mapstructure:"region_max_secs"`
	NavPerMinute   int     `yaml:"nav_per_minute" mapstructure:"nav_per_minute"`
}

// ToPace converts the config into the policy's delay ranges.
func (p PacingConfig) ToPace() pace.Config {
	secs := func(v float64) time.Duration {
		return time.Duration(v * float64(time.Second))
	}
	return pace.Config{
		Request:      pace.Bounds{Min: secs(p.RequestMinSecs), Max: secs(p.RequestMaxSecs)},
		Scroll:       pace.Bounds{Min: secs(p.ScrollMinSecs), Max: secs(p.ScrollMaxSecs)},
		Zone:         pace.Bounds{Min: secs(p.ZoneMinSecs), Max: secs(p.ZoneMaxSecs)},
		Region:       pace.Bounds{Min: secs(p.RegionMinSecs), Max: secs(p.RegionMaxSecs)},
		NavPerMinute: p.NavPerMinute,
	}
}

// CrawlConfig configures the acquisition run.
type CrawlConfig struct {
	PlanPath         string `yaml:"plan_path" mapstructure:"plan_path"`
	MaxNavAttempts   int    `yaml:"max_nav_attempts" mapstructure:"max_nav_attempts"`
	OperatorResume   bool   `yaml:"operator_resume" mapstructure:"operator_resume"`
	TaskBatchLimit   int    `yaml:"task_batch_limit" mapstructure:"task_batch_limit"`
	MotionSeedFromOS bool   `yaml:"motion_seed_from_os" mapstructure:"motion_seed_from_os"`
}

// ServerConfig configures the status HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STAYSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "stayscan.db")
	v.SetDefault("browser.devtools_url", "http://127.0.0.1:9222")
	v.SetDefault("browser.nav_timeout_secs", 30)
	v.SetDefault("pacing.request_min_secs", 3.0)
	v.SetDefault("pacing.request_max_secs", 6.0)
	v.SetDefault("pacing.scroll_min_secs", 0.5)
	v.SetDefault("pacing.scroll_max_secs", 1.0)
	v.SetDefault("pacing.zone_min_secs", 3.0)
	v.SetDefault("pacing.zone_max_secs", 6.0)
	v.SetDefault("pacing.region_min_secs", 5.0)
	v.SetDefault("pacing.region_max_secs", 10.0)
	v.SetDefault("pacing.nav_per_minute", 12)
	v.SetDefault("review.max_total", 300)
	v.SetDefault("review.negative_cap", 100)
	v.SetDefault("review.evidence_cap", 150)
	v.SetDefault("review.min_reviews", 200)
	v.SetDefault("crawl.max_nav_attempts", 3)
	v.SetDefault("crawl.operator_resume", true)
	v.SetDefault("crawl.task_batch_limit", 50)
	v.SetDefault("crawl.motion_seed_from_os", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
