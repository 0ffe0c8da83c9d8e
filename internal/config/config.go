package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/matviet/outbound-cli/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Link       LinkConfig       `yaml:"link" mapstructure:"link"`
	Reclassify ReclassifyConfig `yaml:"reclassify" mapstructure:"reclassify"`
	Stats      StatsConfig      `yaml:"stats" mapstructure:"stats"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	FTP        FTPConfig        `yaml:"ftp" mapstructure:"ftp"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
}

// StoreConfig configures the row-store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // postgres, sqlite or memory
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// IngestConfig configures report import.
type IngestConfig struct {
	ReportDir     string `yaml:"report_dir" mapstructure:"report_dir"`
	ExtractDir    string `yaml:"extract_dir" mapstructure:"extract_dir"`
	ProcessedDir  string `yaml:"processed_dir" mapstructure:"processed_dir"`
	HeaderRow     int    `yaml:"header_row" mapstructure:"header_row"`
	BatchSize     int    `yaml:"batch_size" mapstructure:"batch_size"`
	BatchDelayMS  int    `yaml:"batch_delay_ms" mapstructure:"batch_delay_ms"`
	ContentMaxLen int    `yaml:"content_max_len" mapstructure:"content_max_len"`
	TaxonomyFile  string `yaml:"taxonomy_file" mapstructure:"taxonomy_file"`
}

// LinkConfig configures the customer linkage run.
type LinkConfig struct {
	CustomerPageSize int `yaml:"customer_page_size" mapstructure:"customer_page_size"`
	FetchPageSize    int `yaml:"fetch_page_size" mapstructure:"fetch_page_size"`
	UpdateBatchSize  int `yaml:"update_batch_size" mapstructure:"update_batch_size"`
	PageDelayMS      int `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	BatchDelayMS     int `yaml:"batch_delay_ms" mapstructure:"batch_delay_ms"`
}

// ReclassifyConfig configures the campaign reclassification run.
type ReclassifyConfig struct {
	FetchPageSize   int `yaml:"fetch_page_size" mapstructure:"fetch_page_size"`
	UpdateBatchSize int `yaml:"update_batch_size" mapstructure:"update_batch_size"`
	PageDelayMS     int `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	BatchDelayMS    int `yaml:"batch_delay_ms" mapstructure:"batch_delay_ms"`
}

// StatsConfig configures the aggregate cache rebuild.
type StatsConfig struct {
	PageSize    int `yaml:"page_size" mapstructure:"page_size"`
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	PageDelayMS int `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
}

// RetryConfig is the retry policy applied to every row-store call.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// Policy converts the section into a resilience.RetryConfig. Unset values
// keep the resilience defaults.
func (r RetryConfig) Policy() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    r.MaxAttempts,
		InitialBackoff: Delay(r.InitialBackoffMS),
		MaxBackoff:     Delay(r.MaxBackoffMS),
		Multiplier:     r.Multiplier,
		JitterFraction: r.JitterFraction,
	}.WithDefaults()
}

// FTPConfig holds the provider report drop credentials.
type FTPConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	User        string `yaml:"user" mapstructure:"user"`
	Password    string `yaml:"password" mapstructure:"password"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the dial timeout.
func (f FTPConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSecs) * time.Second
}

// ServerConfig configures the report API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTBOUND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ingest.report_dir", "reports")
	v.SetDefault("ingest.header_row", 6)
	v.SetDefault("ingest.batch_size", 500)
	v.SetDefault("ingest.content_max_len", 5000)
	v.SetDefault("link.customer_page_size", 1000)
	v.SetDefault("link.fetch_page_size", 500)
	v.SetDefault("link.update_batch_size", 100)
	v.SetDefault("link.page_delay_ms", 1000)
	v.SetDefault("link.batch_delay_ms", 500)
	v.SetDefault("reclassify.fetch_page_size", 200)
	v.SetDefault("reclassify.update_batch_size", 50)
	v.SetDefault("reclassify.page_delay_ms", 1000)
	v.SetDefault("reclassify.batch_delay_ms", 500)
	v.SetDefault("stats.page_size", 1000)
	v.SetDefault("stats.concurrency", 1)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 3000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("ftp.timeout_secs", 30)
	v.SetDefault("server.port", 8080)

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

// Validate checks the settings a command needs. mode is the command name.
func (c *Config) Validate(mode string) error {
	var errs []string
	switch mode {
	case "migrate", "stats", "serve", "import", "link", "reclassify":
		errs = append(errs, c.validateStore()...)
	case "fetch", "classify":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch mode {
	case "import":
		if c.Ingest.HeaderRow < 0 {
			errs = append(errs, "ingest.header_row must be >= 0")
		}
		if c.Ingest.BatchSize <= 0 {
			errs = append(errs, "ingest.batch_size must be > 0")
		}
		if c.Ingest.ContentMaxLen <= 0 {
			errs = append(errs, "ingest.content_max_len must be > 0")
		}
	case "link":
		if c.Link.CustomerPageSize <= 0 {
			errs = append(errs, "link.customer_page_size must be > 0")
		}
		errs = append(errs, pageAndBatch("link", c.Link.FetchPageSize, c.Link.UpdateBatchSize)...)
	case "reclassify":
		errs = append(errs, pageAndBatch("reclassify", c.Reclassify.FetchPageSize, c.Reclassify.UpdateBatchSize)...)
	case "stats":
		if c.Stats.PageSize <= 0 {
			errs = append(errs, "stats.page_size must be > 0")
		}
		if c.Stats.Concurrency < 1 || c.Stats.Concurrency > 2 {
			errs = append(errs, "stats.concurrency must be between 1 and 2")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "fetch":
		if c.FTP.URL == "" {
			errs = append(errs, "ftp.url is required")
		}
	}

	if mode != "classify" && mode != "serve" && c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be >= 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "postgres", "sqlite":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	case "memory":
	default:
		return []string{fmt.Sprintf("store.driver %q must be postgres, sqlite or memory", c.Store.Driver)}
	}
	return nil
}

// pageAndBatch enforces positive sizes and a write batch smaller than the
// read page.
func pageAndBatch(section string, page, batch int) []string {
	var errs []string
	if page <= 0 {
		errs = append(errs, section+".fetch_page_size must be > 0")
	}
	if batch <= 0 {
		errs = append(errs, section+".update_batch_size must be > 0")
	}
	if page > 0 && batch >= page {
		errs = append(errs, fmt.Sprintf("%s.update_batch_size (%d) must be smaller than fetch_page_size (%d)", section, batch, page))
	}
	return errs
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

// Delay converts a millisecond setting to a duration.
func Delay(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
