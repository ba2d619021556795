// Package config loads engine configuration from file, environment and
// defaults. Every tunable policy knob (RFM bins, segment rules, basket caps)
// lives here so derived-table semantics can change without code changes.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	RFM      RFMConfig      `mapstructure:"rfm"`
	Basket   BasketConfig   `mapstructure:"basket"`
	Quality  QualityConfig  `mapstructure:"quality"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// ScheduleConfig drives the background refresh loop in serve mode. A zero
// interval disables it; refreshes then only run via the CLI or the API.
type ScheduleConfig struct {
	RefreshInterval    time.Duration `mapstructure:"refresh_interval"`
	CycleRetentionDays int           `mapstructure:"cycle_retention_days"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres or sqlite
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RFMConfig controls scoring and segment assignment. Rules are an ordered
// first-match-wins table so segment definitions can be tuned in config.
type RFMConfig struct {
	CutoffYear      int           `mapstructure:"cutoff_year"`
	Bins            int           `mapstructure:"bins"`
	FallbackSegment string        `mapstructure:"fallback_segment"`
	TargetSegments  []string      `mapstructure:"target_segments"`
	SegmentRules    []SegmentRule `mapstructure:"segment_rules"`
}

// SegmentRule matches an inclusive box of R/F/M scores to a segment label.
// A zero Max means "no upper bound".
type SegmentRule struct {
	Label string `mapstructure:"label"`
	MinR  int    `mapstructure:"min_r"`
	MaxR  int    `mapstructure:"max_r"`
	MinF  int    `mapstructure:"min_f"`
	MaxF  int    `mapstructure:"max_f"`
	MinM  int    `mapstructure:"min_m"`
	MaxM  int    `mapstructure:"max_m"`
}

type BasketConfig struct {
	MinPairCount  int     `mapstructure:"min_pair_count"`
	MinSupport    float64 `mapstructure:"min_support"`
	TopN          int     `mapstructure:"top_n"`
	MaxBasketSKUs int     `mapstructure:"max_basket_skus"`
}

type QualityConfig struct {
	AuditTopN int `mapstructure:"audit_top_n"`
}

var Module = fx.Module("config",
	fx.Provide(Load),
)

func Load() (Config, error) {
	// Optional; real deployments set env vars directly.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("commercelens")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/commercelens")
	v.SetEnvPrefix("COMMERCELENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if len(cfg.RFM.SegmentRules) == 0 {
		cfg.RFM.SegmentRules = DefaultSegmentRules()
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=commercelens dbname=commercelens sslmode=disable")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "10m")

	v.SetDefault("rfm.cutoff_year", 2023)
	v.SetDefault("rfm.bins", 5)
	v.SetDefault("rfm.fallback_segment", "Others")
	v.SetDefault("rfm.target_segments", []string{"At Risk", "Cannot Lose"})

	v.SetDefault("basket.min_pair_count", 5)
	v.SetDefault("basket.min_support", 0.0)
	v.SetDefault("basket.top_n", 200)
	v.SetDefault("basket.max_basket_skus", 50)

	v.SetDefault("quality.audit_top_n", 200)

	v.SetDefault("schedule.refresh_interval", "0s")
	v.SetDefault("schedule.cycle_retention_days", 90)
}

// DefaultSegmentRules is the stock RFM segment mapping, applied when no
// segment_rules are configured. Ordered; first match wins.
func DefaultSegmentRules() []SegmentRule {
	return []SegmentRule{
		{Label: "Champions", MinR: 4, MinF: 4, MinM: 4},
		{Label: "Loyal Customers", MinR: 3, MinF: 4, MinM: 1},
		{Label: "Big Spenders", MinR: 3, MinF: 1, MinM: 4},
		{Label: "Potential Loyalists", MinR: 4, MinF: 2, MaxF: 3, MinM: 1},
		{Label: "New Customers", MinR: 4, MinF: 1, MaxF: 1, MinM: 1},
		{Label: "Cannot Lose", MinR: 1, MaxR: 2, MinF: 4, MinM: 4},
		{Label: "At Risk", MinR: 1, MaxR: 2, MinF: 3, MinM: 3},
		{Label: "About To Sleep", MinR: 2, MaxR: 3, MinF: 1, MaxF: 2, MinM: 1},
		{Label: "Hibernating", MinR: 1, MaxR: 2, MinF: 1, MaxF: 2, MinM: 1, MaxM: 3},
		{Label: "Lost", MinR: 1, MaxR: 1, MinF: 1, MaxF: 1, MinM: 1, MaxM: 1},
	}
}
