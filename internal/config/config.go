// Package config loads the fraudwatch configuration from a YAML file and the
// environment, with sane defaults for every knob.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/velobank/fraudwatch/internal/audit"
	"github.com/velobank/fraudwatch/internal/detector"
	"github.com/velobank/fraudwatch/internal/geo"
	"github.com/velobank/fraudwatch/internal/worker"
)

// Config is the root configuration tree.
type Config struct {
	Log       LogConfig         `mapstructure:"log"`
	Database  DatabaseConfig    `mapstructure:"database"`
	Redis     RedisConfig       `mapstructure:"redis"`
	Kafka     KafkaConfig       `mapstructure:"kafka"`
	Geo       geo.ServiceConfig `mapstructure:"geo"`
	Worker    WorkerConfig      `mapstructure:"worker"`
	Detectors DetectorConfig    `mapstructure:"detectors"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	Audit   audit.Config `mapstructure:",squash"`
}

type WorkerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MetricsAddr  string        `mapstructure:"metrics_addr"`
}

type DetectorConfig struct {
	Drain       detector.DrainConfig       `mapstructure:"drain"`
	LowAmount   detector.LowAmountConfig   `mapstructure:"low_amount"`
	FastTravel  detector.FastTravelConfig  `mapstructure:"fast_travel"`
	Frequency   detector.FrequencyConfig   `mapstructure:"frequency"`
	GeoDistance detector.GeoDistanceConfig `mapstructure:"geo_distance"`
}

// Load reads the configuration plus FRAUDWATCH_* environment overrides. With
// an explicit path the file must exist; otherwise fraudwatch.yaml is searched
// for in ./configs and the working directory, and its absence is fine.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FRAUDWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("fraudwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=fraudwatch password=fraudwatch dbname=fraudwatch port=5432 sslmode=disable")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	auditDefaults := audit.DefaultConfig()
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", auditDefaults.Brokers)
	v.SetDefault("kafka.transaction_topic", auditDefaults.TransactionTopic)
	v.SetDefault("kafka.behaviour_topic", auditDefaults.BehaviourTopic)

	v.SetDefault("geo.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geo.timeout", 5*time.Second)
	v.SetDefault("geo.cache_ttl", 24*time.Hour)

	workerDefaults := worker.DefaultConfig()
	v.SetDefault("worker.poll_interval", workerDefaults.PollInterval)
	v.SetDefault("worker.metrics_addr", ":9102")

	drain := detector.DefaultDrainConfig()
	v.SetDefault("detectors.drain.min_balance", drain.MinBalance)
	v.SetDefault("detectors.drain.moderate", drain.Moderate)
	v.SetDefault("detectors.drain.high", drain.High)
	v.SetDefault("detectors.drain.extreme", drain.Extreme)

	low := detector.DefaultLowAmountConfig()
	v.SetDefault("detectors.low_amount.micro_max", low.MicroMax)
	v.SetDefault("detectors.low_amount.very_low_max", low.VeryLowMax)
	v.SetDefault("detectors.low_amount.low_max", low.LowMax)

	travel := detector.DefaultFastTravelConfig()
	v.SetDefault("detectors.fast_travel.lookback_count", travel.LookbackCount)
	v.SetDefault("detectors.fast_travel.lookback_window", travel.LookbackWindow)
	v.SetDefault("detectors.fast_travel.reasonable_speed_kmh", travel.ReasonableSpeedKmh)
	v.SetDefault("detectors.fast_travel.flight_speed_kmh", travel.FlightSpeedKmh)
	v.SetDefault("detectors.fast_travel.min_distance_km", travel.MinDistanceKm)
	v.SetDefault("detectors.fast_travel.home_distance_km", travel.HomeDistanceKm)

	freq := detector.DefaultFrequencyConfig()
	v.SetDefault("detectors.frequency.lookback_window", freq.LookbackWindow)
	v.SetDefault("detectors.frequency.max_history", freq.MaxHistory)
	v.SetDefault("detectors.frequency.detection_window", freq.DetectionWindow)
	v.SetDefault("detectors.frequency.min_baseline_samples", freq.MinBaselineSamples)
	v.SetDefault("detectors.frequency.fallback_baseline_gap", freq.FallbackBaselineGap)
	v.SetDefault("detectors.frequency.fallback_baseline_mad", freq.FallbackBaselineMAD)
	v.SetDefault("detectors.frequency.z_score_threshold", freq.ZScoreThreshold)
	v.SetDefault("detectors.frequency.min_window_events", freq.MinWindowEvents)
	v.SetDefault("detectors.frequency.rate_fold_threshold", freq.RateFoldThreshold)

	dist := detector.DefaultGeoDistanceConfig()
	v.SetDefault("detectors.geo_distance.sender_tx_km", dist.SenderTxKm)
	v.SetDefault("detectors.geo_distance.receiver_tx_km", dist.ReceiverTxKm)
	v.SetDefault("detectors.geo_distance.sender_receiver_km", dist.SenderReceiverKm)
}
