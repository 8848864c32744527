// Package cfg binds EVFS's mount-time configuration to command-line flags,
// environment variables, and an optional YAML config file, the way the
// teacher's cfg package binds gcsfuse's flags — scaled down to the handful
// of knobs a single-file block store actually needs.
package cfg

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved EVFS mount configuration.
type Config struct {
	Volume  VolumeConfig  `yaml:"volume" mapstructure:"volume"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// VolumeConfig describes the backing file spec.md §4.1 calls the
// Cluster/Volume layer.
type VolumeConfig struct {
	Path               string `yaml:"path" mapstructure:"path"`
	ClusterSize        int32  `yaml:"cluster-size" mapstructure:"cluster-size"`
	ClusterCount       int32  `yaml:"cluster-count" mapstructure:"cluster-count"`
	ExpandClusterCount int32  `yaml:"expand-cluster-count" mapstructure:"expand-cluster-count"`
}

// CacheConfig configures the write-back LRU cache of spec.md §4.2.
type CacheConfig struct {
	ClusterCount    int           `yaml:"cluster-count" mapstructure:"cluster-count"`
	IdleFlushPeriod time.Duration `yaml:"idle-flush-period" mapstructure:"idle-flush-period"`
}

// LoggingConfig configures internal/logger.
type LoggingConfig struct {
	FilePath ResolvedPath `yaml:"file-path" mapstructure:"file-path"`
	Format   string       `yaml:"format" mapstructure:"format"`
	Severity string       `yaml:"severity" mapstructure:"severity"`
}

// DefaultConfig returns the configuration used when no flags, env vars, or
// config file override it.
func DefaultConfig() Config {
	return Config{
		Volume: VolumeConfig{
			ClusterSize:        1024,
			ClusterCount:       1024,
			ExpandClusterCount: 256,
		},
		Cache: CacheConfig{
			ClusterCount:    256,
			IdleFlushPeriod: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Format:   "text",
			Severity: "INFO",
		},
	}
}

// BindFlags registers every EVFS flag on flagSet and binds it into viper,
// the way the teacher's generated cfg.BindFlags binds each mount parameter.
func BindFlags(flagSet *pflag.FlagSet) error {
	def := DefaultConfig()

	flagSet.String("volume-path", def.Volume.Path, "Path to the backing volume file.")
	if err := viper.BindPFlag("volume.path", flagSet.Lookup("volume-path")); err != nil {
		return err
	}

	flagSet.Int32("cluster-size", def.Volume.ClusterSize, "Cluster size in bytes; must be a power of two in [32, 4096].")
	if err := viper.BindPFlag("volume.cluster-size", flagSet.Lookup("cluster-size")); err != nil {
		return err
	}

	flagSet.Int32("cluster-count", def.Volume.ClusterCount, "Initial cluster count, including the superblock.")
	if err := viper.BindPFlag("volume.cluster-count", flagSet.Lookup("cluster-count")); err != nil {
		return err
	}

	flagSet.Int32("expand-cluster-count", def.Volume.ExpandClusterCount, "Clusters appended per volume expansion.")
	if err := viper.BindPFlag("volume.expand-cluster-count", flagSet.Lookup("expand-cluster-count")); err != nil {
		return err
	}

	flagSet.Int("cache-cluster-count", def.Cache.ClusterCount, "Number of clusters held in the write-back cache; 0 disables caching.")
	if err := viper.BindPFlag("cache.cluster-count", flagSet.Lookup("cache-cluster-count")); err != nil {
		return err
	}

	flagSet.Duration("cache-idle-flush-period", def.Cache.IdleFlushPeriod, "Recorded in the config only; the cache's background wait before autoflush evaluation is a fixed 5s.")
	if err := viper.BindPFlag("cache.idle-flush-period", flagSet.Lookup("cache-idle-flush-period")); err != nil {
		return err
	}

	flagSet.String("log-format", def.Logging.Format, "Log format: text or json.")
	if err := viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.String("log-severity", def.Logging.Severity, "Minimum severity logged: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	if err := viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.String("log-file", "", "Path to a log file; empty logs to stderr.")
	return viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file"))
}
