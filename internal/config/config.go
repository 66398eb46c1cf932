// Package config carries the explicit configuration record every
// component receives at construction. Values come from the environment
// via viper, with CLI flags layered on top in main.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	// MemoryPath is the base directory; the store lives in
	// <MemoryPath>/.memory.
	MemoryPath string
	// LogLevel is one of debug, info, warn, error, fatal.
	LogLevel string
	// AutoRelations enables auto-creation of high-confidence relations
	// on entity insertion.
	AutoRelations bool
	// BackupKeep is how many snapshots per branch survive Trim.
	BackupKeep int
	// IndexInterval is the background indexer polling interval.
	IndexInterval time.Duration
	// IndexCacheSize bounds the in-memory relationship index.
	IndexCacheSize int
}

// Load reads configuration from the environment with sensible defaults.
func Load() Config {
	v := viper.New()
	v.SetDefault("memory_path", ".")
	v.SetDefault("log_level", "info")
	v.SetDefault("auto_relations", true)
	v.SetDefault("backup_keep", 5)
	v.SetDefault("index_interval", 2*time.Second)
	v.SetDefault("index_cache_size", 1024)

	v.BindEnv("memory_path", "MEMORY_PATH")
	v.BindEnv("log_level", "LOG_LEVEL")
	v.BindEnv("auto_relations", "BRANCHMEM_AUTO_RELATIONS")
	v.BindEnv("backup_keep", "BRANCHMEM_BACKUP_KEEP")
	v.BindEnv("index_interval", "BRANCHMEM_INDEX_INTERVAL")
	v.BindEnv("index_cache_size", "BRANCHMEM_INDEX_CACHE_SIZE")

	return Config{
		MemoryPath:     v.GetString("memory_path"),
		LogLevel:       v.GetString("log_level"),
		AutoRelations:  v.GetBool("auto_relations"),
		BackupKeep:     v.GetInt("backup_keep"),
		IndexInterval:  v.GetDuration("index_interval"),
		IndexCacheSize: v.GetInt("index_cache_size"),
	}
}
