// Package config provides the configuration model for bikeshare and its loader.
package config

import (
	"fmt"
	"time"
)

// EmbeddedConfig holds the content of the configuration file, typically embedded by main.go.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelTrace  LogLevel = "TRACE"
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelFatal  LogLevel = "FATAL"
	LogLevelSilent LogLevel = "SILENT"
)

// Export formats.
const (
	ExportFormatParquet  = "parquet"
	ExportFormatDatabase = "database"
)

// Metrics backends.
const (
	MetricsBackendPrometheus = "prometheus"
	MetricsBackendOtel       = "otel"
	MetricsBackendNoop       = "noop"
)

// Tracing exporters.
const (
	TracingExporterNone     = "none"
	TracingExporterOTLPHTTP = "otlphttp"
	TracingExporterOTLPGRPC = "otlpgrpc"
)

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG", "TRACE").
	Level string `yaml:"level"`
	// SQLLevel is the level GORM logs at (SILENT, ERROR, WARN, INFO).
	SQLLevel string `yaml:"sql_level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is used to interpret dataset timestamps that carry no zone (e.g., "UTC", "America/New_York").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// DatasetConfig locates the rental dataset and controls its cache.
type DatasetConfig struct {
	// StorageRef names the storage connection the dataset is read from.
	StorageRef string `yaml:"storage_ref"`
	// Bucket overrides the connection's default bucket.
	Bucket string `yaml:"bucket"`
	// Object is the object name (file path relative to the storage base) of the CSV.
	Object string `yaml:"object"`
	// Delimiter is the field separator. Defaults to ",".
	Delimiter string `yaml:"delimiter"`
	// CacheTTLSeconds expires cached datasets after the given time. Zero keeps them until invalidated.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// ServerConfig configures the HTTP query API.
type ServerConfig struct {
	Address                string   `yaml:"address"`
	ReadTimeoutSeconds     int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int      `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
	AllowedOrigins         []string `yaml:"allowed_origins"`
}

// ExportConfig configures the export job.
type ExportConfig struct {
	// Format selects the writer: "parquet" or "database".
	Format string `yaml:"format"`
	// ChunkSize is the number of items handed to the writer at a time.
	ChunkSize int `yaml:"chunk_size"`
	// StorageRef is the storage connection parquet files are uploaded to.
	StorageRef string `yaml:"storage_ref"`
	// Bucket overrides the connection's default bucket.
	Bucket string `yaml:"bucket"`
	// OutputBaseDir is the object prefix for exported parquet files.
	OutputBaseDir string `yaml:"output_base_dir"`
	// Compression is the parquet codec: SNAPPY, GZIP or NONE.
	Compression string `yaml:"compression"`
	// Overwrite deletes previously exported objects under OutputBaseDir first.
	Overwrite bool `yaml:"overwrite"`
	// DatabaseRef names the database connection used by the database format.
	DatabaseRef string `yaml:"database_ref"`
	// MigrationsTable is the golang-migrate bookkeeping table.
	MigrationsTable string `yaml:"migrations_table"`
	// BatchSize is the insert batch size for the database format.
	BatchSize int `yaml:"batch_size"`
}

// MetricsConfig selects and configures the metrics backend.
type MetricsConfig struct {
	// Backend is "prometheus", "otel" or "noop".
	Backend string `yaml:"backend"`
	// Protocol is the OTLP protocol for the otel backend: "http" or "grpc".
	Protocol string `yaml:"protocol"`
	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `yaml:"endpoint"`
	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`
	// ExportIntervalSeconds is the periodic reader interval for the otel backend.
	ExportIntervalSeconds int `yaml:"export_interval_seconds"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Exporter is "none", "otlphttp" or "otlpgrpc".
	Exporter string `yaml:"exporter"`
	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `yaml:"endpoint"`
	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`
	// SampleRatio is the fraction of traces sampled (0 < r <= 1).
	SampleRatio float64 `yaml:"sample_ratio"`
}

// ObservabilityConfig groups metrics and tracing.
type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name"`
	Metrics     MetricsConfig `yaml:"metrics"`
	Tracing     TracingConfig `yaml:"tracing"`
}

// BikeshareConfig holds all configuration under the "bikeshare" top-level key.
type BikeshareConfig struct {
	System        SystemConfig        `yaml:"system"`
	Dataset       DatasetConfig       `yaml:"dataset"`
	Server        ServerConfig        `yaml:"server"`
	Export        ExportConfig        `yaml:"export"`
	Observability ObservabilityConfig `yaml:"observability"`
	// Storage holds named storage connection configurations (decoded by the storage adapters).
	Storage map[string]interface{} `yaml:"storage"`
	// Database holds named database connection configurations (decoded by the GORM provider).
	Database map[string]interface{} `yaml:"database"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Bikeshare BikeshareConfig `yaml:"bikeshare"`
	// EmbeddedConfig holds the raw bytes the configuration was loaded from.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	return &Config{
		Bikeshare: BikeshareConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO", SQLLevel: "SILENT"},
			},
			Dataset: DatasetConfig{
				StorageRef: "dataset",
				Object:     "train.csv",
				Delimiter:  ",",
			},
			Server: ServerConfig{
				Address:                ":8080",
				ReadTimeoutSeconds:     10,
				WriteTimeoutSeconds:    30,
				ShutdownTimeoutSeconds: 10,
				AllowedOrigins:         []string{"*"},
			},
			Export: ExportConfig{
				Format:          ExportFormatParquet,
				ChunkSize:       500,
				StorageRef:      "export",
				OutputBaseDir:   "bikeshare/enriched",
				Compression:     "SNAPPY",
				DatabaseRef:     "analytics",
				MigrationsTable: "bikeshare_schema_migrations",
				BatchSize:       500,
			},
			Observability: ObservabilityConfig{
				ServiceName: "bikeshare",
				Metrics: MetricsConfig{
					Backend:               MetricsBackendPrometheus,
					Protocol:              "http",
					Endpoint:              "localhost:4318",
					ExportIntervalSeconds: 15,
				},
				Tracing: TracingConfig{
					Exporter:    TracingExporterNone,
					Endpoint:    "localhost:4318",
					SampleRatio: 1.0,
				},
			},
			Storage:  map[string]interface{}{},
			Database: map[string]interface{}{},
		},
	}
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := c.Bikeshare.System.Timezone
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", tz, err)
	}
	return loc, nil
}

// Seconds converts a whole number of seconds from configuration into a Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
