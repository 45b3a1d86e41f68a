package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/bikeshare/internal/support/exception"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

const moduleName = "config"

// LoadConfig loads configuration in four layers:
//  1. defaults from NewConfig()
//  2. the embedded YAML (non-zero values win)
//  3. the .env file at envFilePath, if present, exported into the process environment
//  4. environment variables named after the yaml path (BIKESHARE_SERVER_ADDRESS)
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Debugf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	}

	cfg := NewConfig()

	var yamlConfig Config
	if err := yaml.Unmarshal(embeddedConfig, &yamlConfig); err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to unmarshal embedded config", err)
	}
	mergeConfig(cfg, &yamlConfig)

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to load config from environment variables", err)
	}
	cfg.EmbeddedConfig = embeddedConfig
	return cfg, nil
}

// Bootstrap loads and validates the configuration and applies its log level.
func Bootstrap(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	cfg, err := LoadConfig(envFilePath, embeddedConfig)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, exception.NewPipelineError(moduleName, "invalid configuration", err)
	}
	logger.SetLogLevel(cfg.Bikeshare.System.Logging.Level)
	logger.Debugf("Log level set to: %s", cfg.Bikeshare.System.Logging.Level)
	return cfg, nil
}

// Validate checks the cross-field constraints of the configuration and
// reports every problem found, not just the first.
func (c *Config) Validate() error {
	var result error
	b := c.Bikeshare

	if _, err := c.Location(); err != nil {
		result = multierror.Append(result, err)
	}
	if b.Dataset.Object == "" {
		result = multierror.Append(result, fmt.Errorf("dataset.object must be set"))
	}
	if _, ok := b.Storage[b.Dataset.StorageRef]; !ok {
		result = multierror.Append(result, fmt.Errorf("dataset.storage_ref '%s' has no entry under storage", b.Dataset.StorageRef))
	}
	if len(b.Dataset.Delimiter) != 1 && b.Dataset.Delimiter != `\t` {
		result = multierror.Append(result, fmt.Errorf("dataset.delimiter must be a single character, got %q", b.Dataset.Delimiter))
	}
	if b.Dataset.CacheTTLSeconds < 0 {
		result = multierror.Append(result, fmt.Errorf("dataset.cache_ttl_seconds must not be negative"))
	}
	switch b.Export.Format {
	case ExportFormatParquet, ExportFormatDatabase:
	default:
		result = multierror.Append(result, fmt.Errorf("export.format must be '%s' or '%s', got '%s'", ExportFormatParquet, ExportFormatDatabase, b.Export.Format))
	}
	if b.Export.ChunkSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("export.chunk_size must be positive"))
	}
	switch b.Observability.Metrics.Backend {
	case MetricsBackendPrometheus, MetricsBackendOtel, MetricsBackendNoop:
	default:
		result = multierror.Append(result, fmt.Errorf("observability.metrics.backend '%s' is not supported", b.Observability.Metrics.Backend))
	}
	switch b.Observability.Tracing.Exporter {
	case TracingExporterNone, TracingExporterOTLPHTTP, TracingExporterOTLPGRPC:
	default:
		result = multierror.Append(result, fmt.Errorf("observability.tracing.exporter '%s' is not supported", b.Observability.Tracing.Exporter))
	}
	if r := b.Observability.Tracing.SampleRatio; r <= 0 || r > 1 {
		result = multierror.Append(result, fmt.Errorf("observability.tracing.sample_ratio must be in (0, 1], got %v", r))
	}
	return result
}

// DelimiterRune returns the dataset field separator as a rune.
func (d DatasetConfig) DelimiterRune() rune {
	if d.Delimiter == `\t` {
		return '\t'
	}
	if d.Delimiter == "" {
		return ','
	}
	return []rune(d.Delimiter)[0]
}

// mergeConfig copies every non-zero value of source into dest.
func mergeConfig(dest, source *Config) {
	d, s := &dest.Bikeshare, &source.Bikeshare

	mergeSystemConfig(&d.System, &s.System)
	mergeDatasetConfig(&d.Dataset, &s.Dataset)
	mergeServerConfig(&d.Server, &s.Server)
	mergeExportConfig(&d.Export, &s.Export)
	mergeObservabilityConfig(&d.Observability, &s.Observability)

	for key, value := range s.Storage {
		d.Storage[key] = value
	}
	for key, value := range s.Database {
		d.Database[key] = value
	}
}

func mergeSystemConfig(dest, source *SystemConfig) {
	if source.Timezone != "" {
		dest.Timezone = source.Timezone
	}
	if source.Logging.Level != "" {
		dest.Logging.Level = source.Logging.Level
	}
	if source.Logging.SQLLevel != "" {
		dest.Logging.SQLLevel = source.Logging.SQLLevel
	}
}

func mergeDatasetConfig(dest, source *DatasetConfig) {
	if source.StorageRef != "" {
		dest.StorageRef = source.StorageRef
	}
	if source.Bucket != "" {
		dest.Bucket = source.Bucket
	}
	if source.Object != "" {
		dest.Object = source.Object
	}
	if source.Delimiter != "" {
		dest.Delimiter = source.Delimiter
	}
	if source.CacheTTLSeconds != 0 {
		dest.CacheTTLSeconds = source.CacheTTLSeconds
	}
}

func mergeServerConfig(dest, source *ServerConfig) {
	if source.Address != "" {
		dest.Address = source.Address
	}
	if source.ReadTimeoutSeconds != 0 {
		dest.ReadTimeoutSeconds = source.ReadTimeoutSeconds
	}
	if source.WriteTimeoutSeconds != 0 {
		dest.WriteTimeoutSeconds = source.WriteTimeoutSeconds
	}
	if source.ShutdownTimeoutSeconds != 0 {
		dest.ShutdownTimeoutSeconds = source.ShutdownTimeoutSeconds
	}
	if source.AllowedOrigins != nil {
		dest.AllowedOrigins = source.AllowedOrigins
	}
}

func mergeExportConfig(dest, source *ExportConfig) {
	if source.Format != "" {
		dest.Format = source.Format
	}
	if source.ChunkSize != 0 {
		dest.ChunkSize = source.ChunkSize
	}
	if source.StorageRef != "" {
		dest.StorageRef = source.StorageRef
	}
	if source.Bucket != "" {
		dest.Bucket = source.Bucket
	}
	if source.OutputBaseDir != "" {
		dest.OutputBaseDir = source.OutputBaseDir
	}
	if source.Compression != "" {
		dest.Compression = source.Compression
	}
	if source.Overwrite {
		dest.Overwrite = true
	}
	if source.DatabaseRef != "" {
		dest.DatabaseRef = source.DatabaseRef
	}
	if source.MigrationsTable != "" {
		dest.MigrationsTable = source.MigrationsTable
	}
	if source.BatchSize != 0 {
		dest.BatchSize = source.BatchSize
	}
}

func mergeObservabilityConfig(dest, source *ObservabilityConfig) {
	if source.ServiceName != "" {
		dest.ServiceName = source.ServiceName
	}
	if source.Metrics.Backend != "" {
		dest.Metrics.Backend = source.Metrics.Backend
	}
	if source.Metrics.Protocol != "" {
		dest.Metrics.Protocol = source.Metrics.Protocol
	}
	if source.Metrics.Endpoint != "" {
		dest.Metrics.Endpoint = source.Metrics.Endpoint
	}
	if source.Metrics.Insecure {
		dest.Metrics.Insecure = true
	}
	if source.Metrics.ExportIntervalSeconds != 0 {
		dest.Metrics.ExportIntervalSeconds = source.Metrics.ExportIntervalSeconds
	}
	if source.Tracing.Exporter != "" {
		dest.Tracing.Exporter = source.Tracing.Exporter
	}
	if source.Tracing.Endpoint != "" {
		dest.Tracing.Endpoint = source.Tracing.Endpoint
	}
	if source.Tracing.Insecure {
		dest.Tracing.Insecure = true
	}
	if source.Tracing.SampleRatio != 0 {
		dest.Tracing.SampleRatio = source.Tracing.SampleRatio
	}
}

// loadStructFromEnv recursively overrides struct fields from environment
// variables named after the upper-cased yaml path.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		switch {
		case field.Kind() == reflect.Struct:
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		case field.Kind() == reflect.Map && field.Type().Elem().Kind() == reflect.Interface:
			loadNamedSectionsFromEnv(field, envVarName+"_")
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadNamedSectionsFromEnv overrides keys of already configured named
// sections. For the "analytics" database, BIKESHARE_DATABASE_ANALYTICS_PASSWORD
// sets its "password" key. Sections must exist in YAML first since names may
// contain underscores.
func loadNamedSectionsFromEnv(mapField reflect.Value, prefix string) {
	if mapField.IsNil() {
		return
	}
	iter := mapField.MapRange()
	for iter.Next() {
		name := iter.Key().String()
		section, ok := iter.Value().Interface().(map[string]interface{})
		if !ok {
			continue
		}
		sectionPrefix := prefix + strings.ToUpper(name) + "_"
		for _, env := range os.Environ() {
			if !strings.HasPrefix(env, sectionPrefix) {
				continue
			}
			parts := strings.SplitN(strings.TrimPrefix(env, sectionPrefix), "=", 2)
			if len(parts) != 2 || parts[0] == "" {
				continue
			}
			section[strings.ToLower(parts[0])] = parts[1]
		}
	}
}

// setField converts value to the field's kind. String slices are comma separated.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
	return nil
}
