package config

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds the configuration for the application.
// Tags used:
// - mapstructure: used by viper to unmarshal
// - default: default value to set if missing
// - required: if "true", error if missing
type AppConfig struct {
	// Environment specifies the runtime environment (e.g., development, production).
	Environment string `mapstructure:"APP_ENV" default:"development"`
	// LogLevel defines the logging verbosity (e.g., debug, info, error).
	LogLevel string `mapstructure:"LOG_LEVEL" default:"info"`
	// ServerPort is the port where the local control API will listen.
	ServerPort int `mapstructure:"SERVER_PORT" default:"8080"`

	// Tracking holds the GPS capture and session tunables.
	Tracking TrackingConfig `mapstructure:",squash"`

	// Completion holds the return-to-start detector tunables.
	Completion CompletionConfig `mapstructure:",squash"`

	// Queue holds the durable offline queue configuration.
	Queue QueueConfig `mapstructure:",squash"`

	// Sync holds the remote synchronization configuration.
	Sync SyncConfig `mapstructure:",squash"`
}

// TrackingConfig holds GPS sample acceptance tunables.
type TrackingConfig struct {
	// AccuracyCeilingMeters rejects samples reported less accurate than this.
	AccuracyCeilingMeters float64 `mapstructure:"GPS_ACCURACY_CEILING_M" default:"50"`
	// ClockSkewSeconds tolerates small timestamp regressions between samples.
	ClockSkewSeconds int `mapstructure:"GPS_CLOCK_SKEW_SECONDS" default:"2"`
}

// CompletionConfig holds the geofence thresholds for the completion detector.
type CompletionConfig struct {
	// RadiusMeters is the completion-zone radius around the start position.
	RadiusMeters float64 `mapstructure:"COMPLETION_RADIUS_M" default:"100"`
	// MinElapsedSeconds is the minimum session age before the detector arms.
	MinElapsedSeconds int `mapstructure:"COMPLETION_MIN_ELAPSED_SECONDS" default:"300"`
	// MinDistanceKm is the minimum travelled distance before the detector arms.
	MinDistanceKm float64 `mapstructure:"COMPLETION_MIN_DISTANCE_KM" default:"0.5"`
	// AutoConfirmSeconds ends the session automatically after a candidate
	// is emitted. Zero disables auto-confirm.
	AutoConfirmSeconds int `mapstructure:"COMPLETION_AUTO_CONFIRM_SECONDS" default:"0"`
}

// QueueConfig holds the offline queue storage configuration.
type QueueConfig struct {
	// Backend selects the durable store: "sqlite" or "redis".
	Backend string `mapstructure:"QUEUE_BACKEND" default:"sqlite"`
	// SQLitePath is the local database file used by the sqlite backend.
	SQLitePath string `mapstructure:"QUEUE_SQLITE_PATH" default:"route-tracker.db"`
	// RedisURL is the connection URL used by the redis backend and the
	// operator alert store, e.g. redis://localhost:6379/0.
	RedisURL string `mapstructure:"REDIS_URL" default:"redis://localhost:6379/0"`
}

// SyncConfig holds the remote sync engine configuration.
type SyncConfig struct {
	// BaseURL is the remote routes service, e.g. https://api.example.com.
	BaseURL string `mapstructure:"SYNC_BASE_URL" required:"true"`
	// IntervalSeconds paces periodic sync passes while online.
	IntervalSeconds int `mapstructure:"SYNC_INTERVAL_SECONDS" default:"30"`
	// BatchSize bounds the number of coordinates sent per request.
	BatchSize int `mapstructure:"SYNC_BATCH_SIZE" default:"100"`
	// MaxAttempts is the per-record attempt ceiling before a record is
	// flagged as a permanent failure.
	MaxAttempts int `mapstructure:"SYNC_MAX_ATTEMPTS" default:"5"`
	// RetentionHours keeps synced records around before purge.
	RetentionHours int `mapstructure:"SYNC_RETENTION_HOURS" default:"72"`
	// HTTPTimeoutSeconds bounds every remote call.
	HTTPTimeoutSeconds int `mapstructure:"SYNC_HTTP_TIMEOUT_SECONDS" default:"15"`
}

// ClockSkew returns the skew tolerance as a duration.
func (c TrackingConfig) ClockSkew() time.Duration {
	return time.Duration(c.ClockSkewSeconds) * time.Second
}

// MinElapsed returns the arming delay as a duration.
func (c CompletionConfig) MinElapsed() time.Duration {
	return time.Duration(c.MinElapsedSeconds) * time.Second
}

// AutoConfirm returns the auto-confirm countdown as a duration.
func (c CompletionConfig) AutoConfirm() time.Duration {
	return time.Duration(c.AutoConfirmSeconds) * time.Second
}

// Interval returns the sync pacing as a duration.
func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Retention returns the synced-record retention window as a duration.
func (c SyncConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// HTTPTimeout returns the remote call timeout as a duration.
func (c SyncConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// Load loads configuration from .env files and environment variables.
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	v.AutomaticEnv()

	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config AppConfig

	if err := processTags(v, &config); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := validateRequired(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// processTags iterates over the struct fields and sets default values in Viper.
func processTags(v *viper.Viper, config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := processTags(v, val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		key := field.Tag.Get("mapstructure")
		defaultValue := field.Tag.Get("default")

		if key != "" {
			v.BindEnv(key)
		}

		if key != "" && defaultValue != "" {
			v.SetDefault(key, defaultValue)
		}
	}
	return nil
}

// validateRequired checks if fields marked as required have non-zero values.
func validateRequired(config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := validateRequired(val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		required := field.Tag.Get("required")
		if required == "true" {
			value := val.Field(i)
			if isZero(value) {
				key := field.Tag.Get("mapstructure")
				return fmt.Errorf("missing required configuration: %s", key)
			}
		}
	}
	return nil
}

// isZero checks if a reflect.Value is the zero value for its type.
func isZero(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return v.String() == ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	default:
		return v.IsZero()
	}
}
