package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var configLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	configLogger = l
}

const SupportedVersion = "1"

// Config represents the complete configuration structure
type Config struct {
	Version string        `yaml:"version" default:"1"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Uploads UploadsConfig `yaml:"uploads"`
	Editor  EditorConfig  `yaml:"editor"`
	Render  RenderConfig  `yaml:"render"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Host string `yaml:"host" default:"0.0.0.0"`
	Port string `yaml:"port" default:"12600"`
}

type StorageConfig struct {
	Driver        string `yaml:"driver" default:"sqlite"`
	SQLitePath    string `yaml:"sqlite_path" default:"./folio.db"`
	MongoURI      string `yaml:"mongo_uri" default:"mongodb://localhost:27017"`
	MongoDatabase string `yaml:"mongo_database" default:"folio"`
	CacheArticles bool   `yaml:"cache_articles" default:"true"`
	Compression   string `yaml:"compression" default:"zstd"`
}

type UploadsConfig struct {
	Backend   string   `yaml:"backend" default:"fs"`
	Dir       string   `yaml:"dir" default:"./uploads"`
	BaseURL   string   `yaml:"base_url" default:"/uploads/"`
	MaxWidth  int      `yaml:"max_width" default:"1600"`
	MaxBytes  int      `yaml:"max_bytes" default:"10485760"`
	MaxPixels int      `yaml:"max_pixels" default:"40000000"`
	S3        S3Config `yaml:"s3"`
}

// S3Config points at any S3-compatible store. Credentials come from the
// S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY environment variables.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" default:""`
	Region    string `yaml:"region" default:"auto"`
	Bucket    string `yaml:"bucket" default:"folio-uploads"`
	PublicURL string `yaml:"public_url" default:""`
}

type EditorConfig struct {
	SessionTTL    string `yaml:"session_ttl" default:"30m"`
	PurgeSchedule string `yaml:"purge_schedule" default:"@every 5m"`
}

type RenderConfig struct {
	SyntaxTheme string `yaml:"syntax_theme" default:"gruvbox"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"console"`
}

var AppConfig *Config

func LoadConfig(path string) error {
	config := &Config{}

	// Apply default values first
	applyDefaults(config)

	data, err := os.ReadFile(path)
	if err != nil {
		configLogger.Info().Str("path", path).Msg("Config file not found, using defaults")
		AppConfig = config
		return nil
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	AppConfig = config
	return nil
}

func (c *Config) Validate() error {
	if c.Version != SupportedVersion {
		return fmt.Errorf("unsupported configuration version %q (want %q)", c.Version, SupportedVersion)
	}

	switch c.Storage.Driver {
	case StorageSQLite, StorageMongo:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Storage.Compression {
	case "zstd", "gzip":
	default:
		return fmt.Errorf("unknown storage compression %q", c.Storage.Compression)
	}

	switch c.Uploads.Backend {
	case UploadsFS:
	case UploadsS3:
		if c.Uploads.S3.Endpoint == "" || c.Uploads.S3.Bucket == "" {
			return fmt.Errorf("uploads.s3 requires endpoint and bucket")
		}
	default:
		return fmt.Errorf("unknown uploads backend %q", c.Uploads.Backend)
	}

	if c.Uploads.MaxWidth <= 0 || c.Uploads.MaxBytes <= 0 || c.Uploads.MaxPixels <= 0 {
		return fmt.Errorf("uploads.max_width, uploads.max_bytes and uploads.max_pixels must be positive")
	}

	if _, err := time.ParseDuration(c.Editor.SessionTTL); err != nil {
		return fmt.Errorf("invalid editor.session_ttl: %w", err)
	}
	return nil
}

// TTL returns the idle lifetime of editing sessions.
func (e EditorConfig) TTL() time.Duration {
	d, err := time.ParseDuration(e.SessionTTL)
	if err != nil {
		return DefaultSessionTTL
	}
	return d
}

func ApplyDefaults(config interface{}) {
	applyDefaults(config)
}

func applyDefaults(config interface{}) {
	v := reflect.ValueOf(config)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.IsValid() || !field.CanSet() {
			continue
		}

		// Recursively apply defaults to nested structs
		if field.Kind() == reflect.Struct {
			applyDefaults(field.Addr().Interface())
			continue
		}

		defaultValue := fieldType.Tag.Get("default")
		if defaultValue == "" {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(defaultValue)
		case reflect.Bool:
			if val, err := strconv.ParseBool(defaultValue); err == nil {
				field.SetBool(val)
			}
		case reflect.Int, reflect.Int64:
			if val, err := strconv.ParseInt(defaultValue, 10, 64); err == nil {
				field.SetInt(val)
			}
		case reflect.Float64:
			if val, err := strconv.ParseFloat(defaultValue, 64); err == nil {
				field.SetFloat(val)
			}
		case reflect.Slice:
			if field.Len() == 0 && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(defaultValue, ",")
				slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
				for j, part := range parts {
					slice.Index(j).SetString(strings.TrimSpace(part))
				}
				field.Set(slice)
			}
		default:
			configLogger.Warn().
				Str("field_name", fieldType.Name).
				Str("field_type", field.Kind().String()).
				Msg("Unsupported field type for default value")
		}
	}
}
