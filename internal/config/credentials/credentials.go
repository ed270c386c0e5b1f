// Package credentials loads the collector's secrets: NiFi credentials and the
// storage backend selection with its settings.
package credentials

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables that override secrets file values,
// e.g. NIFI_COLLECTOR_NIFI_PASSWORD.
const EnvPrefix = "NIFI_COLLECTOR"

// Storage backend names accepted by the storage key.
const (
	StorageLocal = "local"
	StorageAWS   = "aws"
	StorageAzure = "azure"
	StorageKafka = "kafka"
)

// Secrets holds the values read once at startup. They are never re-read
// during the run.
type Secrets struct {
	Username string `mapstructure:"nifi_username"`
	Password string `mapstructure:"nifi_password"`

	Storage              string `mapstructure:"storage"`
	LocalOutputDirectory string `mapstructure:"local_output_directory"`

	AWSAccessKey string `mapstructure:"aws_access_key"`
	AWSSecretKey string `mapstructure:"aws_secret_key"`
	S3Bucket     string `mapstructure:"s3_bucket"`
	S3Endpoint   string `mapstructure:"s3_endpoint"`
	S3Region     string `mapstructure:"s3_region"`
	S3UseSSL     bool   `mapstructure:"s3_use_ssl"`

	AzureConnectionString string `mapstructure:"azure_connection_string"`
	AzureContainerName    string `mapstructure:"azure_container_name"`

	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
}

var defaults = map[string]any{
	"nifi_username":           "",
	"nifi_password":           "",
	"storage":                 StorageLocal,
	"local_output_directory":  "/tmp/nifi_metrics",
	"aws_access_key":          "",
	"aws_secret_key":          "",
	"s3_bucket":               "nifi-metrics",
	"s3_endpoint":             "s3.amazonaws.com",
	"s3_region":               "",
	"s3_use_ssl":              true,
	"azure_connection_string": "",
	"azure_container_name":    "nifi-metrics",
	"kafka_brokers":           []string{},
	"kafka_topic":             "nifi-metrics",
}

// Load reads secrets from path (JSON or YAML, chosen by extension) with
// environment overrides. An empty path loads from the environment only.
func Load(path string) (*Secrets, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read secrets file: %w", err)
		}
	}

	var s Secrets
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode secrets: %w", err)
	}
	s.Storage = strings.ToLower(strings.TrimSpace(s.Storage))

	return &s, nil
}

// ErrMissingCredentials is returned when NiFi credentials are absent.
var ErrMissingCredentials = errors.New("nifi_username and nifi_password are required")

// RequireNiFiCredentials reports whether both username and password are set.
func (s *Secrets) RequireNiFiCredentials() error {
	if s.Username == "" || s.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}
