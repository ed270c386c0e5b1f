package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Category names a class of telemetry the collector can gather.
type Category string

const (
	CategoryProcessor          Category = "Processor"
	CategoryConnection         Category = "Connection"
	CategorySystemDiagnostics  Category = "SystemDiagnostics"
	CategoryControllerServices Category = "ControllerServices"
	CategoryReportingTasks     Category = "ReportingTasks"
	CategoryBulletins          Category = "Bulletins"
	CategoryProvenance         Category = "Provenance"
	CategorySystem             Category = "System"
	CategoryClusterSummary     Category = "ClusterSummary"
)

// EngineWide reports whether the category describes the whole engine rather
// than a part of the flow hierarchy. Engine-wide categories are only
// collected from the global scope.
func (c Category) EngineWide() bool {
	switch c {
	case CategoryProcessor, CategoryConnection:
		return false
	default:
		return true
	}
}

const (
	// DefaultInterval applies to global categories without an override.
	DefaultInterval = 300 * time.Second

	// GlobalDefaultKey is the collection_intervals_seconds entry that holds
	// the default interval.
	GlobalDefaultKey = "global_default"

	// RootProcessGroup addresses the top of the flow hierarchy.
	RootProcessGroup = "root"
)

// ErrInvalidConfig is returned when a configuration snapshot fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the top-level collector configuration. It is re-read on
// every scheduler tick and treated as immutable for the duration of that tick.
type Config struct {
	NiFiAPIURL   string `yaml:"nifi_api_url" validate:"required,url"`
	NiFiTokenURL string `yaml:"nifi_token_url" validate:"required_if=UseTokenAuth true"`
	UseTokenAuth bool   `yaml:"use_token_auth"`

	// TokenLifetimeSeconds is how long an issued token stays valid.
	TokenLifetimeSeconds int `yaml:"nifi_token_lifetime_seconds" validate:"gt=600"`

	// TimeoutSeconds bounds every individual REST request.
	TimeoutSeconds int `yaml:"nifi_timeout_seconds" validate:"gt=0"`

	// VerifyTLS enables certificate verification. Monitored instances commonly
	// run with self-signed certificates, so verification is off by default.
	VerifyTLS bool `yaml:"verify_tls"`

	// RateLimitRPS caps outbound requests per second. Zero means no limit.
	RateLimitRPS float64 `yaml:"rate_limit_rps" validate:"gte=0"`

	LogLevel string `yaml:"log_level"`

	Components []Category     `yaml:"components_to_monitor" validate:"dive,oneof=Processor Connection SystemDiagnostics ControllerServices ReportingTasks Bulletins Provenance System ClusterSummary"`
	Intervals  map[string]int `yaml:"collection_intervals_seconds" validate:"dive,gt=0"`
	Flows      []FlowSpec     `yaml:"flows_to_monitor" validate:"unique=Name,dive"`

	// RecursiveCollection walks the whole process group hierarchy for
	// processors and connections instead of only direct children.
	RecursiveCollection bool `yaml:"recursive_collection"`

	MonitoredProcessorNames  []string `yaml:"monitored_processor_names"`
	ProcessorMetrics         []string `yaml:"processor_metrics"`
	ConnectionMetrics        []string `yaml:"connection_metrics"`
	JVMMetrics               []string `yaml:"jvm_metrics"`
	ControllerServiceMetrics []string `yaml:"controller_service_metrics"`
	ReportingTaskMetrics     []string `yaml:"reporting_task_metrics"`

	Provenance ProvenanceSettings `yaml:"provenance"`
}

// FlowSpec describes one independently scheduled monitoring scope rooted at a
// process group.
type FlowSpec struct {
	Name                    string     `yaml:"name" validate:"required"`
	ProcessGroupID          string     `yaml:"process_group_id" validate:"required"`
	IntervalSeconds         int        `yaml:"interval_seconds" validate:"gt=0"`
	Components              []Category `yaml:"components_to_monitor" validate:"dive,oneof=Processor Connection SystemDiagnostics ControllerServices ReportingTasks Bulletins Provenance System ClusterSummary"`
	MonitoredProcessorNames []string   `yaml:"monitored_processor_names,omitempty"`
}

// Interval returns the flow's collection interval.
func (f FlowSpec) Interval() time.Duration {
	return time.Duration(f.IntervalSeconds) * time.Second
}

// ProvenanceSettings controls the lineage event query issued for the
// Provenance category.
type ProvenanceSettings struct {
	// LookbackMinutes sets the query window start relative to the collection
	// time. Zero leaves the window open.
	LookbackMinutes int    `yaml:"lookback_minutes" validate:"gte=0"`
	MaxResults      int    `yaml:"max_results" validate:"gt=0"`
	EventType       string `yaml:"event_type,omitempty"`
	ComponentID     string `yaml:"component_id,omitempty"`
}

// Default returns a configuration populated with the collector defaults.
// File loaders decode on top of it so absent keys keep these values.
func Default() Config {
	return Config{
		TokenLifetimeSeconds: 43200,
		TimeoutSeconds:       10,
		LogLevel:             "INFO",
		RecursiveCollection:  true,
		Intervals:            map[string]int{},
		Provenance: ProvenanceSettings{
			LookbackMinutes: 5,
			MaxResults:      1000,
		},
	}
}

var validate = validator.New()

// Validate checks the snapshot for structural errors. The returned error wraps
// ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// IntervalFor returns the effective interval of a global category: its
// override if one is configured, else the global default.
func (c *Config) IntervalFor(category Category) time.Duration {
	if secs, ok := c.Intervals[string(category)]; ok {
		return time.Duration(secs) * time.Second
	}
	if secs, ok := c.Intervals[GlobalDefaultKey]; ok {
		return time.Duration(secs) * time.Second
	}
	return DefaultInterval
}

// TokenLifetime returns the configured token lifetime.
func (c *Config) TokenLifetime() time.Duration {
	return time.Duration(c.TokenLifetimeSeconds) * time.Second
}

// Timeout returns the per-request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
