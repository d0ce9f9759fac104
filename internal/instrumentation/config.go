package instrumentation

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
)

// Config selects exporters and labels for metrics and traces. DefaultConfig
// fills it from the standard OTEL_* variables plus a few docdispatch ones.
type Config struct {
	ServiceName       string
	ServiceVersion    string
	ServiceInstanceID string // hostname when empty

	// Enabled is false when INSTRUMENTATION_ENABLED=false.
	Enabled bool

	MetricsExporter string // prometheus, otlp or stdout
	TracingExporter string // otlp, stdout or none

	// OTLPEndpoint is host:port without a scheme.
	OTLPEndpoint string
	OTLPInsecure bool

	TraceSamplingRate float64

	// PushGateway, when set, receives the registry at the end of every run.
	// Requires the prometheus exporter.
	PushGateway string
	PushJob     string

	// DetailedLabels adds the recipient key to dispatch metrics.
	DetailedLabels bool

	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig controls the per-email audit records.
type AuditLoggingConfig struct {
	Enabled bool
	// IncludePII logs full addresses instead of domains.
	IncludePII bool
}

// DefaultConfig reads the instrumentation environment.
func DefaultConfig() Config {
	return Config{
		ServiceName:       env("OTEL_SERVICE_NAME", "docdispatch", parseString),
		ServiceVersion:    "unknown",
		ServiceInstanceID: env("OTEL_SERVICE_INSTANCE_ID", "", parseString),
		Enabled:           env("INSTRUMENTATION_ENABLED", true, strconv.ParseBool),
		MetricsExporter:   env("METRICS_EXPORTER", ExporterPrometheus, parseString),
		TracingExporter:   env("TRACING_EXPORTER", ExporterNone, parseString),
		OTLPEndpoint:      env("OTEL_EXPORTER_OTLP_ENDPOINT", "", parseString),
		OTLPInsecure:      env("OTEL_EXPORTER_OTLP_INSECURE", false, strconv.ParseBool),
		TraceSamplingRate: env("OTEL_TRACES_SAMPLER_ARG", 1.0, parseFloat),
		PushJob:           "docdispatch",
		DetailedLabels:    env("METRICS_DETAILED_LABELS", false, strconv.ParseBool),
		AuditLogging: AuditLoggingConfig{
			Enabled:    env("AUDIT_LOGGING_ENABLED", true, strconv.ParseBool),
			IncludePII: env("AUDIT_LOGGING_INCLUDE_PII", false, strconv.ParseBool),
		},
	}
}

var (
	metricsExporters = []string{ExporterPrometheus, ExporterOTLP, ExporterStdout}
	tracingExporters = []string{ExporterOTLP, ExporterStdout, ExporterNone}
)

// Validate rejects unknown exporters and incomplete OTLP or Pushgateway setups.
// Empty exporter names are allowed and defaulted by NewProvider.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}
	if c.MetricsExporter != "" && !slices.Contains(metricsExporters, c.MetricsExporter) {
		return fmt.Errorf("invalid metrics exporter %q, must be one of: %s", c.MetricsExporter, strings.Join(metricsExporters, ", "))
	}
	if c.TracingExporter != "" && !slices.Contains(tracingExporters, c.TracingExporter) {
		return fmt.Errorf("invalid tracing exporter %q, must be one of: %s", c.TracingExporter, strings.Join(tracingExporters, ", "))
	}
	if c.OTLPEndpoint == "" && (c.MetricsExporter == ExporterOTLP || c.TracingExporter == ExporterOTLP) {
		return fmt.Errorf("OTLP endpoint is required by the otlp exporter; set OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if c.PushGateway != "" && c.MetricsExporter != "" && c.MetricsExporter != ExporterPrometheus {
		return fmt.Errorf("pushgateway requires the prometheus metrics exporter")
	}
	return nil
}

// env parses the variable key, returning def when it is unset or unparsable.
func env[T any](key string, def T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func parseString(s string) (string, error) { return s, nil }

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// Metric label values and exporter names.
const (
	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Folder outcomes
	OutcomeDispatched = "dispatched"
	OutcomeFailed     = "failed"

	// Email kinds
	EmailCase   = "case"
	EmailReport = "report"
	EmailEmpty  = "empty"

	// Google service names
	ServiceGmail = "gmail"
	ServiceDrive = "drive"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)
