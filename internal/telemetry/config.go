// Package telemetry wires OpenTelemetry tracing and Pyroscope
// continuous profiling. Tracing is initialized by both binaries, but
// no pipeline stage starts a span; profiling is started by `chaind
// serve` only. Both are opt-in, both
// fall back to a no-op implementation when disabled, and
// Init/InitProfiling each return a shutdown func.
package telemetry

// Config holds OpenTelemetry tracing configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Insecure       bool
	SampleRate     float64
}

// DefaultConfig returns tracing disabled, pointed at a local collector.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "nfgraph",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}

// ProfilingConfig holds Pyroscope continuous profiling configuration.
type ProfilingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	ProfileTypes   []string
}
