package telemetry

// Config configures trace export.
type Config struct {
	Enabled bool

	// ServiceName and ServiceVersion are reported as resource attributes.
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP/gRPC collector address (host:port).
	Endpoint string
	Insecure bool

	// SampleRate is the fraction of root bind spans recorded, 0 to 1.
	// Child spans follow their parent's decision.
	SampleRate float64
}

// DefaultServiceName is reported when no service name is configured.
const DefaultServiceName = "ldapauth"

// DefaultConfig returns tracing disabled, with a local collector endpoint.
func DefaultConfig() Config {
	return Config{
		ServiceName:    DefaultServiceName,
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}

func (c Config) serviceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}
