package telemetry

// Config selects where session-setup spans go.
type Config struct {
	// Enabled turns tracing on; when false every span is a no-op.
	Enabled bool

	// ServiceName and ServiceVersion identify the process in the backend.
	ServiceName    string
	ServiceVersion string

	// ServicePrincipal, when set, is attached to the trace resource as
	// krb5.service_principal.
	ServicePrincipal string

	// Endpoint is the OTLP/gRPC collector address (host:port).
	Endpoint string

	// Insecure disables TLS to the collector.
	Insecure bool

	// SampleRate is the fraction of root spans kept, from 0.0 to 1.0.
	// Child spans follow their parent's decision.
	SampleRate float64
}

// DefaultConfig returns a disabled configuration pointing at a local
// collector.
func DefaultConfig() Config {
	return Config{
		ServiceName:    defaultServiceName,
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}
