package telemetry

// Options configures trace and metric exporters.
type Options struct {
	// TraceExporter is one of none, console, otlpHttp, otlpGrpc, http.
	TraceExporter                 string
	TraceExporterHTTPEndpoint     string
	TraceExporterInsecureEndpoint bool
	// TraceParent continues a W3C trace started by the caller, `00-<trace-id>-<span-id>-<flags>`.
	TraceParent string

	// MetricExporter is one of none, console, otlpHttp, grpcHttp.
	MetricExporter                 string
	MetricExporterInsecureEndpoint bool
}
